package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/arenahub/internal/handlers/testutil"
)

func TestAuditHandler_ListsOwnActivity(t *testing.T) {
	env := testutil.NewEnv(t)
	player := env.NewPlayer("Auditor")
	other := env.NewPlayer("Unrelated")

	createChallenge(t, env, player.Token, "Dota 2", "5v5 Team")
	createChallenge(t, env, other.Token, "Dota 2", "1v1")

	resp := env.Request(http.MethodGet, "/api/audit/me?action=challenge.create", nil, player.Token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	decoded := testutil.DecodeResponse(t, resp)
	require.NotNil(t, decoded.Meta)
	require.EqualValues(t, 1, decoded.Meta.Total)

	var logs []struct {
		Action   string `json:"action"`
		Gamertag string `json:"gamertag"`
		Result   string `json:"result"`
	}
	testutil.DecodeInto(t, decoded.Data, &logs)
	require.Len(t, logs, 1)
	require.Equal(t, "challenge.create", logs[0].Action)
	require.Equal(t, "Auditor", logs[0].Gamertag)
	require.Equal(t, "success", logs[0].Result)

	all := env.Request(http.MethodGet, "/api/audit/me", nil, player.Token)
	decoded = testutil.DecodeResponse(t, all)
	// signup, login and challenge creation
	require.GreaterOrEqual(t, decoded.Meta.Total, int64(3))
}
