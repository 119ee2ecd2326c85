package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/arenahub/internal/handlers/testutil"
	"github.com/charlesng35/arenahub/internal/models"
)

type teamPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tag       string `json:"tag"`
	CaptainID string `json:"captain_id"`
	Members   []struct {
		UserID    string `json:"user_id"`
		Gamertag  string `json:"gamertag"`
		IsCaptain bool   `json:"is_captain"`
	} `json:"members"`
}

type invitationPayload struct {
	ID           string `json:"id"`
	TeamID       string `json:"team_id"`
	TeamName     string `json:"team_name"`
	FromGamertag string `json:"from_gamertag"`
	ToGamertag   string `json:"to_gamertag"`
	Status       string `json:"status"`
}

func createTeam(t *testing.T, env *testutil.Env, token, name, tag string) teamPayload {
	t.Helper()
	resp := env.Request(http.MethodPost, "/api/teams", map[string]string{"name": name, "tag": tag}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var team teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &team)
	return team
}

func invite(t *testing.T, env *testutil.Env, token, teamID, gamertag string) invitationPayload {
	t.Helper()
	resp := env.Request(http.MethodPost, "/api/teams/"+teamID+"/invitations", map[string]string{"gamertag": gamertag}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var invitation invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &invitation)
	return invitation
}

func TestTeamHandler_CreateValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	captain := env.NewPlayer("Cap")

	short := env.Request(http.MethodPost, "/api/teams", map[string]string{"name": "A", "tag": "AA"}, captain.Token)
	require.Equal(t, http.StatusBadRequest, short.Code)

	longTag := env.Request(http.MethodPost, "/api/teams", map[string]string{"name": "Alpha", "tag": "TOOLONG"}, captain.Token)
	require.Equal(t, http.StatusBadRequest, longTag.Code)

	team := createTeam(t, env, captain.Token, "Alpha Squad", "ALP")
	require.Equal(t, captain.User.ID, team.CaptainID)
	require.Len(t, team.Members, 1)
	require.True(t, team.Members[0].IsCaptain)
}

func TestTeamHandler_InvitationFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	captain := env.NewPlayer("Captain")
	recruit := env.NewPlayer("Recruit")

	team := createTeam(t, env, captain.Token, "Night Raid", "NR")

	unknown := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations", map[string]string{"gamertag": "nobody"}, captain.Token)
	require.Equal(t, http.StatusNotFound, unknown.Code)
	require.Equal(t, "PLAYER_NOT_FOUND", testutil.ErrorCode(t, unknown))

	notCaptain := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations", map[string]string{"gamertag": "Captain"}, recruit.Token)
	require.Equal(t, http.StatusForbidden, notCaptain.Code)

	self := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations", map[string]string{"gamertag": "captain"}, captain.Token)
	require.Equal(t, http.StatusConflict, self.Code)
	require.Equal(t, "TEAM_MEMBER_EXISTS", testutil.ErrorCode(t, self))

	invitation := invite(t, env, captain.Token, team.ID, "recruit")
	require.Equal(t, "pending", invitation.Status)
	require.Equal(t, "Recruit", invitation.ToGamertag)
	require.Equal(t, "Captain", invitation.FromGamertag)

	dup := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations", map[string]string{"gamertag": "Recruit"}, captain.Token)
	require.Equal(t, http.StatusConflict, dup.Code)
	require.Equal(t, "INVITATION_PENDING", testutil.ErrorCode(t, dup))

	messages := env.Mailer.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, []string{recruit.User.Email}, messages[0].To)
	require.Contains(t, messages[0].Body, "http://arenahub.test/invitations")

	teamInvites := env.Request(http.MethodGet, "/api/teams/"+team.ID+"/invitations", nil, captain.Token)
	require.Equal(t, http.StatusOK, teamInvites.Code)
	var pending []invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, teamInvites).Data, &pending)
	require.Len(t, pending, 1)

	mine := env.Request(http.MethodGet, "/api/invitations", nil, recruit.Token)
	require.Equal(t, http.StatusOK, mine.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, mine).Data, &pending)
	require.Len(t, pending, 1)
	require.Equal(t, "Night Raid", pending[0].TeamName)

	hijack := env.Request(http.MethodPost, "/api/invitations/"+invitation.ID+"/accept", nil, captain.Token)
	require.Equal(t, http.StatusForbidden, hijack.Code)

	accept := env.Request(http.MethodPost, "/api/invitations/"+invitation.ID+"/accept", nil, recruit.Token)
	require.Equal(t, http.StatusOK, accept.Code, accept.Body.String())

	twice := env.Request(http.MethodPost, "/api/invitations/"+invitation.ID+"/accept", nil, recruit.Token)
	require.Equal(t, http.StatusConflict, twice.Code)
	require.Equal(t, "INVITATION_ALREADY_RESPONDED", testutil.ErrorCode(t, twice))

	get := env.Request(http.MethodGet, "/api/teams/"+team.ID, nil, recruit.Token)
	var loaded teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, get).Data, &loaded)
	require.Len(t, loaded.Members, 2)

	myTeams := env.Request(http.MethodGet, "/api/teams/mine", nil, recruit.Token)
	var teams []teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, myTeams).Data, &teams)
	require.Len(t, teams, 1)
	require.Equal(t, team.ID, teams[0].ID)

	var joined models.Notification
	require.NoError(t, env.DB.Where("user_id = ?", captain.User.ID).Order("created_at DESC").First(&joined).Error)
	require.Equal(t, "'Recruit' has joined your team: Night Raid.", joined.Message)
	require.Equal(t, "/teams/"+team.ID, joined.Link)
}

func TestTeamHandler_DeclineAndRevoke(t *testing.T) {
	env := testutil.NewEnv(t)
	captain := env.NewPlayer("Boss")
	first := env.NewPlayer("Maybe")
	second := env.NewPlayer("Never")

	team := createTeam(t, env, captain.Token, "Red Team", "RED")

	declined := invite(t, env, captain.Token, team.ID, "Maybe")
	decline := env.Request(http.MethodPost, "/api/invitations/"+declined.ID+"/decline", nil, first.Token)
	require.Equal(t, http.StatusOK, decline.Code, decline.Body.String())
	var answered invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, decline).Data, &answered)
	require.Equal(t, "declined", answered.Status)

	// a declined invitation does not block a new one
	invite(t, env, captain.Token, team.ID, "Maybe")

	revoked := invite(t, env, captain.Token, team.ID, "Never")
	notInviter := env.Request(http.MethodDelete, "/api/invitations/"+revoked.ID, nil, second.Token)
	require.Equal(t, http.StatusNotFound, notInviter.Code)

	revoke := env.Request(http.MethodDelete, "/api/invitations/"+revoked.ID, nil, captain.Token)
	require.Equal(t, http.StatusOK, revoke.Code, revoke.Body.String())

	mine := env.Request(http.MethodGet, "/api/invitations", nil, second.Token)
	var pending []invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, mine).Data, &pending)
	require.Empty(t, pending)
}

func TestTeamHandler_LeaveRemoveDelete(t *testing.T) {
	env := testutil.NewEnv(t)
	captain := env.NewPlayer("Leader")
	member := env.NewPlayer("Member")
	other := env.NewPlayer("Other")

	team := createTeam(t, env, captain.Token, "Blue Team", "BLU")
	for _, player := range []testutil.Player{member, other} {
		inv := invite(t, env, captain.Token, team.ID, player.User.Gamertag)
		resp := env.Request(http.MethodPost, "/api/invitations/"+inv.ID+"/accept", nil, player.Token)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}

	captainLeave := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/leave", nil, captain.Token)
	require.Equal(t, http.StatusConflict, captainLeave.Code)
	require.Equal(t, "TEAM_CAPTAIN_CANNOT_LEAVE", testutil.ErrorCode(t, captainLeave))

	leave := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/leave", nil, member.Token)
	require.Equal(t, http.StatusOK, leave.Code, leave.Body.String())

	notCaptain := env.Request(http.MethodDelete, "/api/teams/"+team.ID+"/members/"+captain.User.ID, nil, other.Token)
	require.Equal(t, http.StatusForbidden, notCaptain.Code)

	removeSelf := env.Request(http.MethodDelete, "/api/teams/"+team.ID+"/members/"+captain.User.ID, nil, captain.Token)
	require.Equal(t, http.StatusConflict, removeSelf.Code)

	remove := env.Request(http.MethodDelete, "/api/teams/"+team.ID+"/members/"+other.User.ID, nil, captain.Token)
	require.Equal(t, http.StatusOK, remove.Code, remove.Body.String())

	get := env.Request(http.MethodGet, "/api/teams/"+team.ID, nil, captain.Token)
	var loaded teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, get).Data, &loaded)
	require.Len(t, loaded.Members, 1)

	forbidden := env.Request(http.MethodDelete, "/api/teams/"+team.ID, nil, member.Token)
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	del := env.Request(http.MethodDelete, "/api/teams/"+team.ID, nil, captain.Token)
	require.Equal(t, http.StatusOK, del.Code, del.Body.String())

	gone := env.Request(http.MethodGet, "/api/teams/"+team.ID, nil, captain.Token)
	require.Equal(t, http.StatusNotFound, gone.Code)
	require.Equal(t, "TEAM_NOT_FOUND", testutil.ErrorCode(t, gone))
}
