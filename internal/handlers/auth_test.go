package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/arenahub/internal/handlers/testutil"
)

func TestAuthHandler_SignupLoginRefreshLogout(t *testing.T) {
	env := testutil.NewEnv(t)

	signup := env.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"gamertag": "NightOwl",
		"email":    "owl@example.com",
		"password": "hunter22",
	}, "")
	require.Equal(t, http.StatusCreated, signup.Code, signup.Body.String())

	var created testutil.LoginResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, signup).Data, &created)
	require.Equal(t, "NightOwl", created.User.Gamertag)
	require.Equal(t, "owl@example.com", created.User.Email)
	require.NotEmpty(t, created.Tokens.AccessToken)

	// gamertag lookups ignore case
	login := env.Login("nightowl", "hunter22")
	require.Equal(t, created.User.ID, login.User.ID)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, me.Code)
	var profile testutil.UserPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, me).Data, &profile)
	require.Equal(t, "owl@example.com", profile.Email)

	refresh := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": login.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, refresh.Code, refresh.Body.String())
	var refreshed testutil.TokenPair
	testutil.DecodeInto(t, testutil.DecodeResponse(t, refresh).Data, &refreshed)
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEqual(t, login.Tokens.RefreshToken, refreshed.RefreshToken)

	reused := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": login.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, reused.Code)

	logout := env.Request(http.MethodPost, "/api/auth/logout", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, logout.Code, logout.Body.String())

	afterLogout := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refreshed.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, afterLogout.Code)

	unauth := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, unauth.Code)
}

func TestAuthHandler_SignupErrors(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("Taken", "Secret123!")

	cases := []struct {
		name    string
		payload map[string]string
		status  int
		code    string
	}{
		{
			name:    "gamertag in use",
			payload: map[string]string{"gamertag": "taken", "email": "new@example.com", "password": "Secret123!"},
			status:  http.StatusConflict,
			code:    "GAMERTAG_IN_USE",
		},
		{
			name:    "weak password",
			payload: map[string]string{"gamertag": "Fresh", "email": "fresh@example.com", "password": "abc"},
			status:  http.StatusBadRequest,
			code:    "WEAK_PASSWORD",
		},
		{
			name:    "invalid gamertag",
			payload: map[string]string{"gamertag": "a b", "email": "space@example.com", "password": "Secret123!"},
			status:  http.StatusBadRequest,
			code:    "INVALID_GAMERTAG",
		},
		{
			name:    "invalid email",
			payload: map[string]string{"gamertag": "Mailless", "email": "not-an-email", "password": "Secret123!"},
			status:  http.StatusBadRequest,
			code:    "BAD_REQUEST",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.Request(http.MethodPost, "/api/auth/signup", tc.payload, "")
			require.Equal(t, tc.status, resp.Code, resp.Body.String())
			require.Equal(t, tc.code, testutil.ErrorCode(t, resp))
		})
	}
}

func TestAuthHandler_SignupDuplicateEmail(t *testing.T) {
	env := testutil.NewEnv(t)

	first := env.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"gamertag": "First", "email": "dup@example.com", "password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := env.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"gamertag": "Second", "email": "DUP@example.com", "password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusConflict, second.Code, second.Body.String())
	require.Equal(t, "EMAIL_IN_USE", testutil.ErrorCode(t, second))
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/login", map[string]any{
		"identifier": " ",
		"password":   "",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "BAD_REQUEST", testutil.ErrorCode(t, resp))
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Lockable", "Secret123!")

	resp := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": user.Email,
		"password":   "nope-nope",
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.ErrorCode(t, resp))
}

func TestAuthHandler_ChangePasswordRevokesSessions(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Rotator", "Secret123!")

	first := env.Login(user.Gamertag, "Secret123!")
	second := env.Login(user.Email, "Secret123!")

	wrong := env.Request(http.MethodPost, "/api/auth/password", map[string]string{
		"current_password": "not-it",
		"new_password":     "Fresh456!",
	}, first.Tokens.AccessToken)
	require.Equal(t, http.StatusUnauthorized, wrong.Code, wrong.Body.String())
	require.Equal(t, "INVALID_CREDENTIALS", testutil.ErrorCode(t, wrong))

	weak := env.Request(http.MethodPost, "/api/auth/password", map[string]string{
		"current_password": "Secret123!",
		"new_password":     "abc",
	}, first.Tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, weak.Code, weak.Body.String())
	require.Equal(t, "WEAK_PASSWORD", testutil.ErrorCode(t, weak))

	anonymous := env.Request(http.MethodPost, "/api/auth/password", map[string]string{
		"current_password": "Secret123!",
		"new_password":     "Fresh456!",
	}, "")
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)

	changed := env.Request(http.MethodPost, "/api/auth/password", map[string]string{
		"current_password": "Secret123!",
		"new_password":     "Fresh456!",
	}, first.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, changed.Code, changed.Body.String())

	// every session, including the other device's, is gone
	for _, refresh := range []string{first.Tokens.RefreshToken, second.Tokens.RefreshToken} {
		resp := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refresh}, "")
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	}

	old := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": user.Gamertag,
		"password":   "Secret123!",
	}, "")
	require.Equal(t, http.StatusUnauthorized, old.Code)

	relogin := env.Login(user.Gamertag, "Fresh456!")
	require.Equal(t, user.ID, relogin.User.ID)
}
