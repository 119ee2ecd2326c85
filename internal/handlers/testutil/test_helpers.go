package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/api"
	"github.com/charlesng35/arenahub/internal/app"
	iauth "github.com/charlesng35/arenahub/internal/auth"
	sharedtestutil "github.com/charlesng35/arenahub/internal/database/testutil"
	"github.com/charlesng35/arenahub/internal/middleware"
	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/monitoring"
	"github.com/charlesng35/arenahub/internal/monitoring/checks"
	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/internal/storage"
	"github.com/charlesng35/arenahub/pkg/mail"
	"github.com/charlesng35/arenahub/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Config   *app.Config
	Services *api.Services
	Storage  storage.Store
	Mailer   *mail.Recorder
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	cfg := &app.Config{
		Server: app.ServerConfig{
			PublicURL: "http://arenahub.test",
			RateLimit: app.RateLimitConfig{Requests: 10000, Window: time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Features: app.FeatureConfig{
			Notifications:    app.NotificationConfig{Enabled: true},
			EmailInvitations: app.EmailInvitationConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	mon, err := monitoring.NewModule(monitoring.Options{Gatherer: prometheus.DefaultGatherer})
	require.NoError(t, err)
	mon.Health().RegisterReadiness(checks.Database(db, time.Second))

	store := storage.NewLocalStoreFs(afero.NewMemMapFs())
	recorder := &mail.Recorder{}

	deps := api.Dependencies{
		DB:         db,
		JWT:        jwtSvc,
		Sessions:   sessionSvc,
		Config:     cfg,
		RateStore:  middleware.NewMemoryRateStore(),
		Storage:    store,
		Monitoring: mon,
		Mailer:     recorder,
	}
	deps.Services, err = api.NewServices(deps)
	require.NoError(t, err)

	router, err := api.NewRouter(deps)
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Config:   cfg,
		Services: deps.Services,
		Storage:  store,
		Mailer:   recorder,
	}
}

// CreateUser registers a player with a random email and returns the stored record.
func (e *Env) CreateUser(gamertag, password string) *models.User {
	e.T.Helper()

	result, err := e.Services.Auth.Signup(context.Background(), services.SignupInput{
		Gamertag: gamertag,
		Email:    gamertag + "-" + uuid.NewString()[:8] + "@example.com",
		Password: password,
	}, iauth.SessionMetadata{IPAddress: "127.0.0.1"})
	require.NoError(e.T, err)

	var user models.User
	require.NoError(e.T, e.DB.Take(&user, "id = ?", result.User.ID).Error)
	return &user
}

// UserPayload captures the profile fields returned from auth endpoints.
type UserPayload struct {
	ID        string `json:"id"`
	Gamertag  string `json:"gamertag"`
	Email     string `json:"email"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// TokenPair mirrors the token payload issued on login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPair   `json:"tokens"`
	User   UserPayload `json:"user"`
}

// Login authenticates using the local provider and returns the issued token pair.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	return result
}

// Player is a registered user plus a fresh access token.
type Player struct {
	User  *models.User
	Token string
}

// NewPlayer creates a user and logs them in.
func (e *Env) NewPlayer(gamertag string) Player {
	e.T.Helper()
	const password = "Secret123!"
	user := e.CreateUser(gamertag, password)
	login := e.Login(user.Gamertag, password)
	return Player{User: user, Token: login.Tokens.AccessToken}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ErrorCode returns the error code of a failed response envelope.
func ErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success, w.Body.String())
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.Do(req, token)
}

// Do sends a prepared request, adding the bearer token when set.
func (e *Env) Do(req *http.Request, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
