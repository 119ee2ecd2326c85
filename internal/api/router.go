package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/app"
	iauth "github.com/charlesng35/arenahub/internal/auth"
	"github.com/charlesng35/arenahub/internal/auth/providers"
	"github.com/charlesng35/arenahub/internal/handlers"
	"github.com/charlesng35/arenahub/internal/middleware"
	"github.com/charlesng35/arenahub/internal/monitoring"
	"github.com/charlesng35/arenahub/internal/realtime"
	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/internal/storage"
	"github.com/charlesng35/arenahub/pkg/mail"
)

const (
	defaultRateLimitRequests = 120
	defaultRateLimitWindow   = time.Minute
)

// Dependencies bundles the long-lived components the router is built from.
// Hub, Storage, Monitoring, Mailer and RateStore are optional.
type Dependencies struct {
	DB         *gorm.DB
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	Config     *app.Config
	RateStore  middleware.RateStore
	Hub        *realtime.Hub
	Storage    storage.Store
	Monitoring *monitoring.Module
	Mailer     mail.Mailer
	// Services is built from the other fields when nil.
	Services *Services
}

// Services holds the domain services behind the HTTP handlers.
type Services struct {
	Audit         *services.AuditService
	Auth          *services.AuthService
	Users         *services.UserService
	Notifications *services.NotificationService
	Challenges    *services.ChallengeService
	Chat          *services.MatchChatService
	Teams         *services.TeamService
	Invitations   *services.InvitationService
}

func (d Dependencies) validate() error {
	if d.DB == nil {
		return fmt.Errorf("database handle must be provided")
	}
	if d.JWT == nil {
		return fmt.Errorf("jwt service must be provided")
	}
	if d.Sessions == nil {
		return fmt.Errorf("session service must be provided")
	}
	if d.Config == nil {
		return fmt.Errorf("config must be provided")
	}
	return nil
}

func (d Dependencies) publisher() realtime.Publisher {
	if d.Hub == nil {
		return nil
	}
	return d.Hub
}

// NewServices constructs every domain service from deps.
func NewServices(deps Dependencies) (*Services, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config
	publisher := deps.publisher()

	audit, err := services.NewAuditService(deps.DB)
	if err != nil {
		return nil, err
	}

	local, err := providers.NewLocalProvider(deps.DB, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, err
	}
	authSvc, err := services.NewAuthService(local, deps.Sessions, audit)
	if err != nil {
		return nil, err
	}

	users, err := services.NewUserService(deps.DB, deps.Storage, audit)
	if err != nil {
		return nil, err
	}

	notifications, err := services.NewNotificationService(deps.DB, publisher)
	if err != nil {
		return nil, err
	}

	challenges, err := services.NewChallengeService(deps.DB, notifications, publisher, audit)
	if err != nil {
		return nil, err
	}

	chat, err := services.NewMatchChatService(deps.DB, challenges, publisher)
	if err != nil {
		return nil, err
	}

	teams, err := services.NewTeamService(deps.DB, notifications, publisher, audit)
	if err != nil {
		return nil, err
	}

	var inviteOpts []services.InvitationOption
	if deps.Mailer != nil && cfg.Features.EmailInvitations.Enabled {
		inviteOpts = append(inviteOpts, services.WithInvitationMailer(deps.Mailer, cfg.Server.PublicURL))
	}
	invitations, err := services.NewInvitationService(deps.DB, notifications, publisher, audit, inviteOpts...)
	if err != nil {
		return nil, err
	}

	return &Services{
		Audit:         audit,
		Auth:          authSvc,
		Users:         users,
		Notifications: notifications,
		Challenges:    challenges,
		Chat:          chat,
		Teams:         teams,
		Invitations:   invitations,
	}, nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	svc := deps.Services
	if svc == nil {
		var err error
		if svc, err = NewServices(deps); err != nil {
			return nil, err
		}
	}

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}
	requests := cfg.Server.RateLimit.Requests
	if requests <= 0 {
		requests = defaultRateLimitRequests
	}
	window := cfg.Server.RateLimit.Window
	if window <= 0 {
		window = defaultRateLimitWindow
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSWithOrigins(cfg.Server.CORSOrigins))
	r.Use(middleware.RateLimitWithStore(rateStore, requests, window))

	registerHealthRoutes(r, cfg, deps.Monitoring)
	registerMetricsRoute(r, cfg, deps.Monitoring)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	registerAuthRoutes(r, api, handlers.NewAuthHandler(svc.Auth, svc.Users))
	registerUserRoutes(r, api, handlers.NewUserHandler(svc.Users), handlers.NewProfileHandler(svc.Users))
	registerChallengeRoutes(api, handlers.NewChallengeHandler(svc.Challenges), handlers.NewMatchHandler(svc.Challenges, svc.Chat))
	registerTeamRoutes(api, handlers.NewTeamHandler(svc.Teams, svc.Invitations), handlers.NewInvitationHandler(svc.Invitations))
	if cfg.Features.Notifications.Enabled {
		registerNotificationRoutes(api, handlers.NewNotificationHandler(svc.Notifications))
	}
	registerAuditRoutes(api, handlers.NewAuditHandler(svc.Audit))

	if deps.Hub != nil && cfg.Realtime.Enabled {
		realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, realtime.Streams...)
		r.GET("/api/realtime", middleware.AuthWithQueryToken(deps.JWT), realtimeHandler.Stream)
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if !cfg.Monitoring.Prometheus.Enabled || mon == nil {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
