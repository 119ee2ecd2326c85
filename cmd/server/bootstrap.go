package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/api"
	"github.com/charlesng35/arenahub/internal/app"
	"github.com/charlesng35/arenahub/internal/app/maintenance"
	iauth "github.com/charlesng35/arenahub/internal/auth"
	"github.com/charlesng35/arenahub/internal/cache"
	"github.com/charlesng35/arenahub/internal/database"
	"github.com/charlesng35/arenahub/internal/middleware"
	"github.com/charlesng35/arenahub/internal/monitoring"
	"github.com/charlesng35/arenahub/internal/monitoring/checks"
	"github.com/charlesng35/arenahub/internal/realtime"
	"github.com/charlesng35/arenahub/internal/security"
	"github.com/charlesng35/arenahub/internal/storage"
	"github.com/charlesng35/arenahub/pkg/logger"
	"github.com/charlesng35/arenahub/pkg/mail"
)

const (
	databaseProbeTimeout = 2 * time.Second
	storageProbeTimeout  = 3 * time.Second
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Cache      *cache.DatabaseStore
	Storage    storage.Store
	Hub        *realtime.Hub
	Mailer     mail.Mailer
	Monitoring *monitoring.Module
	Services   *api.Services
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, stores, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background(), log); shutdownErr != nil {
				log.Warn("partial bootstrap cleanup failed", zap.Error(shutdownErr))
			}
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Cache = cache.NewDatabaseStore(stack.DB)

	logSecurityAudit(ctx, security.NewAuditService(stack.DB, cfg), log)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewStoreSessionCache(stack.Cache)

	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	stack.Storage, err = cfg.Storage.OpenStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Realtime.Enabled {
		stack.Hub = realtime.NewHub(realtime.Options{
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			BufferSize:     cfg.Realtime.BufferSize,
		})
	}

	if cfg.Email.SMTP.Enabled {
		stack.Mailer, err = mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	stack.RateStore = middleware.NewCacheRateStore(stack.Cache)

	deps := api.Dependencies{
		DB:         stack.DB,
		JWT:        jwtSvc,
		Sessions:   sessionSvc,
		Config:     cfg,
		RateStore:  stack.RateStore,
		Hub:        stack.Hub,
		Storage:    stack.Storage,
		Monitoring: stack.Monitoring,
		Mailer:     stack.Mailer,
	}
	stack.Services, err = api.NewServices(deps)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}
	deps.Services = stack.Services

	registerHealthChecks(stack, cfg)

	if cfg.Maintenance.Enabled {
		stack.Cleaner = newCleaner(cfg, sessionSvc, stack)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func logSecurityAudit(ctx context.Context, audit *security.AuditService, log *zap.Logger) {
	result := audit.Run(ctx)
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
	log.Info("security audit complete",
		zap.Int("pass", result.Summary[string(security.StatusPass)]),
		zap.Int("warn", result.Summary[string(security.StatusWarn)]),
		zap.Int("fail", result.Summary[string(security.StatusFail)]),
	)
}

func registerHealthChecks(stack *runtimeStack, cfg *app.Config) {
	health := stack.Monitoring.Health()
	health.RegisterReadiness(checks.Database(stack.DB, databaseProbeTimeout))
	health.RegisterReadiness(checks.Storage(stack.Storage, storageProbeTimeout))
	if stack.Hub != nil {
		health.RegisterLiveness(checks.Realtime(stack.Hub))
	}
	if cfg.Maintenance.Enabled {
		health.RegisterReadiness(checks.Maintenance(stack.Monitoring, 0))
	}
}

func newCleaner(cfg *app.Config, sessions *iauth.SessionService, stack *runtimeStack) *maintenance.Cleaner {
	m := cfg.Maintenance
	opts := []maintenance.Option{
		maintenance.WithAuditRetentionDays(m.AuditRetentionDays),
		maintenance.WithNotifications(stack.Services.Notifications, m.NotificationRetentionDays),
		maintenance.WithChallengeExpiry(stack.Services.Challenges, cfg.Features.Challenges.OpenTTL),
		maintenance.WithCachePurger(stack.Cache),
		maintenance.WithSchedules(m.SessionSchedule, m.AuditSchedule, m.NotificationSchedule, m.ChallengeSchedule, m.CacheSchedule),
	}
	return maintenance.NewCleaner(sessions, stack.Services.Audit, opts...)
}

// Shutdown stops background jobs, closes websocket clients and releases the database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance shutdown cleanup: %w", err))
		}
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}

	if errs != nil {
		log.Warn("runtime shutdown incomplete", zap.Error(errs))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:            strings.TrimSpace(cfg.Database.Path),
		DSN:             strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		applyDBAuth(&dbCfg, cfg.Database.Postgres)
	case "mysql":
		applyDBAuth(&dbCfg, cfg.Database.MySQL)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func applyDBAuth(dbCfg *database.Config, auth app.DBAuthConfig) {
	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
}

func closeDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
