package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/app"
	"github.com/charlesng35/arenahub/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minJWTSecretBytes         = 32
	recommendedJWTSecretBytes = 48
	maxRecommendedRefreshTTL  = 30 * 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed outright.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// AuditService evaluates the deployment's security configuration at startup.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. All dependencies are optional; missing
// inputs degrade specific checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkJWTSecret(),
		s.checkSessionTTL(),
		s.checkLockout(),
		s.checkCORS(),
		s.checkSMTP(),
		s.checkLockedAccounts(ctx),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}

	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func configMissing(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded, check skipped.",
		Remediation: "Load configuration before running the security audit.",
	}
}

func (s *AuditService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if s.cfg == nil {
		return configMissing(id)
	}

	length := len(strings.TrimSpace(s.cfg.Auth.JWT.Secret))

	switch {
	case length == 0:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: fmt.Sprintf("Provide a cryptographically secure signing secret (>= %d bytes).", minJWTSecretBytes),
		}
	case length < minJWTSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: fmt.Sprintf("Use a randomly generated secret of at least %d bytes.", minJWTSecretBytes),
		}
	case length < recommendedJWTSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to %d+ bytes.", length, recommendedJWTSecretBytes),
			Remediation: "Increase the length of ARENAHUB_AUTH_JWT_SECRET.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkSessionTTL() Check {
	const id = "session_refresh_ttl"
	if s.cfg == nil {
		return configMissing(id)
	}

	ttl := s.cfg.Auth.Session.RefreshTTL
	if ttl <= 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Refresh token TTL is not configured; using default duration.",
			Remediation: "Set ARENAHUB_AUTH_SESSION_REFRESH_TOKEN_TTL to control session lifetime.",
		}
	}

	if ttl > maxRecommendedRefreshTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedRefreshTTL),
			Remediation: "Reduce refresh token TTL to 30 days or lower.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Refresh token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *AuditService) checkLockout() Check {
	const id = "login_lockout"
	if s.cfg == nil {
		return configMissing(id)
	}

	local := s.cfg.Auth.LocalProviderConfig()
	if local.LockoutThreshold > 10 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Accounts lock only after %d failed logins.", local.LockoutThreshold),
			Remediation: "Lower ARENAHUB_AUTH_LOCAL_LOCKOUT_THRESHOLD to slow password guessing.",
			Details:     map[string]any{"threshold": local.LockoutThreshold},
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Accounts lock for %s after %d failed logins.", local.LockoutDuration, local.LockoutThreshold),
	}
}

func (s *AuditService) checkCORS() Check {
	const id = "cors_origins"
	if s.cfg == nil {
		return configMissing(id)
	}

	for _, origin := range s.cfg.Server.CORSOrigins {
		if strings.TrimSpace(origin) == "*" {
			return Check{
				ID:          id,
				Status:      StatusWarn,
				Message:     "CORS allows any origin.",
				Remediation: "List the frontend origins explicitly in server.cors_origins.",
			}
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "CORS origins are restricted.",
		Details: map[string]any{"origins": len(s.cfg.Server.CORSOrigins)},
	}
}

func (s *AuditService) checkSMTP() Check {
	const id = "smtp_transport"
	if s.cfg == nil {
		return configMissing(id)
	}

	smtp := s.cfg.Email.SMTP
	switch {
	case !smtp.Enabled:
		return Check{ID: id, Status: StatusPass, Message: "Outbound email disabled."}
	case !smtp.UseTLS:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "SMTP credentials are sent without TLS.",
			Remediation: "Enable email.smtp.use_tls.",
		}
	default:
		return Check{ID: id, Status: StatusPass, Message: "SMTP uses TLS."}
	}
}

func (s *AuditService) checkLockedAccounts(ctx context.Context) Check {
	const id = "locked_accounts"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to count locked accounts.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("locked_until IS NOT NULL AND locked_until > ?", s.now().UTC()).
		Count(&count).Error; err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count locked accounts: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count > 0 {
		return Check{
			ID:      id,
			Status:  StatusWarn,
			Message: fmt.Sprintf("%d accounts are currently locked out.", count),
			Details: map[string]any{"count": count},
		}
	}

	return Check{ID: id, Status: StatusPass, Message: "No locked accounts."}
}
