package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/arenahub/internal/auth"
	"github.com/charlesng35/arenahub/internal/cache"
	"github.com/charlesng35/arenahub/internal/monitoring"
	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/logger"
)

const (
	defaultAuditRetentionDays        = 90
	defaultNotificationRetentionDays = 30
	defaultSessionSpec               = "@hourly"
	defaultAuditSpec                 = "@daily"
	defaultNotificationSpec          = "@daily"
	defaultChallengeSpec             = "@hourly"
	defaultCacheSpec                 = "@every 10m"
)

// Job names as reported to monitoring.
const (
	JobSessionCleanup        = "session_cleanup"
	JobAuditRetention        = "audit_retention"
	JobNotificationRetention = "notification_retention"
	JobChallengeExpiry       = "challenge_expiry"
	JobCachePurge            = "cache_purge"
)

// Cleaner coordinates background maintenance: purging expired sessions, pruning
// audit logs and read notifications, expiring stale challenges and purging the
// database cache.
type Cleaner struct {
	sessions      *iauth.SessionService
	audit         *services.AuditService
	notifications *services.NotificationService
	challenges    *services.ChallengeService
	purger        cache.Purger

	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	auditRetention        int
	notificationRetention int
	challengeTTL          time.Duration

	sessionSchedule      string
	auditSchedule        string
	notificationSchedule string
	challengeSchedule    string
	cacheSchedule        string
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.auditRetention = days
		}
	}
}

// WithNotifications enables pruning of read notifications older than days.
func WithNotifications(svc *services.NotificationService, days int) Option {
	return func(cleaner *Cleaner) {
		cleaner.notifications = svc
		if days > 0 {
			cleaner.notificationRetention = days
		}
	}
}

// WithChallengeExpiry cancels open challenges older than ttl. A zero ttl disables the job.
func WithChallengeExpiry(svc *services.ChallengeService, ttl time.Duration) Option {
	return func(cleaner *Cleaner) {
		cleaner.challenges = svc
		cleaner.challengeTTL = ttl
	}
}

// WithCachePurger removes expired cache entries on a schedule.
func WithCachePurger(purger cache.Purger) Option {
	return func(cleaner *Cleaner) {
		cleaner.purger = purger
	}
}

// WithSchedules overrides the cron specifications. Empty values keep the defaults.
func WithSchedules(session, audit, notification, challenge, cacheSpec string) Option {
	return func(cleaner *Cleaner) {
		cleaner.sessionSchedule = orDefault(session, cleaner.sessionSchedule)
		cleaner.auditSchedule = orDefault(audit, cleaner.auditSchedule)
		cleaner.notificationSchedule = orDefault(notification, cleaner.notificationSchedule)
		cleaner.challengeSchedule = orDefault(challenge, cleaner.challengeSchedule)
		cleaner.cacheSchedule = orDefault(cacheSpec, cleaner.cacheSchedule)
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions *iauth.SessionService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:              sessions,
		audit:                 audit,
		now:                   time.Now,
		auditRetention:        defaultAuditRetentionDays,
		notificationRetention: defaultNotificationRetentionDays,
		sessionSchedule:       defaultSessionSpec,
		auditSchedule:         defaultAuditSpec,
		notificationSchedule:  defaultNotificationSpec,
		challengeSchedule:     defaultChallengeSpec,
		cacheSchedule:         defaultCacheSpec,
		log:                   logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

func (c *Cleaner) jobs() []job {
	var jobs []job

	if c.sessions != nil {
		jobs = append(jobs, job{JobSessionCleanup, c.sessionSchedule, c.sessions.CleanupExpired})
	}
	if c.audit != nil && c.auditRetention > 0 {
		jobs = append(jobs, job{JobAuditRetention, c.auditSchedule, func(ctx context.Context) (int64, error) {
			return c.audit.CleanupOlderThan(ctx, c.auditRetention)
		}})
	}
	if c.notifications != nil && c.notificationRetention > 0 {
		jobs = append(jobs, job{JobNotificationRetention, c.notificationSchedule, func(ctx context.Context) (int64, error) {
			cutoff := c.now().AddDate(0, 0, -c.notificationRetention)
			return c.notifications.PurgeReadOlderThan(ctx, cutoff)
		}})
	}
	if c.challenges != nil && c.challengeTTL > 0 {
		jobs = append(jobs, job{JobChallengeExpiry, c.challengeSchedule, func(ctx context.Context) (int64, error) {
			return c.challenges.ExpireStale(ctx, c.challengeTTL)
		}})
	}
	if c.purger != nil {
		jobs = append(jobs, job{JobCachePurge, c.cacheSchedule, c.purger.PurgeExpired})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			_ = c.execute(context.Background(), j)
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	removed, err := j.run(ctx)
	duration := time.Since(start)

	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		monitoring.RecordMaintenanceRun(j.name, "failure", err.Error(), duration)
		return err
	}

	if removed > 0 {
		c.log.Info("maintenance job completed",
			zap.String("job", j.name),
			zap.Int64("affected", removed),
			zap.Duration("duration", duration),
		)
	}
	monitoring.RecordMaintenanceRun(j.name, "success", "", duration)
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
