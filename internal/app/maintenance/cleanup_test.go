package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/arenahub/internal/auth"
	"github.com/charlesng35/arenahub/internal/cache"
	testutil "github.com/charlesng35/arenahub/internal/database/testutil"
	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/crypto"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)
	notificationSvc, err := services.NewNotificationService(db, nil)
	require.NoError(t, err)
	challengeSvc, err := services.NewChallengeService(db, notificationSvc, nil, nil)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "cleanup-secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{
		RefreshTokenTTL: time.Hour,
		RefreshLength:   16,
	})
	require.NoError(t, err)

	user := seedUser(t, db, "CleanupUser")
	subject := iauth.Subject{UserID: user.ID, Gamertag: user.Gamertag}

	_, expiredSession, err := sessionSvc.CreateSession(ctx, subject, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", expiredSession.ID).
		Update("expires_at", time.Now().Add(-2*time.Hour)).Error)

	_, activeSession, err := sessionSvc.CreateSession(ctx, subject, iauth.SessionMetadata{})
	require.NoError(t, err)

	_, revokedSession, err := sessionSvc.CreateSession(ctx, subject, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, sessionSvc.RevokeSession(ctx, revokedSession.ID))

	// Audit log older than the retention window.
	require.NoError(t, auditSvc.Log(ctx, services.AuditEntry{
		Action:   "challenge.create",
		Result:   "success",
		Gamertag: user.Gamertag,
	}))
	require.NoError(t, db.Model(&models.AuditLog{}).Where("1 = 1").
		Update("created_at", time.Now().AddDate(0, 0, -10)).Error)

	// One old read notification, one old unread notification.
	readNote, err := notificationSvc.Create(ctx, services.CreateNotificationInput{UserID: user.ID, Message: "old read"})
	require.NoError(t, err)
	_, err = notificationSvc.MarkRead(ctx, user.ID, readNote.ID)
	require.NoError(t, err)
	_, err = notificationSvc.Create(ctx, services.CreateNotificationInput{UserID: user.ID, Message: "old unread"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Notification{}).Where("1 = 1").
		Update("created_at", time.Now().AddDate(0, 0, -40)).Error)

	// A stale open challenge and a fresh one.
	stale, err := challengeSvc.Create(ctx, services.CreateChallengeInput{CreatorID: user.ID, Game: "Rocket League"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Challenge{}).Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-72*time.Hour)).Error)
	fresh, err := challengeSvc.Create(ctx, services.CreateChallengeInput{CreatorID: user.ID, Game: "Valorant"})
	require.NoError(t, err)

	store := cache.NewDatabaseStore(db)
	require.NoError(t, store.Set(ctx, "expired", []byte("x"), time.Millisecond))
	require.NoError(t, store.Set(ctx, "kept", []byte("y"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	c := NewCleaner(sessionSvc, auditSvc,
		WithAuditRetentionDays(7),
		WithNotifications(notificationSvc, 30),
		WithChallengeExpiry(challengeSvc, 24*time.Hour),
		WithCachePurger(store),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(ctx))

	assertNotFound := func(id string) {
		var s models.Session
		err := db.First(&s, "id = ?", id).Error
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	}
	assertNotFound(expiredSession.ID)
	assertNotFound(revokedSession.ID)

	var remaining models.Session
	require.NoError(t, db.First(&remaining, "id = ?", activeSession.ID).Error)

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Equal(t, int64(0), count)

	var notes []models.Notification
	require.NoError(t, db.Find(&notes).Error)
	require.Len(t, notes, 1)
	require.Equal(t, "old unread", notes[0].Message)

	got, err := challengeSvc.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChallengeStatusCancelled, got.Status)
	got, err = challengeSvc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChallengeStatusOpen, got.Status)

	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

type failingPurger struct{}

func (failingPurger) PurgeExpired(context.Context) (int64, error) {
	return 0, errors.New("purge failed")
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	c := NewCleaner(nil, auditSvc, WithCachePurger(failingPurger{}))
	err = c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "purge failed")
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(nil, nil,
		WithCachePurger(cache.NewMemoryStore()),
		WithSchedules("", "", "", "", "@every 1h"),
		WithCron(scheduler),
	)

	require.NoError(t, c.Start())
	require.Len(t, scheduler.Entries(), 1)
	<-c.Stop().Done()
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(nil, nil,
		WithCachePurger(cache.NewMemoryStore()),
		WithSchedules("", "", "", "", "not a schedule"),
	)
	require.Error(t, c.Start())
}

func TestCleanerWithoutJobs(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
}

func seedUser(t *testing.T, db *gorm.DB, gamertag string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("Password123!")
	require.NoError(t, err)

	user := &models.User{
		Gamertag: gamertag,
		Email:    gamertag + "@example.com",
		Password: hash,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
