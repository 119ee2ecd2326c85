package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/database"
	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/pkg/crypto"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrEmailInUse         = errors.New("auth: email already in use")
	ErrGamertagInUse      = errors.New("auth: gamertag already in use")
	ErrWeakPassword       = errors.New("auth: password too weak")
)

// LocalConfig tunes lockout behaviour.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput identifies a player by email or gamertag.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
}

type RegisterInput struct {
	Gamertag string
	Email    string
	Password string
}

// LocalProvider implements email/gamertag + password authentication with
// account lockout after repeated failures.
type LocalProvider struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}
	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies credentials and returns the player on success.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	db := p.db.WithContext(ctx)
	var user models.User
	err := db.Where("email = ? OR gamertag_key = ?", models.NormaliseEmail(identity), models.NormaliseGamertag(identity)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}

	now := p.clock()
	if user.LockedUntil != nil {
		if user.LockedUntil.After(now) {
			return nil, ErrAccountLocked
		}
		user.LockedUntil = nil
		user.FailedAttempts = 0
		if err := db.Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("local provider: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, p.recordFailure(db, &user, now)
	}

	user.FailedAttempts = 0
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(input.IPAddress)
	if err := db.Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   user.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("local provider: update user: %w", err)
	}
	return &user, nil
}

func (p *LocalProvider) recordFailure(db *gorm.DB, user *models.User, now time.Time) error {
	user.FailedAttempts++
	updates := map[string]any{"failed_attempts": user.FailedAttempts}

	locked := user.FailedAttempts >= p.threshold
	if locked {
		until := now.Add(p.duration)
		user.LockedUntil = &until
		updates["locked_until"] = until
	}

	if err := db.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: update failed attempts: %w", err)
	}
	if locked {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// Register creates a player with a hashed password. Email and gamertag are
// unique case-insensitively.
func (p *LocalProvider) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	gamertag := strings.TrimSpace(input.Gamertag)
	email := models.NormaliseEmail(input.Email)
	if gamertag == "" || email == "" {
		return nil, errors.New("local provider: gamertag and email are required")
	}
	if len(input.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	db := p.db.WithContext(ctx)
	if err := p.ensureAvailable(db, "email = ?", email, ErrEmailInUse); err != nil {
		return nil, err
	}
	if err := p.ensureAvailable(db, "gamertag_key = ?", models.NormaliseGamertag(gamertag), ErrGamertagInUse); err != nil {
		return nil, err
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("local provider: hash password: %w", err)
	}

	user := &models.User{
		Gamertag: gamertag,
		Email:    email,
		Password: hashed,
	}
	if err := db.Create(user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			// lost a race with a concurrent sign-up
			if strings.Contains(strings.ToLower(err.Error()), "email") {
				return nil, ErrEmailInUse
			}
			return nil, ErrGamertagInUse
		}
		return nil, fmt.Errorf("local provider: create user: %w", err)
	}
	return user, nil
}

func (p *LocalProvider) ensureAvailable(db *gorm.DB, query string, value string, inUse error) error {
	var count int64
	if err := db.Model(&models.User{}).Where(query, value).Count(&count).Error; err != nil {
		return fmt.Errorf("local provider: check availability: %w", err)
	}
	if count > 0 {
		return inUse
	}
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (p *LocalProvider) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("local provider: user id is required")
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	db := p.db.WithContext(ctx)
	var user models.User
	if err := db.Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("local provider: find user: %w", err)
	}
	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("local provider: hash password: %w", err)
	}
	if err := db.Model(&user).UpdateColumn("password", hashed).Error; err != nil {
		return fmt.Errorf("local provider: update password: %w", err)
	}
	return nil
}
