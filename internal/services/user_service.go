package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/storage"
	apperrors "github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/validator"
)

const (
	// MaxBioLength caps the profile bio in characters.
	MaxBioLength = 500
	// MaxAvatarBytes caps uploaded profile pictures.
	MaxAvatarBytes = 2 << 20
)

var avatarContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// UserProfile is the public view of a player. Email is only set when the
// viewer is the player themself.
type UserProfile struct {
	ID          string     `json:"id"`
	Gamertag    string     `json:"gamertag"`
	Email       string     `json:"email,omitempty"`
	Bio         string     `json:"bio"`
	AvatarURL   string     `json:"avatar_url"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// NewUserProfile maps a user row to its profile view.
func NewUserProfile(user *models.User, self bool) UserProfile {
	profile := UserProfile{
		ID:        user.ID,
		Gamertag:  user.Gamertag,
		Bio:       user.Bio,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
	}
	if self {
		profile.Email = user.Email
		profile.LastLoginAt = user.LastLoginAt
	}
	return profile
}

// UpdateProfileInput lists the profile fields a player may edit.
type UpdateProfileInput struct {
	Gamertag *string
	Bio      *string
}

// UserService reads player profiles and applies profile edits.
type UserService struct {
	db    *gorm.DB
	store storage.Store
	audit *AuditService
	now   func() time.Time
}

// NewUserService constructs a UserService. store may be nil when avatar
// uploads are disabled.
func NewUserService(db *gorm.DB, store storage.Store, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, store: store, audit: audit, now: time.Now}, nil
}

// GetByID loads a user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// FindByGamertag looks a player up by gamertag, ignoring case.
func (s *UserService) FindByGamertag(ctx context.Context, gamertag string) (*models.User, error) {
	ctx = ensureContext(ctx)
	key := models.NormaliseGamertag(gamertag)
	if key == "" {
		return nil, ErrPlayerNotFound
	}
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "gamertag_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find by gamertag: %w", err)
	}
	return &user, nil
}

// UpdateProfile changes the caller's gamertag and bio.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Gamertag != nil {
		gamertag := strings.TrimSpace(*input.Gamertag)
		if !validator.IsGamertag(gamertag) {
			return nil, ErrInvalidGamertag
		}
		if gamertag != user.Gamertag {
			updates["gamertag"] = gamertag
			updates["gamertag_key"] = models.NormaliseGamertag(gamertag)
		}
	}
	if input.Bio != nil {
		bio := strings.TrimSpace(*input.Bio)
		if runeLength(bio) > MaxBioLength {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("bio must be at most %d characters", MaxBioLength))
		}
		updates["bio"] = bio
	}
	if len(updates) == 0 {
		return user, nil
	}

	if key, ok := updates["gamertag_key"]; ok {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("gamertag_key = ? AND id <> ?", key, user.ID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("user service: check gamertag: %w", err)
		}
		if count > 0 {
			return nil, ErrGamertagInUse
		}
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumns(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrGamertagInUse
		}
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "profile.update",
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{"fields": updatedFields(updates)},
	})

	return s.GetByID(ctx, user.ID)
}

// UploadAvatar stores a profile picture and points the user's avatar URL at it.
func (s *UserService) UploadAvatar(ctx context.Context, userID string, body io.Reader, contentType string) (*models.User, error) {
	ctx = ensureContext(ctx)
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxAvatarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("user service: read avatar: %w", err)
	}
	if len(data) > MaxAvatarBytes {
		return nil, ErrAvatarTooLarge
	}
	if len(data) == 0 {
		return nil, apperrors.NewBadRequest("avatar file is empty")
	}

	detected := http.DetectContentType(data)
	if _, ok := avatarContentTypes[detected]; !ok {
		return nil, ErrAvatarType
	}
	if declared := strings.TrimSpace(strings.Split(contentType, ";")[0]); declared != "" {
		if _, ok := avatarContentTypes[strings.ToLower(declared)]; !ok {
			return nil, ErrAvatarType
		}
	}

	key := storage.AvatarKey(user.ID)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), detected); err != nil {
		return nil, fmt.Errorf("user service: store avatar: %w", err)
	}

	avatarURL := s.store.URL(key)
	if avatarURL == "" {
		avatarURL = fmt.Sprintf("/api/profile/avatar/%s?v=%d", user.ID, s.now().Unix())
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumns(map[string]any{"avatar_url": avatarURL, "avatar_key": key}).Error; err != nil {
		return nil, fmt.Errorf("user service: update avatar: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "profile.avatar",
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{"size": len(data), "content_type": detected},
	})

	user.AvatarURL = avatarURL
	user.AvatarKey = key
	return user, nil
}

// OpenAvatar returns the stored profile picture for userID. Callers must close the body.
func (s *UserService) OpenAvatar(ctx context.Context, userID string) (*storage.Object, error) {
	ctx = ensureContext(ctx)
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AvatarKey == "" {
		return nil, ErrAvatarNotFound
	}

	object, err := s.store.Get(ctx, user.AvatarKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAvatarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: open avatar: %w", err)
	}
	return object, nil
}

func updatedFields(updates map[string]any) []string {
	fields := make([]string, 0, len(updates))
	for _, name := range []string{"gamertag", "bio"} {
		if _, ok := updates[name]; ok {
			fields = append(fields, name)
		}
	}
	return fields
}
