package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/arenahub/internal/cache"
	"github.com/charlesng35/arenahub/internal/models"
)

const sessionCacheKeyPrefix = "auth:sessions:refresh:"

// cachedSession mirrors models.Session including fields hidden from API JSON.
type cachedSession struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"token_hash"`
	IPAddress  string     `json:"ip_address"`
	UserAgent  string     `json:"user_agent"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewStoreSessionCache adapts a cache.Store into a SessionCache. It returns
// nil for a nil store so callers can pass the result straight to SessionConfig.
func NewStoreSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &storeSessionCache{store: store}
}

type storeSessionCache struct {
	store cache.Store
}

func (c *storeSessionCache) Get(ctx context.Context, tokenHash string) (*models.Session, error) {
	key := cacheKey(tokenHash)
	if key == "" {
		return nil, errSessionCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	session := &models.Session{
		UserID:           cached.UserID,
		RefreshTokenHash: cached.TokenHash,
		IPAddress:        cached.IPAddress,
		UserAgent:        cached.UserAgent,
		ExpiresAt:        cached.ExpiresAt,
		LastUsedAt:       cached.LastUsedAt,
		RevokedAt:        cached.RevokedAt,
	}
	session.ID = cached.ID
	session.CreatedAt = cached.CreatedAt
	return session, nil
}

func (c *storeSessionCache) Set(ctx context.Context, tokenHash string, session *models.Session, ttl time.Duration) error {
	if session == nil {
		return errors.New("session cache: session is nil")
	}
	key := cacheKey(tokenHash)
	if key == "" {
		return errors.New("session cache: token hash missing")
	}

	payload, err := json.Marshal(cachedSession{
		ID:         session.ID,
		UserID:     session.UserID,
		TokenHash:  tokenHash,
		IPAddress:  session.IPAddress,
		UserAgent:  session.UserAgent,
		ExpiresAt:  session.ExpiresAt,
		LastUsedAt: session.LastUsedAt,
		RevokedAt:  session.RevokedAt,
		CreatedAt:  session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.store.Set(ctx, key, payload, ttl)
}

func (c *storeSessionCache) Delete(ctx context.Context, tokenHash string) error {
	key := cacheKey(tokenHash)
	if key == "" {
		return nil
	}
	return c.store.Delete(ctx, key)
}

func cacheKey(tokenHash string) string {
	hash := strings.TrimSpace(tokenHash)
	if hash == "" {
		return ""
	}
	return sessionCacheKeyPrefix + hash
}
