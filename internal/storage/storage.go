// Package storage keeps uploaded blobs such as profile pictures.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("storage: object not found")

// Object is a stored blob opened for reading. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store persists blobs by key.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	// URL returns a public URL for key, or "" when objects are only
	// reachable through the API.
	URL(key string) string
	Ping(ctx context.Context) error
}

// AvatarKey is the key a user's profile picture is stored under.
func AvatarKey(userID string) string {
	return "profile-pictures/" + userID
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
