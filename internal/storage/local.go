package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

const metaSuffix = ".meta.json"

type localMeta struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// LocalStore keeps blobs on a filesystem rooted at a directory.
type LocalStore struct {
	fs afero.Fs
}

// NewLocalStore stores blobs under root on the OS filesystem.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("storage: local root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// NewLocalStoreFs wraps an arbitrary afero filesystem.
func NewLocalStoreFs(fs afero.Fs) *LocalStore {
	return &LocalStore{fs: fs}
}

func (s *LocalStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp := key + ".tmp"
	written, err := writeFile(s.fs, tmp, body)
	if err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("storage: rename: %w", err)
	}

	meta, err := json.Marshal(localMeta{ContentType: contentType, Size: written})
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, key+metaSuffix, meta, 0o644)
}

func writeFile(fs afero.Fs, name string, body io.Reader) (int64, error) {
	f, err := fs.Create(name)
	if err != nil {
		return 0, fmt.Errorf("storage: create: %w", err)
	}
	written, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("storage: write: %w", err)
	}
	return written, nil
}

func (s *LocalStore) Get(_ context.Context, key string) (*Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	obj := &Object{Body: f, ContentType: "application/octet-stream"}
	if raw, err := afero.ReadFile(s.fs, key+metaSuffix); err == nil {
		var meta localMeta
		if json.Unmarshal(raw, &meta) == nil {
			if meta.ContentType != "" {
				obj.ContentType = meta.ContentType
			}
			obj.Size = meta.Size
		}
	}
	if obj.Size == 0 {
		if info, err := f.Stat(); err == nil {
			obj.Size = info.Size()
		}
	}
	return obj, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	for _, name := range []string{key, key + metaSuffix} {
		if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("storage: remove: %w", err)
		}
	}
	return nil
}

func (s *LocalStore) URL(string) string { return "" }

func (s *LocalStore) Ping(context.Context) error {
	_, err := s.fs.Stat("/")
	return err
}
