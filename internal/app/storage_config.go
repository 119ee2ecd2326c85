package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charlesng35/arenahub/internal/storage"
)

const defaultStoragePath = "./data/uploads"

// S3Config converts the storage settings into the S3 store parameters.
func (c StorageConfig) S3Config() storage.S3Config {
	return storage.S3Config{
		Bucket:          strings.TrimSpace(c.S3.Bucket),
		Region:          strings.TrimSpace(c.S3.Region),
		Endpoint:        strings.TrimSpace(c.S3.Endpoint),
		AccessKeyID:     strings.TrimSpace(c.S3.AccessKeyID),
		SecretAccessKey: c.S3.SecretAccessKey,
		UsePathStyle:    c.S3.UsePathStyle,
		Prefix:          strings.Trim(strings.TrimSpace(c.S3.Prefix), "/"),
		PublicBaseURL:   strings.TrimRight(strings.TrimSpace(c.S3.PublicBaseURL), "/"),
	}
}

// OpenStore builds the avatar blob store for the configured driver.
func (c StorageConfig) OpenStore(ctx context.Context) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "filesystem":
		root := strings.TrimSpace(c.Path)
		if root == "" {
			root = defaultStoragePath
		}
		store, err := storage.NewLocalStore(root)
		if err != nil {
			return nil, fmt.Errorf("open filesystem storage: %w", err)
		}
		return store, nil
	case "s3":
		store, err := storage.NewS3Store(ctx, c.S3Config())
		if err != nil {
			return nil, fmt.Errorf("open s3 storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", c.Driver)
	}
}
