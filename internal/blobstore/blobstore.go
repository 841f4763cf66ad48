package blobstore

import (
	"context"
	"fmt"

	"media_bridge/internal/config"
)

// Store is the artifact storage shared by the worker (writes) and the
// dispatch controller (removes after delivery).
type Store interface {
	Write(ctx context.Context, path string, data []byte) error
	Remove(ctx context.Context, path string) error
}

func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocal(cfg.Dir), nil
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
