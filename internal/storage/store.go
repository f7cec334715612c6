// Package storage abstracts where raw CSVs and cached batch results live.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/newthinker/quantlab/internal/config"
)

// Store defines the interface for object storage backends. Missing objects
// are reported as core.ErrNotFound.
type Store interface {
	// Open streams the object at path
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Read retrieves the whole object at path
	Read(ctx context.Context, path string) ([]byte, error)

	// Write stores data at path, replacing any previous object
	Write(ctx context.Context, path string, data []byte) error

	// List returns all paths under the prefix, relative to the store root
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if an object exists at path
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the object at path
	Delete(ctx context.Context, path string) error
}

// New creates the backend selected by cfg.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// readAll is shared by backends whose Read is Open plus ReadAll.
func readAll(ctx context.Context, s Store, path string) ([]byte, error) {
	rc, err := s.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
