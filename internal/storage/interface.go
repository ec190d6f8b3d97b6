package storage

import (
	"context"
	"io"
)

// ObjectStorage is the bucket that receives archived run reports.
type ObjectStorage interface {
	// Upload writes an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket verifies the bucket exists, creating it where the backend allows.
	EnsureBucket(ctx context.Context) error
}
