package storage

import (
	"context"
	"io"
	"time"
)

// Store is the artifact store the audio pipeline writes synthesized
// audio into. Objects are addressed by key; retrieval is either via a
// stable public URL or a time-limited presigned URL, depending on how
// the bucket ACL is configured.
type Store interface {
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// PublicURL builds a stable URL for key. Only meaningful when the
	// bucket allows public reads.
	PublicURL(key string) string

	// PresignedURL derives a signed GET URL for key valid for expiry.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
