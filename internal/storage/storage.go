// Package storage provides the object store the derivative pipeline reads
// originals from and writes renditions to.
package storage

import (
	"context"

	"github.com/zeebo/errs"
)

const (
	// ContentTypeWebP is the content type of every derivative
	ContentTypeWebP = "image/webp"

	// CacheControlImmutable lets caches keep a derivative forever. A key
	// embeds the assets version, so its content never changes once written.
	CacheControlImmutable = "public, max-age=31536000, immutable"
)

var (
	// Error is the error class for store failures other than a confirmed
	// missing object
	Error = errs.Class("storage")

	// ErrNotFound is the error class for objects confirmed to be absent
	ErrNotFound = errs.Class("not found")
)

// ObjectStore is the generic key/value contract the pipeline depends on
type ObjectStore interface {
	// Exists reports whether an object is present at key. Confirmed
	// absence is (false, nil); any other failure is an Error.
	Exists(ctx context.Context, key string) (bool, error)

	// Fetch returns the object at key, or an ErrNotFound error if the
	// object is confirmed absent.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Store writes data at key with the given metadata
	Store(ctx context.Context, key string, data []byte, meta Metadata) error
}

// Metadata contains storage object metadata
type Metadata struct {
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type"`
	CacheControl string `json:"cache_control"`
	ETag         string `json:"etag,omitempty"`
}

// DerivativeMetadata is the fixed metadata every derivative is written with
func DerivativeMetadata(size int) Metadata {
	return Metadata{
		Size:         int64(size),
		ContentType:  ContentTypeWebP,
		CacheControl: CacheControlImmutable,
	}
}
