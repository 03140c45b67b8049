package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// S3Config holds the connection settings for an S3-compatible endpoint
type S3Config struct {
	// Endpoint is the service URL, e.g. https://s3.example.com
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
}

// S3Store implements ObjectStore against a single bucket of an
// S3-compatible service
type S3Store struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

// NewS3Store creates a store for cfg.Bucket. The endpoint scheme selects
// TLS; requests use path-style addressing so any S3-compatible service
// works without DNS bucket routing.
func NewS3Store(log *zap.Logger, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, Error.New("bucket is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, Error.New("invalid endpoint %q: %v", cfg.Endpoint, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, Error.New("invalid endpoint %q: expected http(s)://host[:port]", cfg.Endpoint)
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       u.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		log:    log,
	}, nil
}

// Exists issues a HEAD request for key
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, Error.Wrap(fmt.Errorf("head %s/%s: %w", s.bucket, key, err))
}

// Fetch downloads the object at key
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.fetchError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.fetchError(key, err)
	}

	s.log.Debug("fetched object", zap.String("key", key), zap.Int("bytes", len(data)))
	return data, nil
}

// Store uploads data to key with the content type and cache policy in meta
func (s *S3Store) Store(ctx context.Context, key string, data []byte, meta Metadata) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		CacheControl: meta.CacheControl,
	})
	if err != nil {
		return Error.Wrap(fmt.Errorf("put %s/%s: %w", s.bucket, key, err))
	}
	return nil
}

func (s *S3Store) fetchError(key string, err error) error {
	if isNotFound(err) {
		return ErrNotFound.Wrap(fmt.Errorf("missing source object %s/%s: %w", s.bucket, key, err))
	}
	return Error.Wrap(fmt.Errorf("get %s/%s: %w", s.bucket, key, err))
}

// isNotFound reports whether err confirms the object key is absent. A
// missing bucket is a configuration problem, not an absent object.
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	case "NoSuchBucket":
		return false
	}
	return resp.StatusCode == http.StatusNotFound
}
