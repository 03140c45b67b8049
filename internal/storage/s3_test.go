package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testBucket = "astro-images"

// fakeS3 answers path-style HEAD/GET/PUT requests for a single bucket.
// Keys under "forbidden/" are rejected with 403.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []http.Header
}

func newFakeS3(t *testing.T) (*fakeS3, *S3Store) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := NewS3Store(zaptest.NewLogger(t), S3Config{
		Endpoint:  server.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
		Bucket:    testBucket,
	})
	require.NoError(t, err)
	return fake, store
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != testBucket {
		writeS3Error(w, r, http.StatusNotFound, "NoSuchBucket")
		return
	}
	if strings.HasPrefix(key, "forbidden/") {
		writeS3Error(w, r, http.StatusForbidden, "AccessDenied")
		return
	}

	switch r.Method {
	case http.MethodHead, http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, r, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("ETag", `"0123456789abcdef0123456789abcdef"`)
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(data)
		}
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.puts = append(f.puts, r.Header.Clone())
		w.Header().Set("ETag", `"0123456789abcdef0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeS3Error(w http.ResponseWriter, r *http.Request, status int, code string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>`+code+`</Message></Error>`)
}

func TestNewS3StoreValidatesEndpoint(t *testing.T) {
	log := zaptest.NewLogger(t)
	for _, endpoint := range []string{"", "s3.example.com", "ftp://s3.example.com", "://bad"} {
		_, err := NewS3Store(log, S3Config{Endpoint: endpoint, Bucket: testBucket})
		require.Error(t, err, endpoint)
		require.True(t, Error.Has(err), endpoint)
	}

	_, err := NewS3Store(log, S3Config{Endpoint: "https://s3.example.com"})
	require.Error(t, err)
}

func TestS3StoreExists(t *testing.T) {
	ctx := context.Background()
	fake, store := newFakeS3(t)
	fake.objects["web/m31/m31_v3.webp"] = []byte("webp")

	exists, err := store.Exists(ctx, "web/m31/m31_v3.webp")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(ctx, "thumbs/m31/m31_v3.webp")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.Exists(ctx, "forbidden/m31.webp")
	require.Error(t, err)
	require.True(t, Error.Has(err))
	require.False(t, ErrNotFound.Has(err))
}

func TestS3StoreFetch(t *testing.T) {
	ctx := context.Background()
	fake, store := newFakeS3(t)
	fake.objects["originals/m31/m31_v3.jpg"] = []byte("jpeg-bytes")

	data, err := store.Fetch(ctx, "originals/m31/m31_v3.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), data)

	_, err = store.Fetch(ctx, "originals/m42/m42_v1.jpg")
	require.Error(t, err)
	require.True(t, ErrNotFound.Has(err))
	require.Contains(t, err.Error(), "originals/m42/m42_v1.jpg")

	_, err = store.Fetch(ctx, "forbidden/m42.jpg")
	require.Error(t, err)
	require.True(t, Error.Has(err))
	require.False(t, ErrNotFound.Has(err))
}

func TestS3StoreStoreSetsMetadata(t *testing.T) {
	fake, store := newFakeS3(t)

	payload := []byte("webp-bytes")
	err := store.Store(context.Background(), "thumbs/m31/m31_v3.webp", payload, DerivativeMetadata(len(payload)))
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.puts, 1)
	require.Equal(t, ContentTypeWebP, fake.puts[0].Get("Content-Type"))
	require.Equal(t, CacheControlImmutable, fake.puts[0].Get("Cache-Control"))
	require.Contains(t, fake.objects, "thumbs/m31/m31_v3.webp")
}
