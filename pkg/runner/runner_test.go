package runner_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tendant/simple-content-derivatives/internal/config"
	"github.com/tendant/simple-content-derivatives/internal/ledger"
	"github.com/tendant/simple-content-derivatives/internal/storage"
	"github.com/tendant/simple-content-derivatives/pkg/pipeline"
	"github.com/tendant/simple-content-derivatives/pkg/runner"
)

type staticDiffer []string

func (d staticDiffer) ChangedPaths(ctx context.Context, from, to string) ([]string, error) {
	return d, nil
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// catalog lays out a content directory and a local store holding the
// originals for every descriptor
type catalog struct {
	contentDir string
	storeDir   string
	store      *storage.FilesystemStorage
}

func newCatalog(t *testing.T) *catalog {
	t.Helper()
	root := t.TempDir()
	c := &catalog{
		contentDir: filepath.Join(root, "content", "images"),
		storeDir:   filepath.Join(root, "store"),
	}
	require.NoError(t, os.MkdirAll(c.contentDir, 0o755))

	store, err := storage.NewFilesystemStorage(c.storeDir)
	require.NoError(t, err)
	c.store = store
	return c
}

func (c *catalog) add(t *testing.T, id string, version int, withOriginal bool) string {
	t.Helper()
	path := filepath.Join(c.contentDir, id+".yml")
	body := []byte("id: " + id + "\ntitle: test object\nassets:\n  version: " + strconv.Itoa(version) + "\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	if withOriginal {
		key := runner.Keys(id, version).Original
		err := c.store.Store(context.Background(), key, jpegBytes(t, 160, 90), storage.Metadata{ContentType: "image/jpeg"})
		require.NoError(t, err)
	}
	return path
}

func (c *catalog) config() runner.Config {
	return runner.Config{
		ContentDir: c.contentDir,
		StoreDir:   c.storeDir,
		WebSize:    120,
		ThumbSize:  40,
	}
}

func TestGenerate_NothingToDo(t *testing.T) {
	t.Run("missing content directory", func(t *testing.T) {
		r, err := runner.New(zaptest.NewLogger(t), runner.Config{ContentDir: filepath.Join(t.TempDir(), "absent")})
		require.NoError(t, err)

		report, err := r.Generate(context.Background(), runner.Selection{All: true})
		require.NoError(t, err)
		require.True(t, report.NothingToDo())
	})

	t.Run("no mode selected", func(t *testing.T) {
		c := newCatalog(t)
		c.add(t, "m31", 3, true)

		r, err := runner.New(zaptest.NewLogger(t), runner.Config{ContentDir: c.contentDir})
		require.NoError(t, err)

		report, err := r.Generate(context.Background(), runner.Selection{})
		require.NoError(t, err, "credentials are not needed when there is nothing to do")
		require.True(t, report.NothingToDo())
	})
}

func TestGenerate_MissingCredentials(t *testing.T) {
	c := newCatalog(t)
	c.add(t, "m31", 3, true)

	r, err := runner.New(zaptest.NewLogger(t), runner.Config{ContentDir: c.contentDir})
	require.NoError(t, err)

	_, err = r.Generate(context.Background(), runner.Selection{All: true})
	require.Error(t, err)
	require.True(t, config.ErrConfiguration.Has(err))
	require.ErrorContains(t, err, "S3_URL")
}

func TestGenerate_InvalidConfig(t *testing.T) {
	_, err := runner.New(zaptest.NewLogger(t), runner.Config{Workers: -1})
	require.Error(t, err)
	require.True(t, config.ErrConfiguration.Has(err))
}

func TestGenerate_LocalStore(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	c.add(t, "m31", 3, true)
	c.add(t, "m42", 1, true)

	cfg := c.config()
	cfg.LedgerDatabaseURL = "sqlite://" + filepath.Join(t.TempDir(), "ledger.db")

	r, err := runner.New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	report, err := r.Generate(ctx, runner.Selection{All: true})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	require.Equal(t, 2, report.Count(pipeline.StateGenerated))
	require.Equal(t, 4, report.Uploaded())

	for _, id := range []string{"m31", "m42"} {
		version := 3
		if id == "m42" {
			version = 1
		}
		set := runner.Keys(id, version)
		for _, key := range []string{set.Web, set.Thumb} {
			meta, err := c.store.GetMetadata(ctx, key)
			require.NoError(t, err, key)
			require.Equal(t, storage.ContentTypeWebP, meta.ContentType)
			require.Equal(t, storage.CacheControlImmutable, meta.CacheControl)
		}
	}

	again, err := r.Generate(ctx, runner.Selection{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, again.Count(pipeline.StateSkipped))
	require.Zero(t, again.Uploaded())

	tracker, err := ledger.Open(ctx, zaptest.NewLogger(t), cfg.LedgerDatabaseURL)
	require.NoError(t, err)
	defer func() { require.NoError(t, tracker.Close()) }()

	count, err := tracker.GenerationCount(ctx, "web/m31/m31_v3.webp")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestGenerate_Changed(t *testing.T) {
	c := newCatalog(t)
	changed := c.add(t, "m31", 3, true)
	c.add(t, "m42", 1, true)

	differ := staticDiffer{
		changed,
		filepath.Join(c.contentDir, "deleted.yml"),
		filepath.Join(filepath.Dir(c.contentDir), "posts", "m31.yml"),
		filepath.Join(c.contentDir, "README.md"),
	}

	r, err := runner.New(zaptest.NewLogger(t), c.config(), runner.WithDiffer(differ))
	require.NoError(t, err)

	report, err := r.Generate(context.Background(), runner.Selection{From: "abc123", To: "def456"})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	require.Equal(t, changed, report.Outcomes[0].Descriptor)

	report, err = r.Generate(context.Background(), runner.Selection{From: runner.NoRevision, To: "def456"})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	require.Equal(t, 1, report.Count(pipeline.StateSkipped))
	require.Equal(t, 1, report.Count(pipeline.StateGenerated))
}

func TestGenerate_FailFastAndKeepGoing(t *testing.T) {
	c := newCatalog(t)
	c.add(t, "a", 1, false)
	c.add(t, "b", 1, true)

	r, err := runner.New(zaptest.NewLogger(t), c.config())
	require.NoError(t, err)

	report, err := r.Generate(context.Background(), runner.Selection{All: true})
	require.Error(t, err)
	require.True(t, storage.ErrNotFound.Has(err))
	require.Len(t, report.Outcomes, 1, "fail-fast stops after the first descriptor")

	cfg := c.config()
	cfg.KeepGoing = true
	r, err = runner.New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	report, err = r.Generate(context.Background(), runner.Selection{All: true})
	require.Error(t, err)
	require.Len(t, report.Outcomes, 2)
	require.Equal(t, pipeline.StateFailed, report.Outcomes[0].State)
	require.Equal(t, pipeline.StateGenerated, report.Outcomes[1].State)
}

func TestGenerate_PushesMetrics(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  []byte
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, _ := io.ReadAll(req.Body)
		mu.Lock()
		paths = append(paths, req.URL.Path)
		body = data
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	c := newCatalog(t)
	c.add(t, "m31", 3, true)

	cfg := c.config()
	cfg.PushgatewayURL = gateway.URL

	r, err := runner.New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	_, err = r.Generate(context.Background(), runner.Selection{All: true})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"/metrics/job/" + runner.MetricsJob}, paths)
	require.NotEmpty(t, body)
}

func TestGenerate_InjectedStore(t *testing.T) {
	c := newCatalog(t)
	c.add(t, "m31", 3, true)

	r, err := runner.New(zaptest.NewLogger(t), runner.Config{ContentDir: c.contentDir}, runner.WithStore(c.store))
	require.NoError(t, err)

	report, err := r.Generate(context.Background(), runner.Selection{All: true})
	require.NoError(t, err, "an injected store needs no credentials")
	require.Equal(t, 1, report.Count(pipeline.StateGenerated))
}

func TestKeys(t *testing.T) {
	set := runner.Keys("m31", 3)
	require.Equal(t, "originals/m31/m31_v3.jpg", set.Original)
	require.Equal(t, "web/m31/m31_v3.webp", set.Web)
	require.Equal(t, "thumbs/m31/m31_v3.webp", set.Thumb)
}
