package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestTracker(t *testing.T) *Tracker {
	t.Helper()
	url := "sqlite://" + filepath.Join(t.TempDir(), "ledger.db")
	tracker, err := Open(context.Background(), zaptest.NewLogger(t), url)
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

func TestRecordCountsGenerations(t *testing.T) {
	ctx := context.Background()
	tracker := openTestTracker(t)
	clock := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	entry := Entry{Key: "web/m31/m31_v3.webp", DescriptorID: "m31", Version: 3, Kind: "web", Bytes: 1234}

	count, err := tracker.Record(ctx, entry)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	clock = clock.Add(time.Hour)
	entry.Bytes = 1300
	count, err = tracker.Record(ctx, entry)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = tracker.GenerationCount(ctx, entry.Key)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = tracker.GenerationCount(ctx, "thumbs/m31/m31_v3.webp")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	url := "sqlite://" + filepath.Join(t.TempDir(), "ledger.db")
	log := zaptest.NewLogger(t)

	first, err := Open(ctx, log, url)
	require.NoError(t, err)
	_, err = first.Record(ctx, Entry{Key: "thumbs/m31/m31_v3.webp", DescriptorID: "m31", Version: 3, Kind: "thumb", Bytes: 10})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, log, url)
	require.NoError(t, err)
	defer second.Close()
	count, err := second.GenerationCount(ctx, "thumbs/m31/m31_v3.webp")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		url, driver, dsn string
	}{
		{"postgres://u:p@localhost/db", "postgres", "postgres://u:p@localhost/db"},
		{"postgresql://localhost/db?sslmode=disable", "postgres", "postgresql://localhost/db?sslmode=disable"},
		{"sqlite:///var/lib/ledger.db", "sqlite", "/var/lib/ledger.db"},
		{"file:ledger.db?cache=shared", "sqlite", "file:ledger.db?cache=shared"},
	}
	for _, tc := range cases {
		driver, dsn, err := parseURL(tc.url)
		require.NoError(t, err)
		require.Equal(t, tc.driver, driver)
		require.Equal(t, tc.dsn, dsn)
	}

	_, _, err := parseURL("mysql://localhost/db")
	require.True(t, Error.Has(err))
}

func TestRebind(t *testing.T) {
	pg := &Tracker{driver: "postgres"}
	require.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind("SELECT a FROM t WHERE b = ? AND c = ?"))

	lite := &Tracker{driver: "sqlite"}
	require.Equal(t, "SELECT a FROM t WHERE b = ?", lite.rebind("SELECT a FROM t WHERE b = ?"))
}
