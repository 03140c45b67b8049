// Package ledger keeps an audit trail of generated derivatives in a SQL
// database. It is informational only: whether a derivative needs to be
// generated is always decided by the object store.
package ledger

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	_ "github.com/lib/pq"  // Register postgres driver
	_ "modernc.org/sqlite" // Register sqlite driver
)

// Error is the error class for ledger failures
var Error = errs.Class("ledger")

// Entry describes one uploaded derivative
type Entry struct {
	Key          string
	DescriptorID string
	Version      int
	Kind         string
	Bytes        int
}

// Tracker records derivative generations
type Tracker struct {
	db     *sql.DB
	driver string
	log    *zap.Logger
	now    func() time.Time
}

// Open connects to databaseURL. postgres:// and postgresql:// URLs use the
// postgres driver; sqlite://path and file: URLs use sqlite.
func Open(ctx context.Context, log *zap.Logger, databaseURL string) (*Tracker, error) {
	driver, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	tracker, err := NewTracker(ctx, log, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return tracker, nil
}

// NewTracker creates a tracker on an open database and ensures its table
func NewTracker(ctx context.Context, log *zap.Logger, db *sql.DB, driver string) (*Tracker, error) {
	tracker := &Tracker{
		db:     db,
		driver: driver,
		log:    log,
		now:    time.Now,
	}

	if err := tracker.ensureTable(ctx); err != nil {
		return nil, Error.New("ensure ledger table: %v", err)
	}

	return tracker, nil
}

func parseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres", databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite", strings.TrimPrefix(databaseURL, "sqlite://"), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return "sqlite", databaseURL, nil
	}
	return "", "", Error.New("unsupported ledger database URL %q", databaseURL)
}

// ensureTable creates the derivative_ledger table if it doesn't exist
func (t *Tracker) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS derivative_ledger (
			object_key TEXT PRIMARY KEY,
			descriptor_id TEXT NOT NULL,
			assets_version INTEGER NOT NULL,
			kind TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			first_generated_at TIMESTAMP NOT NULL,
			last_generated_at TIMESTAMP NOT NULL,
			generation_count INTEGER NOT NULL DEFAULT 1
		)
	`

	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return err
	}

	t.log.Debug("derivative_ledger table ready", zap.String("driver", t.driver))
	return nil
}

// Record upserts an entry and returns how many times its key has been
// generated. A count above one means the object was lost from the store and
// written again.
func (t *Tracker) Record(ctx context.Context, e Entry) (int, error) {
	query := t.rebind(`
		INSERT INTO derivative_ledger (object_key, descriptor_id, assets_version, kind, size_bytes, first_generated_at, last_generated_at, generation_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (object_key) DO UPDATE
		SET last_generated_at = EXCLUDED.last_generated_at,
		    size_bytes = EXCLUDED.size_bytes,
		    generation_count = derivative_ledger.generation_count + 1
		RETURNING generation_count
	`)

	now := t.now().UTC()
	var count int
	err := t.db.QueryRowContext(ctx, query, e.Key, e.DescriptorID, e.Version, e.Kind, e.Bytes, now, now).Scan(&count)
	if err != nil {
		return 0, Error.New("record %s: %v", e.Key, err)
	}

	return count, nil
}

// GenerationCount returns how many times key has been recorded
func (t *Tracker) GenerationCount(ctx context.Context, key string) (int, error) {
	query := t.rebind(`SELECT generation_count FROM derivative_ledger WHERE object_key = ?`)

	var count int
	err := t.db.QueryRowContext(ctx, query, key).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, Error.New("get generation count: %v", err)
	}

	return count, nil
}

// Close releases the database handle
func (t *Tracker) Close() error {
	return Error.Wrap(t.db.Close())
}

// rebind rewrites ? placeholders to $N for postgres
func (t *Tracker) rebind(query string) string {
	if t.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
