package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

// Compile-time check: SQLiteSnapshotCache satisfies app.SnapshotCache.
var _ app.SnapshotCache = (*SQLiteSnapshotCache)(nil)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL -- domain.InstantLayout, fixed width so text order is time order
)`

// SQLiteSnapshotCache keeps one JSON snapshot per key in a local SQLite file.
type SQLiteSnapshotCache struct {
	db    *sql.DB
	clock domain.Clock
}

// OpenSQLiteSnapshotCache opens (creating if needed) the database at path.
func OpenSQLiteSnapshotCache(ctx context.Context, path string, clock domain.Clock) (*SQLiteSnapshotCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	cache, err := NewSQLiteSnapshotCache(ctx, db, clock)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

// NewSQLiteSnapshotCache wraps db and ensures the snapshots table exists.
func NewSQLiteSnapshotCache(ctx context.Context, db *sql.DB, clock domain.Clock) (*SQLiteSnapshotCache, error) {
	if db == nil {
		return nil, errors.New("sqlite snapshot cache: nil db")
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, createSnapshotsTable); err != nil {
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SQLiteSnapshotCache{db: db, clock: clock}, nil
}

// Close releases the database handle.
func (c *SQLiteSnapshotCache) Close() error {
	return c.db.Close()
}

// Load reads the snapshot stored under key.
// Returns domain.ErrNotFound when the slot is empty.
func (c *SQLiteSnapshotCache) Load(ctx context.Context, key string) (domain.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "sqlite.snapshot.load")
	defer span.End()

	var payload string
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE key = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, fmt.Errorf("load snapshot %q: %w", key, domain.ErrNotFound)
		}
		failSpan(span, err)
		return domain.Snapshot{}, fmt.Errorf("load snapshot %q: %w", key, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		failSpan(span, err)
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %q: %w", key, err)
	}
	return snap, nil
}

// Save overwrites the slot under key.
func (c *SQLiteSnapshotCache) Save(ctx context.Context, key string, snap domain.Snapshot) error {
	ctx, span := tracer.Start(ctx, "sqlite.snapshot.save")
	defer span.End()

	raw, err := json.Marshal(snap)
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("encode snapshot %q: %w", key, err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(raw), domain.FormatInstant(c.clock.Now()),
	)
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return nil
}

// SnapshotInfo describes one stored slot.
type SnapshotInfo struct {
	Key       string
	UpdatedAt time.Time
}

// List returns every stored slot, most recently written first.
func (c *SQLiteSnapshotCache) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, updated_at FROM snapshots ORDER BY updated_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]SnapshotInfo, 0)
	for rows.Next() {
		var key, updated string
		if err := rows.Scan(&key, &updated); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		at, err := domain.ParseInstant(updated)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at for %q: %w", key, err)
		}
		out = append(out, SnapshotInfo{Key: key, UpdatedAt: at})
	}
	return out, rows.Err()
}
