package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists snapshots in a single SQLite table keyed by
// Ref.Identifier(). Payloads are stored as JSON text.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore creates or opens the database at path and applies the
// schema. Use ":memory:" for a throwaway store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: connect sqlite: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: apply pragma: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	var (
		payload, extra, updatedAt string
		meta                      Meta
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT payload, snapshot_id, etag, updated_at, extra
		FROM scope_snapshots WHERE identifier = ?`, key)
	if err := row.Scan(&payload, &meta.SnapshotID, &meta.ETag, &updatedAt, &extra); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Meta{}, false, nil
		}
		return nil, Meta{}, false, fmt.Errorf("state: load %q: %w", key, err)
	}
	if meta.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: parse updated_at for %q: %w", key, err)
	}
	if err := decodeExtra(extra, &meta); err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: decode extra for %q: %w", key, err)
	}
	snapshot, err := decodeSnapshot([]byte(payload))
	if err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: decode payload for %q: %w", key, err)
	}
	return snapshot, meta, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, ref Ref, snapshot map[string]any, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return Meta{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("state: begin save %q: %w", key, err)
	}
	defer tx.Rollback()

	var storedETag string
	err = tx.QueryRowContext(ctx, `SELECT etag FROM scope_snapshots WHERE identifier = ?`, key).Scan(&storedETag)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Meta{}, fmt.Errorf("state: read etag %q: %w", key, err)
	}
	if err := checkETag(meta.ETag, storedETag); err != nil {
		return Meta{ETag: storedETag}, err
	}

	stored := stamp(payload, Meta{Extra: meta.Extra}, s.now())
	extra, err := json.Marshal(stored.Extra)
	if err != nil {
		return Meta{}, err
	}
	if stored.Extra == nil {
		extra = []byte("{}")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scope_snapshots (identifier, domain, snapshot_key, payload, snapshot_id, etag, updated_at, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			payload = excluded.payload,
			snapshot_id = excluded.snapshot_id,
			etag = excluded.etag,
			updated_at = excluded.updated_at,
			extra = excluded.extra`,
		key, ref.Domain, ref.Key, string(payload), stored.SnapshotID, stored.ETag,
		stored.UpdatedAt.Format(time.RFC3339Nano), string(extra),
	)
	if err != nil {
		return Meta{}, fmt.Errorf("state: save %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Meta{}, fmt.Errorf("state: commit save %q: %w", key, err)
	}
	return stored, nil
}

// Keys lists the snapshot keys stored for domain in key order.
func (s *SQLiteStore) Keys(ctx context.Context, domain string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_key FROM scope_snapshots WHERE domain = ? ORDER BY snapshot_key`, domain)
	if err != nil {
		return nil, fmt.Errorf("state: list %q: %w", domain, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func decodeExtra(raw string, meta *Meta) error {
	if raw == "" || raw == "{}" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), &meta.Extra)
}
