// Package sqlite stores drafts in a SQLite database through the pure-Go
// modernc.org/sqlite driver.
//
// Each draft is one row of the drafts table. Writes are compare-and-swap on the
// version column, so a concurrent writer surfaces as a conflict.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arloliu/draftsync/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	key        TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Adapter is a types.StorageAdapter over a SQLite database.
type Adapter struct {
	db *sql.DB
}

var _ types.StorageAdapter = (*Adapter)(nil)

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Adapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// One connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Adapter{db: db}, nil
}

// Close closes the database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Save writes data under key when the stored version equals baseVersion and
// returns baseVersion+1.
func (a *Adapter) Save(ctx context.Context, key string, data types.EstimateData, baseVersion int64) (int64, error) {
	next := baseVersion + 1
	data.Version = next

	payload, err := json.Marshal(data)
	if err != nil {
		return 0, &types.StorageError{Code: types.CodeValidation, Message: "draft cannot be encoded", Err: err}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var res sql.Result
	if baseVersion == 0 {
		res, err = a.db.ExecContext(ctx,
			`INSERT INTO drafts (key, version, data, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			key, next, string(payload), now)
	} else {
		res, err = a.db.ExecContext(ctx,
			`UPDATE drafts SET version = ?, data = ?, updated_at = ? WHERE key = ? AND version = ?`,
			next, string(payload), now, key, baseVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("save draft %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save draft %q: %w", key, err)
	}
	if n == 1 {
		return next, nil
	}

	remote, err := a.Load(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read conflicting draft %q: %w", key, err)
	}

	data.Version = baseVersion
	cd := &types.ConflictData{
		ResourceID:   key,
		LocalVersion: baseVersion,
		Local:        data,
		Remote:       remote,
	}
	if remote != nil {
		cd.RemoteVersion = remote.Version
	}

	return 0, types.NewConflictError(cd)
}

// Load returns the draft under key, or nil, nil when none was saved.
func (a *Adapter) Load(ctx context.Context, key string) (*types.EstimateData, error) {
	var (
		version int64
		payload string
	)

	err := a.db.QueryRowContext(ctx, `SELECT version, data FROM drafts WHERE key = ?`, key).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %q: %w", key, err)
	}

	var data types.EstimateData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("decode draft %q: %w", key, err)
	}
	data.Version = version

	return &data, nil
}
