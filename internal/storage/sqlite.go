// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatstore/internal/model"
)

// sqliteSchema creates the conversations table. %[1]s is the table name.
// The primary key on id keeps every conversation in exactly one bucket.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id         TEXT PRIMARY KEY,
    bucket     TEXT NOT NULL CHECK (bucket IN ('active', 'archived')),
    position   INTEGER NOT NULL,
    title      TEXT NOT NULL,
    created_at TEXT NOT NULL,
    messages   TEXT NOT NULL -- JSON array of message records
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_bucket ON %[1]s(bucket, position);
`

// =============================================================================
// SQLITE REPOSITORY
// =============================================================================

// SQLiteRepository stores snapshots in a SQLite database, one row per
// conversation.
type SQLiteRepository struct {
	db    *sql.DB
	table string
}

// NewSQLiteRepository opens (and creates if needed) the database at path.
func NewSQLiteRepository(ctx context.Context, path, tablePrefix string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	repo := &SQLiteRepository{db: db, table: tablePrefix + "conversations"}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(sqliteSchema, repo.table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Load reads all conversations ordered by bucket position.
func (r *SQLiteRepository) Load(ctx context.Context) (*Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, bucket, title, created_at, messages FROM %s ORDER BY bucket, position`, r.table))
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	snap := NewSnapshot()
	for rows.Next() {
		var (
			id, bucket, title, createdAt string
			messages                     []byte
		)
		if err := rows.Scan(&id, &bucket, &title, &createdAt, &messages); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		rec, err := decodeRow(title, createdAt, messages)
		if err != nil {
			return nil, fmt.Errorf("conversation %s: %w", id, err)
		}
		coll := snap.Collection(model.Bucket(bucket))
		if coll == nil {
			return nil, fmt.Errorf("%w: conversation %s has bucket %q", ErrCorruptSnapshot, id, bucket)
		}
		coll.Put(id, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return snap, nil
}

// Save replaces every row inside one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.table)); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, bucket, position, title, created_at, messages) VALUES (?, ?, ?, ?, ?, ?)`, r.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	err = eachRow(snap, func(id string, bucket model.Bucket, pos int, rec *Record, messages []byte) error {
		_, err := stmt.ExecContext(ctx, id, string(bucket), pos, rec.Title, rec.CreatedAt, string(messages))
		return err
	})
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// =============================================================================
// ROW HELPERS (shared with the PostgreSQL repository)
// =============================================================================

// eachRow calls fn for every conversation in snapshot order, with its
// messages already encoded as JSON.
func eachRow(snap *Snapshot, fn func(id string, bucket model.Bucket, pos int, rec *Record, messages []byte) error) error {
	for _, bucket := range []model.Bucket{model.BucketActive, model.BucketArchived} {
		coll := snap.Collection(bucket)
		for pos, id := range coll.ids {
			rec := coll.records[id]
			msgs := rec.Messages
			if msgs == nil {
				msgs = []MessageRecord{}
			}
			data, err := json.Marshal(msgs)
			if err != nil {
				return fmt.Errorf("encode messages of %s: %w", id, err)
			}
			if err := fn(id, bucket, pos, rec, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeRow(title, createdAt string, messages []byte) (*Record, error) {
	rec := &Record{Title: title, CreatedAt: createdAt}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &rec.Messages); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	if rec.Messages == nil {
		rec.Messages = []MessageRecord{}
	}
	return rec, nil
}
