// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeranaias/chatstore/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id         TEXT PRIMARY KEY,
    bucket     TEXT NOT NULL CHECK (bucket IN ('active', 'archived')),
    position   INTEGER NOT NULL,
    title      TEXT NOT NULL,
    created_at TEXT NOT NULL,
    messages   JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_bucket ON %[1]s(bucket, position);
`

// =============================================================================
// POSTGRES REPOSITORY
// =============================================================================

// PostgresRepository stores snapshots in PostgreSQL through a pgx pool.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

// NewPostgresRepository connects to databaseURL and ensures the schema exists.
func NewPostgresRepository(ctx context.Context, databaseURL, tablePrefix string, logger *slog.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := createConnectionPool(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}

	repo := &PostgresRepository{pool: pool, table: tablePrefix + "conversations", logger: logger}
	if _, err := pool.Exec(ctx, fmt.Sprintf(postgresSchema, repo.table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return repo, nil
}

// createConnectionPool parses the connection string and opens a small pool.
// PgBouncer transaction pooling (port 6543) does not support prepared
// statements, so statement descriptions are cached instead.
func createConnectionPool(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		logger.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Load reads all conversations ordered by bucket position.
func (r *PostgresRepository) Load(ctx context.Context) (*Snapshot, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
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
func (r *PostgresRepository) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Warn("rollback failed", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, r.table)); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (id, bucket, position, title, created_at, messages) VALUES ($1, $2, $3, $4, $5, $6::jsonb)`, r.table)
	batch := &pgx.Batch{}
	err = eachRow(snap, func(id string, bucket model.Bucket, pos int, rec *Record, messages []byte) error {
		batch.Queue(insert, id, string(bucket), pos, rec.Title, rec.CreatedAt, string(messages))
		return nil
	})
	if err != nil {
		return err
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert conversations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
