// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// =============================================================================
// REPOSITORY INTERFACE
// =============================================================================

// Repository persists store snapshots. Save replaces the whole persisted
// state; there is no transaction spanning several Saves.
type Repository interface {
	// Load returns the persisted snapshot, or an empty one if nothing was saved yet.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the persisted state with snap.
	Save(ctx context.Context, snap *Snapshot) error

	// Close releases any resources held by the repository.
	Close() error
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCorruptSnapshot is returned when persisted data cannot be decoded or
	// violates the one-bucket-per-conversation invariant.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// =============================================================================
// FACTORY
// =============================================================================

// Backend names accepted by Open.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options selects and configures a repository backend.
type Options struct {
	// Backend is one of BackendJSON, BackendSQLite, BackendPostgres, BackendMemory.
	Backend string

	// Path is the JSON file or SQLite database path.
	Path string

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// TablePrefix is prepended to table names (SQLite and PostgreSQL).
	TablePrefix string

	// Logger receives repository diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open creates the repository described by opts.
func Open(ctx context.Context, opts Options) (Repository, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(opts.Backend) {
	case BackendJSON, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("json backend requires a path")
		}
		return NewJSONFileRepository(opts.Path, WithLogger(logger)), nil
	case BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSQLiteRepository(ctx, opts.Path, opts.TablePrefix)
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires a database url")
		}
		return NewPostgresRepository(ctx, opts.DatabaseURL, opts.TablePrefix, logger)
	case BackendMemory:
		return NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
