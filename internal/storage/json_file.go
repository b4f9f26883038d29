// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/chatstore/internal/util"
)

// DefaultWatchDebounce is how long Watch waits for writes to settle.
const DefaultWatchDebounce = 200 * time.Millisecond

// =============================================================================
// JSON FILE REPOSITORY
// =============================================================================

// JSONFileRepository stores the snapshot in a single JSON file.
// Writes are atomic: a crash leaves either the old or the new document.
type JSONFileRepository struct {
	path   string
	perm   os.FileMode
	logger *slog.Logger

	mu        sync.Mutex
	digest    [sha256.Size]byte
	hasDigest bool
}

// JSONOption configures a JSONFileRepository.
type JSONOption func(*JSONFileRepository)

// WithLogger sets the logger used for watch diagnostics.
func WithLogger(logger *slog.Logger) JSONOption {
	return func(r *JSONFileRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFileMode sets the permissions of the written file (default 0600).
func WithFileMode(perm os.FileMode) JSONOption {
	return func(r *JSONFileRepository) {
		r.perm = perm
	}
}

// NewJSONFileRepository creates a repository backed by the file at path.
// The file does not need to exist yet.
func NewJSONFileRepository(path string, opts ...JSONOption) *JSONFileRepository {
	r := &JSONFileRepository{
		path:   path,
		perm:   0600,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the file path.
func (r *JSONFileRepository) Path() string {
	return r.path
}

// Load reads the snapshot. A missing or empty file yields an empty snapshot.
func (r *JSONFileRepository) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.path, err)
	}
	r.remember(data)
	return snap, nil
}

// Save writes the snapshot as indented JSON.
func (r *JSONFileRepository) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(r.path, data, r.perm); err != nil {
		return err
	}
	r.remember(data)
	return nil
}

// Close is a no-op.
func (r *JSONFileRepository) Close() error {
	return nil
}

func (r *JSONFileRepository) remember(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digest = sha256.Sum256(data)
	r.hasDigest = true
}

// changedOnDisk reports whether the file content differs from what this
// repository last read or wrote.
func (r *JSONFileRepository) changedOnDisk() bool {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)

	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.hasDigest || sum != r.digest
}

// =============================================================================
// WATCHING
// =============================================================================

// Watch calls onChange whenever another process modifies the file.
// Changes made through this repository are ignored. Events are debounced;
// a non-positive debounce uses DefaultWatchDebounce. Watching stops when
// ctx is cancelled.
func (r *JSONFileRepository) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	absPath, err := filepath.Abs(r.path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", r.path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: atomic renames replace the file's inode
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go r.watchLoop(ctx, watcher, absPath, debounce, onChange)
	return nil
}

func (r *JSONFileRepository) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, absPath string, debounce time.Duration, onChange func()) {
	defer watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != absPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("store file watcher error", "path", absPath, "error", err)

		case <-fire:
			fire = nil
			if r.changedOnDisk() {
				r.logger.Debug("store file changed on disk", "path", absPath)
				onChange()
			}
		}
	}
}
