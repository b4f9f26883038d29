// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
)

// MemoryRepository keeps a private copy of the last saved snapshot.
type MemoryRepository struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{snap: NewSnapshot()}
}

// NewMemoryRepositoryWith creates an in-memory repository seeded with snap.
func NewMemoryRepositoryWith(snap *Snapshot) *MemoryRepository {
	return &MemoryRepository{snap: snap.Clone()}
}

// Load returns a copy of the stored snapshot.
func (r *MemoryRepository) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Clone(), nil
}

// Save stores a copy of snap.
func (r *MemoryRepository) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = snap.Clone()
	r.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// Close is a no-op.
func (r *MemoryRepository) Close() error {
	return nil
}
