// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for chatstore.
//
// The conversation store keeps its state in memory and writes a full
// Snapshot through a Repository after every mutation. A snapshot holds two
// ordered collections, active and archived, each mapping a conversation ID
// to its record.
//
// # Key Types
//
//   - Repository: Load/Save capability injected into the conversation store
//   - Snapshot: The persisted document (active + archived collections)
//   - Collection: Insertion-ordered mapping of conversation ID to Record
//   - JSONFileRepository: Single JSON file, atomic writes, fsnotify watching
//   - SQLiteRepository: Pure Go SQLite (modernc.org/sqlite)
//   - PostgresRepository: PostgreSQL through a pgx connection pool
//   - MemoryRepository: In-process copy, for tests and ephemeral sessions
//
// # On-disk Schema
//
// The JSON document is the canonical interchange format:
//
//	{
//	  "active": {
//	    "1a2b3c4d": {
//	      "title": "Hello there",
//	      "createdAt": "2025-01-02T15:04:05Z",
//	      "messages": [{"role": "user", "content": "Hello there"}]
//	    }
//	  },
//	  "archived": {}
//	}
//
// Object key order is meaningful: it is the insertion order of the
// conversations and is preserved on load and save.
//
// # Usage
//
//	repo, err := storage.Open(ctx, storage.Options{Backend: storage.BackendJSON, Path: path})
//	snap, err := repo.Load(ctx)
//	err = repo.Save(ctx, snap)
package storage
