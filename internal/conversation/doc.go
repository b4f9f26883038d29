// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation implements the conversation store.
//
// A Store owns two ordered buckets of conversations, active and archived,
// and the ID of the conversation currently open. Every conversation lives
// in exactly one bucket. Conversations move between buckets through
// ArchiveConversation and RestoreConversation and leave the store through
// DeleteConversation.
//
// # Reply Generation
//
// GenerateReply hands the conversation's messages to a ReplyGenerator and
// appends its text as an assistant message. A generator failure does not
// surface as an error: the store appends an assistant message reading
// "⚠️ Error: <cause>" so the transcript shows what went wrong. No lock is
// held while the generator runs; a second GenerateReply for the same
// conversation fails with ErrReplyInProgress until the first completes.
//
// # Persistence
//
// After every mutation the store writes a full snapshot through its
// storage.Repository. A failed write returns a *PersistenceError and keeps
// the in-memory change; Flush retries the write.
//
// # Usage
//
//	repo, _ := storage.Open(ctx, storage.Options{Backend: storage.BackendJSON, Path: path})
//	store, err := conversation.NewStore(ctx, repo)
//	conv, err := store.NewConversation()
//	_, err = store.AppendMessage(conv.ID, model.RoleUser, "Hello there")
//	reply, err := store.GenerateReply(ctx, conv.ID, generator)
package conversation
