// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the conversation
// store, the persistence layer, the exporters and the reply generators.
//
// # Key Types
//
//   - Conversation: A titled, ordered sequence of messages with a stable ID
//   - Message: Single turn with role, content, timestamp and attachments
//   - Role: Message role enumeration (user, assistant)
//   - Bucket: Lifecycle bucket holding a conversation (active, archived)
//   - Scope: Search scope over one or both buckets
//   - Attachment: Lightweight descriptor of a file attached to a user turn
//
// # Usage
//
// Create a new conversation and autotitle it:
//
//	conv := model.NewConversation()
//	conv.Messages = append(conv.Messages, model.NewMessage(model.RoleUser, "Hello there"))
//	conv.Autotitle() // conv.Title == "Hello there"
package model
