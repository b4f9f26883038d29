// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTitle is the sentinel title a conversation holds until autotitled.
const DefaultTitle = "New Chat"

// TitleMaxRunes is the length of an autotitle, in characters.
const TitleMaxRunes = 40

// =============================================================================
// BUCKETS AND SCOPES
// =============================================================================

// Bucket names the collection currently holding a conversation.
type Bucket string

const (
	BucketActive   Bucket = "active"
	BucketArchived Bucket = "archived"
)

// String returns the string representation of the bucket.
func (b Bucket) String() string {
	return string(b)
}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	return b == BucketActive || b == BucketArchived
}

// ParseBucket converts a string into a Bucket.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("invalid bucket %q: must be active or archived", s)
	}
	return b, nil
}

// Scope selects which buckets a search covers.
type Scope string

const (
	ScopeActive   Scope = "active"
	ScopeArchived Scope = "archived"
	ScopeAll      Scope = "all"
)

// Buckets returns the buckets covered by the scope, active first.
func (s Scope) Buckets() []Bucket {
	switch s {
	case ScopeActive:
		return []Bucket{BucketActive}
	case ScopeArchived:
		return []Bucket{BucketArchived}
	case ScopeAll:
		return []Bucket{BucketActive, BucketArchived}
	default:
		return nil
	}
}

// ParseScope converts a string into a Scope. "both" is accepted for ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return ScopeActive, nil
	case "archived":
		return ScopeArchived, nil
	case "all", "both":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("invalid scope %q: must be active, archived or all", s)
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a titled, ordered sequence of messages.
// Message order is chronological and defines turn order.
//
// StoredCreatedAt holds the timestamp text as it was loaded from storage. It
// may not parse; CreatedAt is then zero.
type Conversation struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	CreatedAt       time.Time  `json:"createdAt"`
	StoredCreatedAt string     `json:"-"`
	Messages        []*Message `json:"messages"`
}

// NewConversation creates an empty conversation with a generated ID and the
// sentinel title.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        NewID(),
		Title:     DefaultTitle,
		CreatedAt: time.Now(),
		Messages:  make([]*Message, 0),
	}
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := &Conversation{
		ID:              c.ID,
		Title:           c.Title,
		CreatedAt:       c.CreatedAt,
		StoredCreatedAt: c.StoredCreatedAt,
		Messages:        make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		out.Messages[i] = msg.Clone()
	}
	return out
}

// CreatedLabel returns the creation time as RFC3339. A stored timestamp that
// could not be parsed is returned verbatim.
func (c *Conversation) CreatedLabel() string {
	if c.CreatedAt.IsZero() && c.StoredCreatedAt != "" {
		return c.StoredCreatedAt
	}
	return c.CreatedAt.Format(time.RFC3339)
}

// MessageIndex returns the position of the message with the given ID, or -1.
func (c *Conversation) MessageIndex(id string) int {
	for i, msg := range c.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// MessageByID returns a message by its ID, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	if i := c.MessageIndex(id); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsUntitled reports whether the conversation still holds the sentinel title.
func (c *Conversation) IsUntitled() bool {
	return c.Title == DefaultTitle
}

// =============================================================================
// AUTOTITLE
// =============================================================================

// Autotitle derives the title from the first user message with non-blank
// content, truncated to TitleMaxRunes characters. It only acts while the
// title is the sentinel and reports whether the title changed.
// Whitespace-only user messages are skipped.
func (c *Conversation) Autotitle() bool {
	if !c.IsUntitled() {
		return false
	}
	for _, msg := range c.Messages {
		if msg.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > TitleMaxRunes {
			runes = runes[:TitleMaxRunes]
		}
		c.Title = string(runes)
		return true
	}
	return false
}

// Preview returns the first user message truncated to maxLen characters.
// Returns empty string if no user messages exist.
func (c *Conversation) Preview(maxLen int) string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Preview(maxLen)
		}
	}
	return ""
}
