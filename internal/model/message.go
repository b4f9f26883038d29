// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the permitted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the role with its first letter capitalized ("User", "Assistant").
// This is the label used by the plain-text export format.
func (r Role) Label() string {
	return cases.Title(language.Und).String(string(r))
}

// ParseRole converts a string into a Role, rejecting anything but user/assistant.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q: must be user or assistant", s)
	}
	return r, nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attachment kinds, derived from the file extension.
const (
	AttachmentAudio    = "audio"
	AttachmentImage    = "image"
	AttachmentDocument = "document"
)

// Attachment describes a file the user attached to a turn. Only the
// descriptor is kept; file contents are never parsed.
type Attachment struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Note string `json:"note"`
}

// DescribeAttachment builds a descriptor for an uploaded file so the model
// can be told what was attached.
func DescribeAttachment(name string, size int64) Attachment {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	kind := AttachmentDocument
	switch ext {
	case "mp3", "wav", "m4a":
		kind = AttachmentAudio
	case "png", "jpg", "jpeg":
		kind = AttachmentImage
	}
	return Attachment{
		Name: name,
		Kind: kind,
		Note: fmt.Sprintf("Attached %s file '%s' (%d bytes).", kind, name, size),
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
// ID and CreatedAt are set once; Content may be edited in place.
// StoredCreatedAt holds the timestamp text as it was loaded from storage and
// is written back unchanged.
type Message struct {
	ID              string       `json:"id"`
	Role            Role         `json:"role"`
	Content         string       `json:"content"`
	CreatedAt       time.Time    `json:"createdAt"`
	StoredCreatedAt string       `json:"-"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return &c
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewID returns an 8-character lowercase hex identifier taken from a random UUID.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:4])
}
