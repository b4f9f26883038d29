// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/chatstore/internal/model"
)

// =============================================================================
// RECORD TYPES
// =============================================================================

// Record is the persisted form of a conversation. The ID is the key of the
// collection holding it.
type Record struct {
	Title     string          `json:"title"`
	CreatedAt string          `json:"createdAt"`
	Messages  []MessageRecord `json:"messages"`
}

// MessageRecord is the persisted form of a message. Only role and content
// are required; files written by other tools may omit the rest.
type MessageRecord struct {
	ID          string             `json:"id,omitempty"`
	Role        string             `json:"role"`
	Content     string             `json:"content"`
	CreatedAt   string             `json:"createdAt,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

// timestampLayouts are tried in order when parsing persisted timestamps.
// The naive layouts match files written by tools that omit the zone; they are
// read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// FormatTimestamp renders a timestamp the way records store it.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// ParseTimestamp parses a persisted timestamp. Unparseable or empty values
// yield the zero time.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// storedTimestamp returns the text to persist for a timestamp. Text loaded
// from storage is written back as it was read.
func storedTimestamp(t time.Time, stored string) string {
	if stored != "" {
		return stored
	}
	return FormatTimestamp(t)
}

// RecordFromConversation converts a conversation into its persisted form.
func RecordFromConversation(conv *model.Conversation) *Record {
	rec := &Record{
		Title:     conv.Title,
		CreatedAt: storedTimestamp(conv.CreatedAt, conv.StoredCreatedAt),
		Messages:  make([]MessageRecord, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		mr := MessageRecord{
			ID:        msg.ID,
			Role:      msg.Role.String(),
			Content:   msg.Content,
			CreatedAt: storedTimestamp(msg.CreatedAt, msg.StoredCreatedAt),
		}
		if len(msg.Attachments) > 0 {
			mr.Attachments = append([]model.Attachment(nil), msg.Attachments...)
		}
		rec.Messages = append(rec.Messages, mr)
	}
	return rec
}

// Conversation converts the record back into a conversation with the given ID.
// Messages without an ID get a fresh one; an empty title falls back to the
// sentinel. A role other than user/assistant is rejected.
func (r *Record) Conversation(id string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:              id,
		Title:           r.Title,
		CreatedAt:       ParseTimestamp(r.CreatedAt),
		StoredCreatedAt: r.CreatedAt,
		Messages:        make([]*model.Message, 0, len(r.Messages)),
	}
	if conv.Title == "" {
		conv.Title = model.DefaultTitle
	}
	for i, mr := range r.Messages {
		role, err := model.ParseRole(mr.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: conversation %s message %d: %v", ErrCorruptSnapshot, id, i, err)
		}
		msg := &model.Message{
			ID:              mr.ID,
			Role:            role,
			Content:         mr.Content,
			CreatedAt:       ParseTimestamp(mr.CreatedAt),
			StoredCreatedAt: mr.CreatedAt,
		}
		if msg.ID == "" {
			msg.ID = model.NewID()
		}
		if len(mr.Attachments) > 0 {
			msg.Attachments = append([]model.Attachment(nil), mr.Attachments...)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, nil
}

func (r *Record) clone() *Record {
	c := &Record{Title: r.Title, CreatedAt: r.CreatedAt, Messages: make([]MessageRecord, len(r.Messages))}
	for i, m := range r.Messages {
		c.Messages[i] = m
		if m.Attachments != nil {
			c.Messages[i].Attachments = append([]model.Attachment(nil), m.Attachments...)
		}
	}
	return c
}

// =============================================================================
// COLLECTION (ORDERED MAP)
// =============================================================================

// Collection is an insertion-ordered mapping of conversation ID to Record.
// The zero value is an empty collection ready to use.
type Collection struct {
	ids     []string
	records map[string]*Record
}

// Put inserts or replaces a record. New IDs are appended; existing IDs keep
// their position.
func (c *Collection) Put(id string, rec *Record) {
	if c.records == nil {
		c.records = make(map[string]*Record)
	}
	if _, ok := c.records[id]; !ok {
		c.ids = append(c.ids, id)
	}
	c.records[id] = rec
}

// Get returns the record for id.
func (c *Collection) Get(id string) (*Record, bool) {
	rec, ok := c.records[id]
	return rec, ok
}

// IDs returns the IDs in insertion order.
func (c *Collection) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Len returns the number of records.
func (c *Collection) Len() int {
	return len(c.ids)
}

// MarshalJSON writes the collection as a JSON object with keys in
// insertion order.
func (c Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range c.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.records[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the document's key order.
// A null value yields an empty collection.
func (c *Collection) UnmarshalJSON(data []byte) error {
	*c = Collection{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("collection must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("collection key must be a string")
		}
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("conversation %s: %w", id, err)
		}
		c.Put(id, &rec)
	}
	_, err = dec.Token()
	return err
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the full persisted state of a conversation store.
type Snapshot struct {
	Active   Collection `json:"active"`
	Archived Collection `json:"archived"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Collection returns the collection for a bucket, or nil for an unknown bucket.
func (s *Snapshot) Collection(b model.Bucket) *Collection {
	switch b {
	case model.BucketActive:
		return &s.Active
	case model.BucketArchived:
		return &s.Archived
	}
	return nil
}

// Validate checks that no ID is present in both collections.
func (s *Snapshot) Validate() error {
	for _, id := range s.Active.ids {
		if _, ok := s.Archived.records[id]; ok {
			return fmt.Errorf("%w: conversation %s is both active and archived", ErrCorruptSnapshot, id)
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := NewSnapshot()
	for _, b := range []model.Bucket{model.BucketActive, model.BucketArchived} {
		src, dst := s.Collection(b), out.Collection(b)
		for _, id := range src.ids {
			dst.Put(id, src.records[id].clone())
		}
	}
	return out
}

// decodeSnapshot parses and validates a JSON snapshot. Empty input yields an
// empty snapshot.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	snap := NewSnapshot()
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
