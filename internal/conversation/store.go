// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatstore/internal/export"
	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/storage"
)

const (
	// DefaultReplyTimeout bounds a single generator call.
	DefaultReplyTimeout = 2 * time.Minute

	// DefaultSaveTimeout bounds a single repository write.
	DefaultSaveTimeout = 30 * time.Second
)

// =============================================================================
// STORE
// =============================================================================

// Store holds active and archived conversations and the currently open one.
// It is safe for concurrent use, but callers should serialize a user's
// actions the way an interactive session does.
type Store struct {
	repo         storage.Repository
	logger       *slog.Logger
	replyTimeout time.Duration
	saveTimeout  time.Duration

	mu        sync.Mutex
	active    *bucket
	archived  *bucket
	currentID string
	inflight  map[string]bool
	dirty     bool
}

// Option configures a Store.
type Option func(*Store)

// WithReplyTimeout bounds each generator call. Zero or negative disables
// the timeout.
func WithReplyTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.replyTimeout = d
	}
}

// WithSaveTimeout bounds each write-through.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store and loads its state from repo.
func NewStore(ctx context.Context, repo storage.Repository, opts ...Option) (*Store, error) {
	s := &Store{
		repo:         repo,
		logger:       slog.Default(),
		replyTimeout: DefaultReplyTimeout,
		saveTimeout:  DefaultSaveTimeout,
		active:       newBucket(),
		archived:     newBucket(),
		inflight:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory state with the repository's. The current
// conversation stays open if it is still active. Unsaved changes are lost.
func (s *Store) Reload(ctx context.Context) error {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	active, err := bucketFromCollection(&snap.Active)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	archived, err := bucketFromCollection(&snap.Archived)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.logger.Warn("reload discards unsaved changes")
	}
	s.active, s.archived = active, archived
	s.dirty = false
	if _, ok := s.active.get(s.currentID); !ok {
		s.currentID = ""
	}
	s.logger.Debug("conversations loaded", "active", active.len(), "archived", archived.len())
	return nil
}

// Flush writes the current state, retrying a failed write-through.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, "flush")
}

// Dirty reports whether the last write-through failed.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (s *Store) snapshotLocked() *storage.Snapshot {
	snap := storage.NewSnapshot()
	s.active.fill(&snap.Active)
	s.archived.fill(&snap.Archived)
	return snap
}

// persistLocked writes through after a mutation.
func (s *Store) persistLocked(op string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	return s.saveLocked(ctx, op)
}

func (s *Store) saveLocked(ctx context.Context, op string) error {
	if err := s.repo.Save(ctx, s.snapshotLocked()); err != nil {
		s.dirty = true
		s.logger.Error("failed to persist conversations", "op", op, "error", err)
		return &PersistenceError{Op: op, Err: err}
	}
	s.dirty = false
	return nil
}

// bucketLocked returns the bucket named b.
func (s *Store) bucketLocked(b model.Bucket) (*bucket, error) {
	switch b {
	case model.BucketActive:
		return s.active, nil
	case model.BucketArchived:
		return s.archived, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, b)
}

func (s *Store) activeLocked(id string) (*model.Conversation, error) {
	conv, ok := s.active.get(id)
	if !ok {
		nf := &NotFoundError{Kind: KindConversation, ID: id, Bucket: model.BucketActive}
		if _, archived := s.archived.get(id); archived {
			nf.Present = model.BucketArchived
		}
		return nil, nf
	}
	return conv, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// NewConversation creates an empty active conversation titled "New Chat"
// and makes it current. The returned conversation is a copy.
func (s *Store) NewConversation() (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewConversation()
	for s.idTakenLocked(conv.ID) {
		conv.ID = model.NewID()
	}
	s.active.add(conv)
	s.currentID = conv.ID
	s.logger.Debug("conversation created", "id", conv.ID)

	return conv.Clone(), s.persistLocked("new conversation")
}

func (s *Store) idTakenLocked(id string) bool {
	_, a := s.active.get(id)
	_, b := s.archived.get(id)
	return a || b
}

// OpenConversation makes an active conversation current.
func (s *Store) OpenConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeLocked(id); err != nil {
		return err
	}
	s.currentID = id
	return nil
}

// RenameConversation sets the title of a conversation in bucket. The title
// is trimmed; a blank title leaves the old one in place.
func (s *Store) RenameConversation(id, title string, b model.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bkt, err := s.bucketLocked(b)
	if err != nil {
		return err
	}
	conv, ok := bkt.get(id)
	if !ok {
		return conversationNotFound(id, b)
	}
	title = strings.TrimSpace(title)
	if title == "" || title == conv.Title {
		return nil
	}
	conv.Title = title
	return s.persistLocked("rename")
}

// DeleteConversation removes a conversation from bucket. Deleting an ID
// that is not there is a no-op. Deleting the current conversation closes it.
func (s *Store) DeleteConversation(id string, b model.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bkt, err := s.bucketLocked(b)
	if err != nil {
		return err
	}
	if _, ok := bkt.remove(id); !ok {
		return nil
	}
	if b == model.BucketActive && s.currentID == id {
		s.currentID = ""
	}
	s.logger.Debug("conversation deleted", "id", id, "bucket", b)
	return s.persistLocked("delete")
}

// ArchiveConversation moves an active conversation to the archive,
// closing it if it is current. Its content is not changed.
func (s *Store) ArchiveConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.active.remove(id)
	if !ok {
		return conversationNotFound(id, model.BucketActive)
	}
	s.archived.add(conv)
	if s.currentID == id {
		s.currentID = ""
	}
	s.logger.Debug("conversation archived", "id", id)
	return s.persistLocked("archive")
}

// RestoreConversation moves an archived conversation back to active. It
// does not become current.
func (s *Store) RestoreConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.archived.remove(id)
	if !ok {
		return conversationNotFound(id, model.BucketArchived)
	}
	s.active.add(conv)
	s.logger.Debug("conversation restored", "id", id)
	return s.persistLocked("restore")
}

// =============================================================================
// MESSAGES
// =============================================================================

// MessageOption configures a message added by AppendMessage.
type MessageOption func(*model.Message)

// WithAttachments records files the user attached to the message.
func WithAttachments(atts ...model.Attachment) MessageOption {
	return func(m *model.Message) {
		m.Attachments = append(m.Attachments, atts...)
	}
}

// AppendMessage adds a message to an active conversation and returns a copy.
// Archived conversations cannot be appended to.
func (s *Store) AppendMessage(cid string, role model.Role, content string, opts ...MessageOption) (*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.activeLocked(cid)
	if err != nil {
		return nil, err
	}
	msg := model.NewMessage(role, content)
	for _, opt := range opts {
		opt(msg)
	}
	conv.Messages = append(conv.Messages, msg)

	return msg.Clone(), s.persistLocked("append message")
}

// EditMessage replaces the content of a message in an active conversation.
// The message keeps its ID, role and position. An archived conversation is
// read-only and reported as not found in active.
func (s *Store) EditMessage(cid, mid, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.activeLocked(cid)
	if err != nil {
		return err
	}
	msg := conv.MessageByID(mid)
	if msg == nil {
		return messageNotFound(mid)
	}
	msg.Content = content
	return s.persistLocked("edit message")
}

// AutotitleIfNeeded titles an active conversation after its first non-blank
// user message, once. Archived conversations are not retitled.
func (s *Store) AutotitleIfNeeded(cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.activeLocked(cid)
	if err != nil {
		return err
	}
	if !conv.Autotitle() {
		return nil
	}
	s.logger.Debug("conversation autotitled", "id", cid, "title", conv.Title)
	return s.persistLocked("autotitle")
}

// =============================================================================
// REPLIES
// =============================================================================

// GenerateReply asks gen for the next assistant message of an active
// conversation and appends it. A generator failure or timeout is appended
// as a visible "⚠️ Error: ..." message instead of being returned. Only
// cancellation of ctx by the caller aborts without appending.
//
// If the conversation is archived or deleted while gen runs, the reply is
// dropped and a *NotFoundError is returned. On a *PersistenceError the
// appended message is returned as well.
func (s *Store) GenerateReply(ctx context.Context, cid string, gen ReplyGenerator) (*model.Message, error) {
	s.mu.Lock()
	conv, err := s.activeLocked(cid)
	if err == nil {
		err = s.beginReplyLocked(cid)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	history := cloneMessages(conv.Messages)
	s.mu.Unlock()

	text, err := s.generate(ctx, cid, history, gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, cid)
	if err != nil {
		return nil, err
	}

	conv, err = s.activeLocked(cid)
	if err != nil {
		s.logger.Debug("reply dropped", "id", cid, "error", err)
		return nil, err
	}
	msg := model.NewMessage(model.RoleAssistant, text)
	conv.Messages = append(conv.Messages, msg)
	conv.Autotitle()

	return msg.Clone(), s.persistLocked("generate reply")
}

// RegenerateReply replaces the content of assistant message mid with a new
// reply computed from the messages before it.
func (s *Store) RegenerateReply(ctx context.Context, cid, mid string, gen ReplyGenerator) (*model.Message, error) {
	s.mu.Lock()
	conv, err := s.activeLocked(cid)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	idx := conv.MessageIndex(mid)
	if idx < 0 {
		s.mu.Unlock()
		return nil, messageNotFound(mid)
	}
	if conv.Messages[idx].Role != model.RoleAssistant {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: message %s is not an assistant message", ErrInvalidRole, mid)
	}
	if err := s.beginReplyLocked(cid); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	history := cloneMessages(conv.Messages[:idx])
	s.mu.Unlock()

	text, err := s.generate(ctx, cid, history, gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, cid)
	if err != nil {
		return nil, err
	}

	conv, err = s.activeLocked(cid)
	if err != nil {
		return nil, err
	}
	msg := conv.MessageByID(mid)
	if msg == nil {
		return nil, messageNotFound(mid)
	}
	msg.Content = text
	return msg.Clone(), s.persistLocked("regenerate reply")
}

func (s *Store) beginReplyLocked(cid string) error {
	if s.inflight[cid] {
		return fmt.Errorf("%w: conversation %s", ErrReplyInProgress, cid)
	}
	s.inflight[cid] = true
	return nil
}

// generate runs gen without holding the lock. The only error it returns is
// the caller's context error; every other failure becomes reply text.
func (s *Store) generate(ctx context.Context, cid string, history []*model.Message, gen ReplyGenerator) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	genCtx := ctx
	if s.replyTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.replyTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := gen.Generate(genCtx, history)
	if err == nil {
		s.logger.Debug("reply generated", "id", cid, "duration", time.Since(start))
		return text, nil
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	cause := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || genCtx.Err() != nil {
		cause = fmt.Sprintf("reply timed out after %s", s.replyTimeout)
	}
	s.logger.Warn("reply generation failed", "id", cid, "error", err)
	return errorReply(cause), nil
}

func cloneMessages(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// =============================================================================
// QUERIES
// =============================================================================

// CurrentID returns the ID of the open conversation, or "" if none is open.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Current returns a copy of the open conversation, or nil.
func (s *Store) Current() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.active.get(s.currentID)
	if !ok {
		return nil
	}
	return conv.Clone()
}

// Get returns a copy of a conversation in bucket.
func (s *Store) Get(id string, b model.Bucket) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bkt, err := s.bucketLocked(b)
	if err != nil {
		return nil, err
	}
	conv, ok := bkt.get(id)
	if !ok {
		return nil, conversationNotFound(id, b)
	}
	return conv.Clone(), nil
}

// Locate reports which bucket holds id.
func (s *Store) Locate(id string) (model.Bucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active.get(id); ok {
		return model.BucketActive, true
	}
	if _, ok := s.archived.get(id); ok {
		return model.BucketArchived, true
	}
	return "", false
}

// IDs returns the IDs in bucket in insertion order.
func (s *Store) IDs(b model.Bucket) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	bkt, err := s.bucketLocked(b)
	if err != nil {
		return nil
	}
	return append([]string(nil), bkt.ids...)
}

// ExportConversation renders a conversation as a plain-text transcript:
// "Title:" and "Created:" header lines, a dash separator, then one
// "<Role>: <content>" line per message.
func (s *Store) ExportConversation(id string, b model.Bucket) (string, error) {
	conv, err := s.Get(id, b)
	if err != nil {
		return "", err
	}
	return export.Text(conv), nil
}
