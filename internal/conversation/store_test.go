// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// flakyRepo wraps a MemoryRepository and fails Save while fail is set.
type flakyRepo struct {
	*storage.MemoryRepository

	mu   sync.Mutex
	fail bool
}

var errDiskFull = errors.New("disk full")

func (r *flakyRepo) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *flakyRepo) Save(ctx context.Context, snap *storage.Snapshot) error {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return r.MemoryRepository.Save(ctx, snap)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *storage.MemoryRepository) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	store, err := NewStore(context.Background(), repo, opts...)
	require.NoError(t, err)
	return store, repo
}

func staticReply(text string) ReplyGenerator {
	return ReplyGeneratorFunc(func(ctx context.Context, _ []*model.Message) (string, error) {
		return text, nil
	})
}

// assertOneBucket checks that every known ID lives in exactly one bucket.
func assertOneBucket(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	active := map[string]bool{}
	for _, id := range s.IDs(model.BucketActive) {
		active[id] = true
	}
	archived := map[string]bool{}
	for _, id := range s.IDs(model.BucketArchived) {
		archived[id] = true
	}
	for _, id := range ids {
		assert.True(t, active[id] != archived[id], "conversation %s: active=%v archived=%v", id, active[id], archived[id])
	}
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestNewConversation(t *testing.T) {
	store, repo := newTestStore(t)

	conv, err := store.NewConversation()
	require.NoError(t, err)
	assert.Len(t, conv.ID, 8)
	assert.Equal(t, model.DefaultTitle, conv.Title)
	assert.Empty(t, conv.Messages)
	assert.False(t, conv.CreatedAt.IsZero())
	assert.Equal(t, conv.ID, store.CurrentID())

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{conv.ID}, snap.Active.IDs())
}

func TestNewConversation_ReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t)

	conv, err := store.NewConversation()
	require.NoError(t, err)
	conv.Title = "mutated"

	got, err := store.Get(conv.ID, model.BucketActive)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, got.Title)
}

func TestOpenConversation(t *testing.T) {
	store, _ := newTestStore(t)
	c1, _ := store.NewConversation()
	c2, _ := store.NewConversation()
	assert.Equal(t, c2.ID, store.CurrentID())

	require.NoError(t, store.OpenConversation(c1.ID))
	assert.Equal(t, c1.ID, store.CurrentID())
	assert.Equal(t, c1.ID, store.Current().ID)

	err := store.OpenConversation("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, c1.ID, store.CurrentID(), "failed open must not change current")

	require.NoError(t, store.ArchiveConversation(c2.ID))
	var nf *NotFoundError
	require.True(t, errors.As(store.OpenConversation(c2.ID), &nf))
	assert.Equal(t, KindConversation, nf.Kind)
	assert.Equal(t, model.BucketActive, nf.Bucket)
}

func TestRenameConversation(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()

	require.NoError(t, store.RenameConversation(conv.ID, "  Trip plans  ", model.BucketActive))
	got, _ := store.Get(conv.ID, model.BucketActive)
	assert.Equal(t, "Trip plans", got.Title)

	require.NoError(t, store.RenameConversation(conv.ID, "   ", model.BucketActive))
	got, _ = store.Get(conv.ID, model.BucketActive)
	assert.Equal(t, "Trip plans", got.Title, "whitespace rename is a no-op")

	err := store.RenameConversation(conv.ID, "Other", model.BucketArchived)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.ArchiveConversation(conv.ID))
	require.NoError(t, store.RenameConversation(conv.ID, "Archived trip", model.BucketArchived))
	got, _ = store.Get(conv.ID, model.BucketArchived)
	assert.Equal(t, "Archived trip", got.Title)

	err = store.RenameConversation(conv.ID, "x", model.Bucket("trash"))
	assert.True(t, errors.Is(err, ErrInvalidBucket))
}

func TestDeleteConversation(t *testing.T) {
	store, _ := newTestStore(t)
	c1, _ := store.NewConversation()
	c2, _ := store.NewConversation()

	// Deleting a conversation that is not open keeps current
	require.NoError(t, store.DeleteConversation(c1.ID, model.BucketActive))
	assert.Equal(t, c2.ID, store.CurrentID())

	// Deleting the open conversation closes it
	require.NoError(t, store.DeleteConversation(c2.ID, model.BucketActive))
	assert.Equal(t, "", store.CurrentID())
	assert.Nil(t, store.Current())

	// Idempotent
	require.NoError(t, store.DeleteConversation(c2.ID, model.BucketActive))
	require.NoError(t, store.DeleteConversation("missing", model.BucketArchived))
	assert.Empty(t, store.IDs(model.BucketActive))
}

func TestDeleteConversation_ArchivedKeepsCurrent(t *testing.T) {
	store, _ := newTestStore(t)
	c1, _ := store.NewConversation()
	require.NoError(t, store.ArchiveConversation(c1.ID))
	c2, _ := store.NewConversation()

	require.NoError(t, store.DeleteConversation(c1.ID, model.BucketArchived))
	assert.Equal(t, c2.ID, store.CurrentID())
	_, ok := store.Locate(c1.ID)
	assert.False(t, ok)
}

func TestDeleteConversation_WrongBucketIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()

	require.NoError(t, store.DeleteConversation(conv.ID, model.BucketArchived))
	b, ok := store.Locate(conv.ID)
	require.True(t, ok)
	assert.Equal(t, model.BucketActive, b)
}

func TestArchiveRestore_PreservesContent(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	_, err := store.AppendMessage(conv.ID, model.RoleUser, "Hello there")
	require.NoError(t, err)
	_, err = store.GenerateReply(context.Background(), conv.ID, staticReply("Hi!"))
	require.NoError(t, err)

	before, _ := store.Get(conv.ID, model.BucketActive)

	require.NoError(t, store.ArchiveConversation(conv.ID))
	assert.Equal(t, "", store.CurrentID())
	_, err = store.Get(conv.ID, model.BucketActive)
	assert.True(t, errors.Is(err, ErrNotFound))
	archived, err := store.Get(conv.ID, model.BucketArchived)
	require.NoError(t, err)
	assert.Equal(t, before, archived)
	assertOneBucket(t, store, conv.ID)

	require.NoError(t, store.RestoreConversation(conv.ID))
	assert.Equal(t, "", store.CurrentID(), "restore does not open")
	restored, err := store.Get(conv.ID, model.BucketActive)
	require.NoError(t, err)
	assert.Equal(t, before, restored)
	assertOneBucket(t, store, conv.ID)
}

func TestArchive_KeepsOtherCurrent(t *testing.T) {
	store, _ := newTestStore(t)
	c1, _ := store.NewConversation()
	c2, _ := store.NewConversation()

	require.NoError(t, store.ArchiveConversation(c1.ID))
	assert.Equal(t, c2.ID, store.CurrentID())
}

func TestArchiveRestore_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()

	assert.True(t, errors.Is(store.RestoreConversation(conv.ID), ErrNotFound))
	require.NoError(t, store.ArchiveConversation(conv.ID))
	assert.True(t, errors.Is(store.ArchiveConversation(conv.ID), ErrNotFound))
	assert.True(t, errors.Is(store.ArchiveConversation("missing"), ErrNotFound))
}

func TestBucketOrder(t *testing.T) {
	store, _ := newTestStore(t)
	var ids []string
	for i := 0; i < 4; i++ {
		c, _ := store.NewConversation()
		ids = append(ids, c.ID)
	}
	assert.Equal(t, ids, store.IDs(model.BucketActive))

	// Restored conversations go to the end
	require.NoError(t, store.ArchiveConversation(ids[1]))
	require.NoError(t, store.RestoreConversation(ids[1]))
	assert.Equal(t, []string{ids[0], ids[2], ids[3], ids[1]}, store.IDs(model.BucketActive))
	assertOneBucket(t, store, ids...)
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestAppendMessage(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()

	att := model.DescribeAttachment("photo.png", 2048)
	msg, err := store.AppendMessage(conv.ID, model.RoleUser, "look", WithAttachments(att))
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, msg.Role)
	assert.Equal(t, "look", msg.Content)
	assert.Equal(t, []model.Attachment{att}, msg.Attachments)

	got, _ := store.Get(conv.ID, model.BucketActive)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, msg.ID, got.Messages[0].ID)
}

func TestAppendMessage_Errors(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()

	_, err := store.AppendMessage(conv.ID, model.Role("system"), "x")
	assert.True(t, errors.Is(err, ErrInvalidRole))

	_, err = store.AppendMessage("missing", model.RoleUser, "x")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.ArchiveConversation(conv.ID))
	_, err = store.AppendMessage(conv.ID, model.RoleUser, "x")
	assert.True(t, errors.Is(err, ErrNotFound), "archived conversations are read-only")
}

func TestEditMessage(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	m1, _ := store.AppendMessage(conv.ID, model.RoleUser, "frist")
	m2, _ := store.AppendMessage(conv.ID, model.RoleAssistant, "reply")

	require.NoError(t, store.EditMessage(conv.ID, m1.ID, "first"))

	got, _ := store.Get(conv.ID, model.BucketActive)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, m1.ID, got.Messages[0].ID)
	assert.Equal(t, "first", got.Messages[0].Content)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.Equal(t, m2.ID, got.Messages[1].ID)

	var nf *NotFoundError
	require.True(t, errors.As(store.EditMessage(conv.ID, "nope", "x"), &nf))
	assert.Equal(t, KindMessage, nf.Kind)
	assert.True(t, errors.Is(store.EditMessage("nope", m1.ID, "x"), ErrNotFound))
}

// =============================================================================
// AUTOTITLE TESTS
// =============================================================================

func TestAutotitle_Scenario(t *testing.T) {
	store, _ := newTestStore(t)
	c1, _ := store.NewConversation()

	_, _ = store.AppendMessage(c1.ID, model.RoleUser, "Hello there")
	require.NoError(t, store.AutotitleIfNeeded(c1.ID))
	got, _ := store.Get(c1.ID, model.BucketActive)
	assert.Equal(t, "Hello there", got.Title)

	_, _ = store.AppendMessage(c1.ID, model.RoleUser, "ignored")
	require.NoError(t, store.AutotitleIfNeeded(c1.ID))
	got, _ = store.Get(c1.ID, model.BucketActive)
	assert.Equal(t, "Hello there", got.Title)
}

func TestAutotitle_WhitespaceOnly(t *testing.T) {
	store, _ := newTestStore(t)
	c2, _ := store.NewConversation()

	_, _ = store.AppendMessage(c2.ID, model.RoleUser, "   ")
	require.NoError(t, store.AutotitleIfNeeded(c2.ID))
	got, _ := store.Get(c2.ID, model.BucketActive)
	assert.Equal(t, model.DefaultTitle, got.Title)

	_, _ = store.AppendMessage(c2.ID, model.RoleUser, "  Real question  ")
	require.NoError(t, store.AutotitleIfNeeded(c2.ID))
	got, _ = store.Get(c2.ID, model.BucketActive)
	assert.Equal(t, "Real question", got.Title)
}

func TestAutotitle_TruncatesAndIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	long := strings.Repeat("é", 30) + strings.Repeat("x", 30)
	_, _ = store.AppendMessage(conv.ID, model.RoleUser, long)

	require.NoError(t, store.AutotitleIfNeeded(conv.ID))
	once, _ := store.Get(conv.ID, model.BucketActive)
	require.NoError(t, store.AutotitleIfNeeded(conv.ID))
	twice, _ := store.Get(conv.ID, model.BucketActive)

	assert.Equal(t, 40, len([]rune(once.Title)))
	assert.Equal(t, once.Title, twice.Title)
}

func TestAutotitle_RenamedIsKept(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	require.NoError(t, store.RenameConversation(conv.ID, "Mine", model.BucketActive))
	_, _ = store.AppendMessage(conv.ID, model.RoleUser, "Hello")

	require.NoError(t, store.AutotitleIfNeeded(conv.ID))
	got, _ := store.Get(conv.ID, model.BucketActive)
	assert.Equal(t, "Mine", got.Title)
}

func TestEditMessage_ArchivedIsReadOnly(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	msg, _ := store.AppendMessage(conv.ID, model.RoleUser, "hello")
	require.NoError(t, store.ArchiveConversation(conv.ID))

	for name, err := range map[string]error{
		"edit":      store.EditMessage(conv.ID, msg.ID, "changed"),
		"autotitle": store.AutotitleIfNeeded(conv.ID),
	} {
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf), name)
		assert.Equal(t, model.BucketActive, nf.Bucket, name)
		assert.Equal(t, model.BucketArchived, nf.Present, name)
		assert.Contains(t, err.Error(), "not found in active (it is archived)", name)
	}

	got, err := store.Get(conv.ID, model.BucketArchived)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, model.DefaultTitle, got.Title)

	var nf *NotFoundError
	require.True(t, errors.As(store.EditMessage("missing", msg.ID, "x"), &nf))
	assert.Empty(t, nf.Present)
}

func TestAutotitle_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	assert.True(t, errors.Is(store.AutotitleIfNeeded("missing"), ErrNotFound))
}

// =============================================================================
// EXPORT TESTS
// =============================================================================

func TestExportConversation(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()

	out, err := store.ExportConversation(conv.ID, model.BucketActive)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Title: New Chat", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Created: "))
	assert.Equal(t, strings.Repeat("-", 40), lines[2])

	_, _ = store.AppendMessage(conv.ID, model.RoleUser, "Hi")
	_, _ = store.GenerateReply(context.Background(), conv.ID, staticReply("Hello!"))
	out, err = store.ExportConversation(conv.ID, model.BucketActive)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Title: Hi\nCreated: "))
	assert.True(t, strings.HasSuffix(out, "\nUser: Hi\nAssistant: Hello!\n"), out)

	_, err = store.ExportConversation(conv.ID, model.BucketArchived)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// =============================================================================
// PERSISTENCE TESTS
// =============================================================================

func TestPersistenceError_KeepsStateAndFlushRetries(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: storage.NewMemoryRepository()}
	store, err := NewStore(context.Background(), repo)
	require.NoError(t, err)
	conv, err := store.NewConversation()
	require.NoError(t, err)

	repo.setFail(true)
	msg, err := store.AppendMessage(conv.ID, model.RoleUser, "unsaved")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, errDiskFull))
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "append message", pe.Op)
	require.NotNil(t, msg, "the message is still returned")
	assert.True(t, store.Dirty())

	got, _ := store.Get(conv.ID, model.BucketActive)
	require.Len(t, got.Messages, 1, "in-memory state is kept")

	assert.True(t, errors.Is(store.Flush(context.Background()), ErrPersistence))

	repo.setFail(false)
	require.NoError(t, store.Flush(context.Background()))
	assert.False(t, store.Dirty())

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	rec, ok := snap.Active.Get(conv.ID)
	require.True(t, ok)
	require.Len(t, rec.Messages, 1)
	assert.Equal(t, "unsaved", rec.Messages[0].Content)
}

func TestStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chats.json")

	store, err := NewStore(ctx, storage.NewJSONFileRepository(path))
	require.NoError(t, err)
	c1, _ := store.NewConversation()
	_, _ = store.AppendMessage(c1.ID, model.RoleUser, "first chat")
	c2, _ := store.NewConversation()
	_, _ = store.AppendMessage(c2.ID, model.RoleUser, "second chat")
	c3, _ := store.NewConversation()
	require.NoError(t, store.ArchiveConversation(c2.ID))

	reopened, err := NewStore(ctx, storage.NewJSONFileRepository(path))
	require.NoError(t, err)
	assert.Equal(t, []string{c1.ID, c3.ID}, reopened.IDs(model.BucketActive))
	assert.Equal(t, []string{c2.ID}, reopened.IDs(model.BucketArchived))
	assert.Equal(t, "", reopened.CurrentID())

	got, err := reopened.Get(c2.ID, model.BucketArchived)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "second chat", got.Messages[0].Content)
}

func TestStore_KeepsStoredTimestamps(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chats.json")
	doc := `{"active":{"c1":{"title":"Old","createdAt":"2025-01-02T10:00:00 IST",` +
		`"messages":[{"role":"user","content":"hi","createdAt":"sometime"}]}},"archived":{}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	store, err := NewStore(ctx, storage.NewJSONFileRepository(path))
	require.NoError(t, err)
	require.NoError(t, store.RenameConversation("c1", "Renamed", model.BucketActive))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"createdAt": "2025-01-02T10:00:00 IST"`)
	assert.Contains(t, string(data), `"createdAt": "sometime"`)

	out, err := store.ExportConversation("c1", model.BucketActive)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Title: Renamed\nCreated: 2025-01-02T10:00:00 IST\n"), out)
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)
	c1, _ := store.NewConversation()
	c2, _ := store.NewConversation()

	// Another writer removes the open conversation
	snap, err := repo.Load(ctx)
	require.NoError(t, err)
	external := storage.NewSnapshot()
	rec, _ := snap.Active.Get(c1.ID)
	external.Active.Put(c1.ID, rec)
	require.NoError(t, repo.Save(ctx, external))

	require.NoError(t, store.Reload(ctx))
	assert.Equal(t, []string{c1.ID}, store.IDs(model.BucketActive))
	assert.Equal(t, "", store.CurrentID(), "current conversation %s disappeared", c2.ID)
}

func TestNewStore_RejectsCorruptSnapshot(t *testing.T) {
	snap := storage.NewSnapshot()
	snap.Active.Put("x", &storage.Record{Title: "a", Messages: []storage.MessageRecord{}})
	snap.Archived.Put("x", &storage.Record{Title: "b", Messages: []storage.MessageRecord{}})

	_, err := NewStore(context.Background(), storage.NewMemoryRepositoryWith(snap))
	assert.True(t, errors.Is(err, storage.ErrCorruptSnapshot))
}

// =============================================================================
// LIST TESTS
// =============================================================================

func TestListConversations(t *testing.T) {
	store, _ := newTestStore(t)
	c1, _ := store.NewConversation()
	_, _ = store.AppendMessage(c1.ID, model.RoleUser, "line one\nline two")
	c2, _ := store.NewConversation()

	list := store.ListConversations(model.BucketActive)
	require.Len(t, list, 2)
	assert.Equal(t, c1.ID, list[0].ID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.Equal(t, "line one line two", list[0].Preview)
	assert.False(t, list[0].Current)
	assert.Equal(t, c2.ID, list[1].ID)
	assert.True(t, list[1].Current)

	assert.Empty(t, store.ListConversations(model.BucketArchived))
}

func TestFormatConversationList(t *testing.T) {
	assert.Equal(t, "No conversations found.", FormatConversationList(nil, 80))

	created := time.Date(2025, 1, 2, 15, 4, 0, 0, time.Local)
	out := FormatConversationList([]Summary{
		{ID: "aaaa1111", Title: "Short", CreatedAt: created, MessageCount: 3, Current: true},
		{ID: "bbbb2222", Title: strings.Repeat("long title ", 20), CreatedAt: created},
	}, 60)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Title")
	assert.True(t, strings.HasPrefix(lines[2], "* aaaa1111"))
	assert.Contains(t, lines[2], "2025-01-02 15:04")
	assert.True(t, strings.HasPrefix(lines[3], "  bbbb2222"))
	assert.True(t, strings.HasSuffix(lines[3], "..."))
	assert.LessOrEqual(t, len(lines[3]), 60)
}
