// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstore/internal/model"
)

func TestSearchConversations_Scenario(t *testing.T) {
	store, _ := newTestStore(t)
	c1, _ := store.NewConversation()
	_, _ = store.AppendMessage(c1.ID, model.RoleUser, "Hello there")
	c3, _ := store.NewConversation()
	require.NoError(t, store.RenameConversation(c3.ID, "Other", model.BucketActive))
	_, _ = store.AppendMessage(c3.ID, model.RoleUser, "nothing to see")

	hits := store.SearchConversations("hello", model.ScopeActive)
	require.Len(t, hits, 1)
	assert.Equal(t, c1.ID, hits[0].ID)
	assert.Equal(t, FieldMessage, hits[0].Field)
	assert.Equal(t, model.BucketActive, hits[0].Bucket)
	assert.Equal(t, "Hello there", hits[0].Snippet)
}

func TestSearchConversations_FirstHitWins(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	require.NoError(t, store.RenameConversation(conv.ID, "Golang tips", model.BucketActive))
	_, _ = store.AppendMessage(conv.ID, model.RoleUser, "golang generics?")
	m2, _ := store.AppendMessage(conv.ID, model.RoleAssistant, "golang has them")

	hits := store.SearchConversations("GOLANG", model.ScopeAll)
	require.Len(t, hits, 1)
	assert.Equal(t, FieldTitle, hits[0].Field)
	assert.Empty(t, hits[0].MessageID)

	hits = store.SearchConversations("has them", model.ScopeAll)
	require.Len(t, hits, 1)
	assert.Equal(t, FieldMessage, hits[0].Field)
	assert.Equal(t, m2.ID, hits[0].MessageID)
}

func TestSearchConversations_Scope(t *testing.T) {
	store, _ := newTestStore(t)
	a, _ := store.NewConversation()
	_, _ = store.AppendMessage(a.ID, model.RoleUser, "école active")
	b, _ := store.NewConversation()
	_, _ = store.AppendMessage(b.ID, model.RoleUser, "École archived")
	require.NoError(t, store.ArchiveConversation(b.ID))
	c, _ := store.NewConversation()
	_, _ = store.AppendMessage(c.ID, model.RoleUser, "ÉCOLE second active")

	ids := func(hits []SearchHit) []string {
		var out []string
		for _, h := range hits {
			out = append(out, h.ID)
		}
		return out
	}

	assert.Equal(t, []string{a.ID, c.ID}, ids(store.SearchConversations("école", model.ScopeActive)))
	assert.Equal(t, []string{b.ID}, ids(store.SearchConversations("école", model.ScopeArchived)))
	assert.Equal(t, []string{a.ID, c.ID, b.ID}, ids(store.SearchConversations("école", model.ScopeAll)))
}

func TestSearchConversations_BlankQuery(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	_, _ = store.AppendMessage(conv.ID, model.RoleUser, "anything")

	assert.Empty(t, store.SearchConversations("   ", model.ScopeAll))
	assert.Empty(t, store.SearchConversations("x", model.Scope("bogus")))
}

func TestSearchConversations_SnippetIsSingleLine(t *testing.T) {
	store, _ := newTestStore(t)
	conv, _ := store.NewConversation()
	_, _ = store.AppendMessage(conv.ID, model.RoleUser, "first line\nneedle here")

	hits := store.SearchConversations("needle", model.ScopeActive)
	require.Len(t, hits, 1)
	assert.Equal(t, "first line needle here", hits[0].Snippet)
}
