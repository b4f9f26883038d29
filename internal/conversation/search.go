// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/util"
)

// Fields a search hit can match.
const (
	FieldTitle   = "title"
	FieldMessage = "message"
)

// snippetRunes is the length of a message snippet in a search hit.
const snippetRunes = 80

// SearchHit is one matching conversation.
type SearchHit struct {
	ID     string
	Bucket model.Bucket
	Title  string

	// Field is FieldTitle or FieldMessage.
	Field string

	// MessageID is set when Field is FieldMessage.
	MessageID string

	// Snippet is the matched title or a preview of the matched message.
	Snippet string
}

// SearchConversations finds conversations whose title or any message
// contains query, ignoring case. Each conversation is reported at most
// once: the title is checked first, then messages in order, and the first
// match wins. Hits follow insertion order, active before archived.
// A blank query matches nothing.
func (s *Store) SearchConversations(query string, scope model.Scope) []SearchHit {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	fold := cases.Fold()
	needle := fold.String(query)
	contains := func(text string) bool {
		return strings.Contains(fold.String(text), needle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []SearchHit
	for _, b := range scope.Buckets() {
		bkt, _ := s.bucketLocked(b)
		bkt.each(func(conv *model.Conversation) bool {
			if hit, ok := matchConversation(conv, b, contains); ok {
				hits = append(hits, hit)
			}
			return true
		})
	}
	return hits
}

func matchConversation(conv *model.Conversation, b model.Bucket, contains func(string) bool) (SearchHit, bool) {
	hit := SearchHit{ID: conv.ID, Bucket: b, Title: conv.Title}
	if contains(conv.Title) {
		hit.Field = FieldTitle
		hit.Snippet = conv.Title
		return hit, true
	}
	for _, msg := range conv.Messages {
		if contains(msg.Content) {
			hit.Field = FieldMessage
			hit.MessageID = msg.ID
			hit.Snippet = util.TruncateRunes(util.SingleLine(msg.Content), snippetRunes)
			return hit, true
		}
	}
	return hit, false
}
