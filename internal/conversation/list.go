// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/util"
)

// previewRunes is the length of the preview in a Summary.
const previewRunes = 80

// Summary describes a conversation without its messages.
type Summary struct {
	ID           string
	Title        string
	Bucket       model.Bucket
	CreatedAt    time.Time
	MessageCount int
	Preview      string
	Current      bool
}

// ListConversations summarizes the conversations in bucket in insertion order.
func (s *Store) ListConversations(b model.Bucket) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	bkt, err := s.bucketLocked(b)
	if err != nil {
		return nil
	}
	out := make([]Summary, 0, bkt.len())
	bkt.each(func(conv *model.Conversation) bool {
		out = append(out, Summary{
			ID:           conv.ID,
			Title:        conv.Title,
			Bucket:       b,
			CreatedAt:    conv.CreatedAt,
			MessageCount: conv.MessageCount(),
			Preview:      util.SingleLine(conv.Preview(previewRunes)),
			Current:      b == model.BucketActive && conv.ID == s.currentID,
		})
		return true
	})
	return out
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// Column widths of FormatConversationList.
const (
	colID      = 10
	colCreated = 17
	colCount   = 5
	minTitle   = 12
)

// FormatConversationList renders summaries as a table fitting width
// display columns. The current conversation is marked with '*'.
func FormatConversationList(summaries []Summary, width int) string {
	if len(summaries) == 0 {
		return "No conversations found."
	}

	titleWidth := width - (2 + colID + 1 + colCreated + 1 + colCount + 1)
	if titleWidth < minTitle {
		titleWidth = minTitle
	}

	var sb strings.Builder
	header := "  " + util.PadRight("ID", colID) + " " +
		util.PadRight("Created", colCreated) + " " +
		util.PadRight("Msgs", colCount) + " Title"
	sb.WriteString(header + "\n")
	sb.WriteString(strings.Repeat("-", util.StringWidth(header)+titleWidth-len("Title")) + "\n")

	for _, s := range summaries {
		mark := "  "
		if s.Current {
			mark = "* "
		}
		created := ""
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		sb.WriteString(mark +
			util.PadRight(s.ID, colID) + " " +
			util.PadRight(created, colCreated) + " " +
			util.PadRight(strconv.Itoa(s.MessageCount), colCount) + " " +
			util.TruncateWidth(util.SingleLine(s.Title), titleWidth) + "\n")
	}
	return sb.String()
}
