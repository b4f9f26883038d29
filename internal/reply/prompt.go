// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"strings"

	"github.com/jeranaias/chatstore/internal/model"
)

// Turn roles understood by chat completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AttachmentHeader introduces the attachment notes appended to a user turn.
const AttachmentHeader = "[User attached files this turn]"

// Turn is one provider-neutral chat message.
type Turn struct {
	Role    string
	Content string
}

// Settings are shared by every generator.
type Settings struct {
	// SystemPrompt is sent first when non-empty.
	SystemPrompt string

	// Temperature is passed to the model. Zero leaves the provider default.
	Temperature float64
}

// BuildTurns converts stored messages into the turns sent to a model.
// Attachment notes on a message are appended to its content so the model
// knows what was attached:
//
//	hello
//
//	[User attached files this turn]
//	- Attached image file 'cat.png' (1234 bytes).
func BuildTurns(systemPrompt string, messages []*model.Message) []Turn {
	turns := make([]Turn, 0, len(messages)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		turns = append(turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		if m == nil {
			continue
		}
		turns = append(turns, Turn{Role: string(m.Role), Content: withAttachmentNotes(m)})
	}
	return turns
}

func withAttachmentNotes(m *model.Message) string {
	if len(m.Attachments) == 0 {
		return m.Content
	}
	var sb strings.Builder
	sb.WriteString(m.Content)
	sb.WriteString("\n\n")
	sb.WriteString(AttachmentHeader)
	for _, a := range m.Attachments {
		sb.WriteString("\n- ")
		sb.WriteString(a.Note)
	}
	return sb.String()
}
