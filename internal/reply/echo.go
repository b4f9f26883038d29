// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"context"
	"fmt"

	"github.com/jeranaias/chatstore/internal/model"
)

// EchoGenerator replies without a model by repeating the last user turn.
// Useful offline and in tests.
type EchoGenerator struct{}

// Generate implements conversation.ReplyGenerator.
func (EchoGenerator) Generate(ctx context.Context, messages []*model.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var last *model.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil && messages[i].Role == model.RoleUser {
			last = messages[i]
			break
		}
	}
	if last == nil {
		return "", ErrEmptyReply
	}

	text := "You said: " + last.Content
	if n := len(last.Attachments); n > 0 {
		text += fmt.Sprintf(" (%d attachment(s) noted)", n)
	}
	return text, nil
}
