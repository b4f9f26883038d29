// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"

	"github.com/jeranaias/chatstore/internal/model"
)

// ErrorReplyPrefix starts the assistant message that replaces a failed reply.
const ErrorReplyPrefix = "⚠️ Error: "

// ReplyGenerator produces the assistant's next message from the ordered
// messages of a conversation. Implementations must not retain or modify the
// slice; the store passes copies.
type ReplyGenerator interface {
	Generate(ctx context.Context, messages []*model.Message) (string, error)
}

// ReplyGeneratorFunc adapts a function to ReplyGenerator.
type ReplyGeneratorFunc func(ctx context.Context, messages []*model.Message) (string, error)

// Generate calls f(ctx, messages).
func (f ReplyGeneratorFunc) Generate(ctx context.Context, messages []*model.Message) (string, error) {
	return f(ctx, messages)
}

// errorReply renders a generator failure as assistant text.
func errorReply(cause string) string {
	return ErrorReplyPrefix + cause
}
