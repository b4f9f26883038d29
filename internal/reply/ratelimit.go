// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/chatstore/internal/conversation"
	"github.com/jeranaias/chatstore/internal/model"
)

// rateLimited throttles calls to the wrapped generator.
type rateLimited struct {
	next    conversation.ReplyGenerator
	limiter *rate.Limiter
}

// RateLimited wraps gen so that at most rpm calls start per minute, with a
// burst of one. rpm <= 0 returns gen unchanged. Waiting honors ctx, so a
// reply timeout also covers time spent queued.
func RateLimited(gen conversation.ReplyGenerator, rpm int) conversation.ReplyGenerator {
	if rpm <= 0 {
		return gen
	}
	return &rateLimited{
		next:    gen,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

func (r *rateLimited) Generate(ctx context.Context, messages []*model.Message) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Generate(ctx, messages)
}
