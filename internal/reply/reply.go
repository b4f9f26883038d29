// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeranaias/chatstore/internal/config"
	"github.com/jeranaias/chatstore/internal/conversation"
	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/ollama"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured is returned when a cloud provider has no API key.
	ErrNotConfigured = errors.New("API key is missing; set CHATSTORE_API_KEY or GROQ_API_KEY")

	// ErrUnauthorized is returned when the provider rejects the API key.
	ErrUnauthorized = errors.New("provider rejected the API key")

	// ErrEmptyReply is returned when the model produced no text.
	ErrEmptyReply = errors.New("model returned an empty reply")

	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown reply provider")
)

// =============================================================================
// FACTORY
// =============================================================================

// New builds the generator selected by cfg.Generator.Provider, wrapped with
// rate limiting (when configured) and debug logging.
func New(cfg *config.Config, logger *slog.Logger) (conversation.ReplyGenerator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	settings := Settings{
		SystemPrompt: cfg.Generator.SystemPrompt,
		Temperature:  cfg.Generator.Temperature,
	}

	// ollama treats zero as "use default", negative as none
	retries := cfg.Generator.MaxRetries
	if retries == 0 {
		retries = -1
	}

	var (
		gen       conversation.ReplyGenerator
		modelName string
	)
	switch cfg.Generator.Provider {
	case config.ProviderOpenAI:
		g := NewOpenAIGenerator(OpenAIConfig{
			APIKey:     cfg.Cloud.APIKey,
			BaseURL:    cfg.Cloud.BaseURL,
			Model:      cfg.Cloud.Model,
			MaxRetries: cfg.Generator.MaxRetries,
		}, settings)
		if cfg.Cloud.APIKey == "" {
			logger.Warn("no API key configured; replies will report an error", "base_url", cfg.Cloud.BaseURL)
		}
		gen, modelName = g, g.Model()
	case config.ProviderOllama:
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.Local.OllamaURL,
			DefaultModel: cfg.Local.OllamaModel,
			MaxRetries:   retries,
		})
		g := NewOllamaGenerator(client, cfg.Local.OllamaModel, settings)
		gen, modelName = g, g.Model()
	case config.ProviderEcho:
		gen, modelName = EchoGenerator{}, "echo"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Generator.Provider)
	}

	gen = RateLimited(gen, cfg.Generator.RequestsPerMinute)
	return &logged{
		next:   gen,
		logger: logger.With("provider", cfg.Generator.Provider, "model", modelName),
	}, nil
}

// logged records the duration and outcome of each reply.
type logged struct {
	next   conversation.ReplyGenerator
	logger *slog.Logger
}

func (l *logged) Generate(ctx context.Context, messages []*model.Message) (string, error) {
	start := time.Now()
	text, err := l.next.Generate(ctx, messages)
	if err != nil {
		l.logger.Debug("reply failed", "turns", len(messages), "elapsed", time.Since(start), "error", err)
		return "", err
	}
	l.logger.Debug("reply generated", "turns", len(messages), "elapsed", time.Since(start), "chars", len(text))
	return text, nil
}
