// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/chatstore/internal/model"
)

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	// APIKey authenticates requests. Generate fails with ErrNotConfigured when empty.
	APIKey string

	// BaseURL of any OpenAI-compatible API (Groq, OpenRouter, OpenAI).
	BaseURL string

	// Model is the chat model name.
	Model string

	// MaxRetries for rate limiting and 5xx responses.
	MaxRetries int

	// RetryDelay before the first retry; doubles on each attempt (default: 1s)
	RetryDelay time.Duration

	// HTTPClient overrides the transport. Optional.
	HTTPClient *http.Client
}

// OpenAIGenerator produces replies through an OpenAI-compatible chat
// completion endpoint.
type OpenAIGenerator struct {
	client   *openai.Client
	cfg      OpenAIConfig
	settings Settings
}

// NewOpenAIGenerator creates a generator for cfg. A missing API key is not
// an error here; each Generate call reports ErrNotConfigured instead so the
// failure shows up in the conversation.
func NewOpenAIGenerator(cfg OpenAIConfig, settings Settings) *OpenAIGenerator {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIGenerator{
		client:   openai.NewClientWithConfig(clientCfg),
		cfg:      cfg,
		settings: settings,
	}
}

// Model returns the configured model name.
func (g *OpenAIGenerator) Model() string {
	return g.cfg.Model
}

// Generate implements conversation.ReplyGenerator.
func (g *OpenAIGenerator) Generate(ctx context.Context, messages []*model.Message) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", ErrNotConfigured
	}

	turns := BuildTurns(g.settings.SystemPrompt, messages)
	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(turns)),
		Temperature: float32(g.settings.Temperature),
	}
	for i, t := range turns {
		req.Messages[i] = openai.ChatCompletionMessage{Role: chatRole(t.Role), Content: t.Content}
	}

	delay := g.cfg.RetryDelay
	for attempt := 0; ; attempt++ {
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", ErrEmptyReply
			}
			content := strings.TrimSpace(resp.Choices[0].Message.Content)
			if content == "" {
				return "", ErrEmptyReply
			}
			return content, nil
		}

		if attempt >= g.cfg.MaxRetries || !retryableAPIError(err) {
			return "", describeAPIError(err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func chatRole(role string) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// retryableAPIError reports whether err is a rate limit or server failure.
func retryableAPIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

// describeAPIError keeps the provider's message and drops the request noise.
func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		}
		return fmt.Errorf("provider returned %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return err
}
