// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/ollama"
)

// OllamaGenerator produces replies from a local Ollama server.
type OllamaGenerator struct {
	client   *ollama.Client
	model    string
	settings Settings
}

// NewOllamaGenerator creates a generator that calls client with the given
// model. An empty model uses the client's default.
func NewOllamaGenerator(client *ollama.Client, modelName string, settings Settings) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: modelName, settings: settings}
}

// Model returns the model name sent with each request.
func (g *OllamaGenerator) Model() string {
	if g.model == "" {
		return g.client.Config().DefaultModel
	}
	return g.model
}

// Generate implements conversation.ReplyGenerator.
func (g *OllamaGenerator) Generate(ctx context.Context, messages []*model.Message) (string, error) {
	turns := BuildTurns(g.settings.SystemPrompt, messages)
	msgs := make([]ollama.Message, len(turns))
	for i, t := range turns {
		msgs[i] = ollama.Message{Role: t.Role, Content: t.Content}
	}

	var opts *ollama.Options
	if g.settings.Temperature > 0 {
		opts = &ollama.Options{Temperature: g.settings.Temperature}
	}

	resp, err := g.client.Chat(ctx, g.Model(), msgs, opts)
	if err != nil {
		switch {
		case ollama.IsNotRunning(err):
			return "", fmt.Errorf("ollama is not running at %s", g.client.Config().BaseURL)
		case ollama.IsModelNotFound(err):
			return "", fmt.Errorf("model %q not found; run: ollama pull %s", g.Model(), g.Model())
		}
		return "", err
	}

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}
