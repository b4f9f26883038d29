// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reply implements the reply generators used by the conversation store.
//
// Every generator turns the stored messages into provider turns with
// BuildTurns: an optional system prompt first, then each message with its
// attachment notes appended. Generators return plain errors; the store turns
// them into a visible assistant message.
//
// # Generators
//
//   - OpenAIGenerator: any OpenAI-compatible endpoint (Groq by default)
//   - OllamaGenerator: a local Ollama server
//   - EchoGenerator: offline, repeats the last user message
//
// New selects one from configuration and applies RateLimited.
package reply
