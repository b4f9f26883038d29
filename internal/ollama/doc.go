// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// # Key Types
//
//   - Client: HTTP client for the local Ollama server
//   - Message: Chat message with role and content
//   - ChatResponse: Complete (non-streaming) reply with timing metrics
//   - ClientError: Categorized failure (not running, timeout, model not found)
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: "http://localhost:11434"})
//	resp, err := client.Chat(ctx, "llama3.2", []ollama.Message{
//	    ollama.NewUserMessage("Hello"),
//	}, nil)
//	fmt.Println(resp.Message.Content)
package ollama
