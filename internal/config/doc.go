// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and logger setup for chatstore.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - StorageConfig: Persistence backend selection
//   - GeneratorConfig: Reply provider, prompt, timeout and rate limit
//   - LoggingConfig: slog level, format and optional log directory
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CHATSTORE_*, GROQ_API_KEY, OPENAI_API_KEY)
//   - ~/.chatstore/config.toml
//   - ~/.chatstore/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if cfg == nil {
//	    log.Fatal(err)
//	}
//	logger, closer, err := config.NewLogger(cfg.Logging, os.Stderr)
package config
