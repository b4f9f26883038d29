// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations for use outside chatstore.
//
// # Key Types
//
//   - Exporter: Interface implemented by every format
//   - TextExporter: Stable plain-text transcript (Title/Created header)
//   - MarkdownExporter: Human-readable with YAML front matter
//   - JSONExporter, YAMLExporter: Structured, machine-readable
//   - Options: Output directory and Markdown details
//
// # Usage
//
//	text := export.Text(conv)
//
//	exporter, err := export.NewExporter(export.FormatMarkdown, nil)
//	path, err := export.ExportToFile(conv, exporter, &export.Options{OutputDir: "exports"})
package export
