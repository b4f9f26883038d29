// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/chatstore/internal/model"
)

// TextSeparator is the line between the text export header and the messages.
var TextSeparator = strings.Repeat("-", 40)

// =============================================================================
// TEXT EXPORTER
// =============================================================================

// TextExporter renders the stable plain-text transcript:
//
//	Title: <title>
//	Created: <RFC3339 timestamp>
//	----------------------------------------
//	User: <content>
//	Assistant: <content>
//
// Other tools parse this layout, so it must not change.
type TextExporter struct{}

// NewTextExporter creates a new plain-text exporter.
func NewTextExporter() *TextExporter {
	return &TextExporter{}
}

// Export converts a conversation to the plain-text transcript.
// A conversation without messages yields only the header and separator.
func (e *TextExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	return []byte(Text(conv)), nil
}

// FileExtension returns the file extension for plain text.
func (e *TextExporter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for plain text.
func (e *TextExporter) MimeType() string {
	return "text/plain"
}

// Text renders conv in the plain-text transcript format.
func Text(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("Title: " + conv.Title + "\n")
	sb.WriteString("Created: " + conv.CreatedLabel() + "\n")
	sb.WriteString(TextSeparator + "\n")
	for _, msg := range conv.Messages {
		sb.WriteString(msg.Role.Label() + ": " + msg.Content + "\n")
	}
	return sb.String()
}
