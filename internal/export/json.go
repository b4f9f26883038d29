// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/chatstore/internal/model"
)

// =============================================================================
// STRUCTURED DOCUMENT
// =============================================================================

// document is the structure written by the JSON and YAML exporters.
type document struct {
	ID        string            `json:"id" yaml:"id"`
	Title     string            `json:"title" yaml:"title"`
	CreatedAt string            `json:"createdAt" yaml:"createdAt"`
	Messages  []documentMessage `json:"messages" yaml:"messages"`
}

type documentMessage struct {
	ID          string             `json:"id" yaml:"id"`
	Role        string             `json:"role" yaml:"role"`
	Content     string             `json:"content" yaml:"content"`
	CreatedAt   string             `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

func newDocument(conv *model.Conversation) *document {
	doc := &document{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedLabel(),
		Messages:  make([]documentMessage, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		dm := documentMessage{
			ID:          msg.ID,
			Role:        msg.Role.String(),
			Content:     msg.Content,
			Attachments: msg.Attachments,
		}
		switch {
		case !msg.CreatedAt.IsZero():
			dm.CreatedAt = msg.CreatedAt.Format(time.RFC3339)
		case msg.StoredCreatedAt != "":
			dm.CreatedAt = msg.StoredCreatedAt
		}
		doc.Messages = append(doc.Messages, dm)
	}
	return doc
}

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports conversations to JSON format.
// JSON exports always include the complete conversation.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	data, err := json.MarshalIndent(newDocument(conv), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports conversations to YAML format.
type YAMLExporter struct{}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter() *YAMLExporter {
	return &YAMLExporter{}
}

// Export converts a conversation to YAML.
func (e *YAMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	return yaml.Marshal(newDocument(conv))
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
