// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Store operations shared by subcommands and the chat REPL.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/chatstore/internal/config"
	"github.com/jeranaias/chatstore/internal/conversation"
	"github.com/jeranaias/chatstore/internal/export"
	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/util"
)

// ErrUsage marks an error caused by bad command arguments.
var ErrUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUsage}, args...)...)
}

// =============================================================================
// LIST
// =============================================================================

// List prints the conversations in bucket as a table.
func (a *App) List(b model.Bucket) {
	a.printf("%s\n", strings.TrimRight(
		conversation.FormatConversationList(a.Store.ListConversations(b), a.width()), "\n"))
}

// RunList implements "chatstore list [--archived]".
func RunList(a *App, raw []string) error {
	p := NewArgParser(raw, "archived")
	b := model.BucketActive
	if p.BoolFlag("archived") || strings.EqualFold(p.Positional(0), "archived") {
		b = model.BucketArchived
	}
	a.List(b)
	return nil
}

// =============================================================================
// SEARCH
// =============================================================================

// Search prints every conversation matching query in scope.
func (a *App) Search(query string, scope model.Scope) {
	hits := a.Store.SearchConversations(query, scope)
	if len(hits) == 0 {
		a.printf("No matches.\n")
		return
	}
	titleWidth := a.width() / 3
	for _, h := range hits {
		where := "title"
		if h.Field == conversation.FieldMessage {
			where = "message " + h.MessageID
		}
		a.printf("[%s] %s  %s\n    %s: %s\n",
			h.Bucket, h.ID, util.TruncateWidth(h.Title, titleWidth), where, util.SingleLine(h.Snippet))
	}
}

// RunSearch implements "chatstore search <query> [--scope S]".
func RunSearch(a *App, raw []string) error {
	p := NewArgParser(raw)
	query := p.Rest(0)
	if strings.TrimSpace(query) == "" {
		return usageError("search <query> [--scope active|archived|all]")
	}
	scope, err := model.ParseScope(p.FlagOrDefault("scope", string(model.ScopeAll)))
	if err != nil {
		return err
	}
	a.Search(query, scope)
	return nil
}

// =============================================================================
// EXPORT
// =============================================================================

// Export writes conversation id in the given format. With toStdout the
// rendered document is printed instead of saved. An empty format uses the
// configured default.
func (a *App) Export(id, format string, toStdout bool) error {
	b, ok := a.Store.Locate(id)
	if !ok {
		return &conversation.NotFoundError{Kind: conversation.KindConversation, ID: id}
	}

	if format == "" {
		format = a.Config.Export.Format
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	if toStdout && f == export.FormatText {
		text, err := a.Store.ExportConversation(id, b)
		if err != nil {
			return err
		}
		a.printf("%s", text)
		return nil
	}

	conv, err := a.Store.Get(id, b)
	if err != nil {
		return err
	}
	opts := export.DefaultOptions()
	opts.OutputDir = a.Config.Export.OutputDir
	exporter, err := export.NewExporter(f, opts)
	if err != nil {
		return err
	}

	if toStdout {
		data, err := exporter.Export(conv)
		if err != nil {
			return err
		}
		a.printf("%s", data)
		return nil
	}

	path, err := export.ExportToFile(conv, exporter, opts)
	if err != nil {
		return err
	}
	a.printf("Exported %s to %s\n", id, path)
	return nil
}

// RunExport implements "chatstore export <id> [--format F] [--out DIR] [--stdout]".
func RunExport(a *App, raw []string) error {
	p := NewArgParser(raw, "stdout")
	id := p.Positional(0)
	if id == "" {
		return usageError("export <id> [--format text|markdown|json|yaml] [--out DIR] [--stdout]")
	}
	if dir := p.Flag("out"); dir != "" {
		a.Config.Export.OutputDir = dir
	}
	return a.Export(id, p.Flag("format"), p.BoolFlag("stdout"))
}

// =============================================================================
// CONFIG
// =============================================================================

// ShowConfig prints one configuration value.
func (a *App) ShowConfig(key string) error {
	v, err := a.Config.Get(key)
	if err != nil {
		return err
	}
	a.printf("%s = %v\n", key, v)
	return nil
}

// RunConfig implements "chatstore config get|keys|init". It needs no store.
func RunConfig(a *App, raw []string) error {
	p := NewArgParser(raw, "force")
	switch p.Positional(0) {
	case "get":
		if p.Positional(1) == "" {
			return usageError("config get <key>")
		}
		return a.ShowConfig(p.Positional(1))
	case "keys", "":
		for _, k := range config.Keys() {
			a.printf("%s\n", k)
		}
		return nil
	case "init":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		// the api key stays in the environment
		cfg := *a.Config
		cfg.Cloud.APIKey = ""
		if err := config.SaveTOML(&cfg, path); err != nil {
			return err
		}
		a.printf("Wrote %s\n", path)
		return nil
	}
	return usageError("config get <key> | keys | init [--force]")
}
