// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for chatstore.
//
// Plain input is sent to the open conversation (one is created if none is
// open) and the reply is printed. Lines starting with "/" are commands:
//
//	/new                      Start a new conversation
//	/list [archived]          List conversations
//	/open <id>                Open an active conversation
//	/rename [id] <title>      Rename (current conversation by default)
//	/archive [id]             Archive (current by default)
//	/restore <id>             Restore from the archive
//	/delete [id]              Delete (current by default)
//	/edit <msg-id> <text>     Edit a message in the current conversation
//	/regen [msg-id]           Regenerate an assistant reply (last by default)
//	/attach <path>            Attach a file to the next message
//	/export [id] [--format F] [--stdout]
//	/search <query> [--scope S]
//	/config <key>             Show a configuration value
//	/help, /quit
//
// Ctrl+C during a reply cancels it; Ctrl+C or Ctrl+D at the prompt exits.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/chatstore/internal/config"
	"github.com/jeranaias/chatstore/internal/conversation"
	"github.com/jeranaias/chatstore/internal/model"
)

// =============================================================================
// INPUT
// =============================================================================

// LineReader reads one line of input per call. io.EOF ends the session.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// ChatInput provides input history and line editing for interactive chat.
type ChatInput struct {
	line        *liner.State
	historyFile string
}

// NewChatInput creates a liner-backed reader. History is kept in
// ~/.chatstore/chat_history.
func NewChatInput() *ChatInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	in := &ChatInput{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(in.historyFile); err == nil {
		_, _ = in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

// Prompt reads a line. Ctrl+C at the prompt is reported as io.EOF.
func (c *ChatInput) Prompt(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (c *ChatInput) Close() error {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	return c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// Session is an interactive chat over the store.
type Session struct {
	app     *App
	pending []model.Attachment

	// interrupt returns a context cancelled by Ctrl+C while a reply runs.
	interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
}

// NewSession creates a chat session for app.
func NewSession(app *App) *Session {
	return &Session{
		app: app,
		interrupt: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
}

// Pending returns the attachments queued for the next message.
func (s *Session) Pending() []model.Attachment {
	return append([]model.Attachment(nil), s.pending...)
}

// Run reads lines from in until EOF or /quit.
func (s *Session) Run(ctx context.Context, in LineReader) error {
	if !s.app.Quiet {
		s.app.printf("chatstore %s - type /help for commands, /quit to exit\n", Version)
		if cur := s.app.Store.Current(); cur != nil {
			s.app.printf("Open conversation: %s (%s)\n", cur.ID, cur.Title)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := in.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.app.printf("\n")
				return nil
			}
			return err
		}

		quit, err := s.Execute(ctx, line)
		if err != nil {
			s.app.printf("[Error] %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (s *Session) prompt() string {
	if id := s.app.Store.CurrentID(); id != "" {
		return "chat:" + id + "> "
	}
	return "chat> "
}

// Execute handles one line of input. It reports whether the session should end.
func (s *Session) Execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if s.app.Store.Dirty() {
		if err := s.app.Store.Flush(ctx); err != nil {
			s.app.warnf("conversations still unsaved: %v", err)
		}
	}

	if !strings.HasPrefix(line, "/") {
		return false, s.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	for _, cmd := range s.commands() {
		if cmd.matches(name) {
			return cmd.run(ctx, arg)
		}
	}
	return false, usageError("unknown command /%s (try /help)", name)
}

// =============================================================================
// MESSAGES
// =============================================================================

// send appends a user message to the open conversation, creating one if
// needed, and prints the generated reply.
func (s *Session) send(ctx context.Context, text string) error {
	store := s.app.Store

	cid := store.CurrentID()
	if cid == "" {
		conv, err := store.NewConversation()
		if err := s.app.report(err); err != nil {
			return err
		}
		cid = conv.ID
	}

	_, err := store.AppendMessage(cid, model.RoleUser, text, conversation.WithAttachments(s.pending...))
	if err := s.app.report(err); err != nil {
		return err
	}
	s.pending = nil
	if err := s.app.report(store.AutotitleIfNeeded(cid)); err != nil {
		return err
	}

	return s.reply(ctx, func(ctx context.Context) (*model.Message, error) {
		return store.GenerateReply(ctx, cid, s.app.Generator)
	})
}

// reply runs fn under a Ctrl+C-cancellable context and prints the result.
func (s *Session) reply(ctx context.Context, fn func(context.Context) (*model.Message, error)) error {
	genCtx, stop := s.interrupt(ctx)
	msg, err := fn(genCtx)
	cancelled := genCtx.Err() != nil && ctx.Err() == nil
	stop()

	if cancelled {
		s.app.printf("[Cancelled]\n")
		return nil
	}
	if msg != nil {
		s.app.printf("\n%s: %s\n\n", model.RoleAssistant.Label(), msg.Content)
	}
	return s.app.report(err)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

type slashCommand struct {
	names []string
	usage string
	help  string
	run   func(ctx context.Context, arg string) (bool, error)
}

func (c slashCommand) matches(name string) bool {
	for _, n := range c.names {
		if n == name {
			return true
		}
	}
	return false
}

func (s *Session) commands() []slashCommand {
	return []slashCommand{
		{[]string{"new", "n"}, "/new", "Start a new conversation", s.cmdNew},
		{[]string{"list", "ls"}, "/list [archived]", "List conversations", s.cmdList},
		{[]string{"open", "o"}, "/open <id>", "Open an active conversation", s.cmdOpen},
		{[]string{"rename"}, "/rename [id] <title>", "Rename a conversation", s.cmdRename},
		{[]string{"archive"}, "/archive [id]", "Move a conversation to the archive", s.cmdArchive},
		{[]string{"restore"}, "/restore <id>", "Move an archived conversation back", s.cmdRestore},
		{[]string{"delete", "rm"}, "/delete [id]", "Delete a conversation", s.cmdDelete},
		{[]string{"show", "history"}, "/show [id]", "Print a conversation", s.cmdShow},
		{[]string{"edit"}, "/edit <msg-id> <text>", "Edit a message", s.cmdEdit},
		{[]string{"regen", "r"}, "/regen [msg-id]", "Regenerate an assistant reply", s.cmdRegen},
		{[]string{"attach"}, "/attach <path>", "Attach a file to the next message", s.cmdAttach},
		{[]string{"export"}, "/export [id] [--format F] [--stdout]", "Export a conversation", s.cmdExport},
		{[]string{"search", "find"}, "/search <query> [--scope S]", "Search conversations", s.cmdSearch},
		{[]string{"config"}, "/config <key>", "Show a configuration value", s.cmdConfig},
		{[]string{"help", "h", "?"}, "/help", "Show this help", s.cmdHelp},
		{[]string{"quit", "q", "exit"}, "/quit", "Exit", s.cmdQuit},
	}
}

func (s *Session) cmdHelp(_ context.Context, _ string) (bool, error) {
	width := 0
	cmds := s.commands()
	for _, c := range cmds {
		if len(c.usage) > width {
			width = len(c.usage)
		}
	}
	s.app.printf("Commands:\n")
	for _, c := range cmds {
		s.app.printf("  %-*s  %s\n", width, c.usage, c.help)
	}
	s.app.printf("Anything else is sent as a message.\n")
	return false, nil
}

func (s *Session) cmdQuit(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (s *Session) cmdNew(_ context.Context, _ string) (bool, error) {
	conv, err := s.app.Store.NewConversation()
	if err := s.app.report(err); err != nil {
		return false, err
	}
	s.app.printf("Started conversation %s\n", conv.ID)
	return false, nil
}

func (s *Session) cmdList(_ context.Context, arg string) (bool, error) {
	return false, RunList(s.app, strings.Fields(arg))
}

func (s *Session) cmdOpen(ctx context.Context, arg string) (bool, error) {
	if arg == "" {
		return false, usageError("/open <id>")
	}
	if err := s.app.Store.OpenConversation(arg); err != nil {
		return false, err
	}
	return s.cmdShow(ctx, arg)
}

func (s *Session) cmdShow(_ context.Context, arg string) (bool, error) {
	id := s.orCurrent(arg)
	if id == "" {
		return false, usageError("/show <id>")
	}
	b, ok := s.app.Store.Locate(id)
	if !ok {
		return false, &conversation.NotFoundError{Kind: conversation.KindConversation, ID: id}
	}
	conv, err := s.app.Store.Get(id, b)
	if err != nil {
		return false, err
	}
	s.app.printf("== %s (%s, %s) ==\n", conv.Title, conv.ID, b)
	for _, m := range conv.Messages {
		s.app.printf("[%s] %s: %s\n", m.ID, m.Role.Label(), m.Content)
		for _, att := range m.Attachments {
			s.app.printf("         + %s\n", att.Note)
		}
	}
	return false, nil
}

func (s *Session) cmdRename(_ context.Context, arg string) (bool, error) {
	id := s.app.Store.CurrentID()
	title := arg
	if first, rest, ok := strings.Cut(arg, " "); ok {
		if _, known := s.app.Store.Locate(first); known {
			id, title = first, rest
		}
	}
	if id == "" || strings.TrimSpace(title) == "" {
		return false, usageError("/rename [id] <title>")
	}
	b, ok := s.app.Store.Locate(id)
	if !ok {
		return false, &conversation.NotFoundError{Kind: conversation.KindConversation, ID: id}
	}
	if err := s.app.report(s.app.Store.RenameConversation(id, title, b)); err != nil {
		return false, err
	}
	s.app.printf("Renamed %s\n", id)
	return false, nil
}

func (s *Session) cmdArchive(_ context.Context, arg string) (bool, error) {
	id := s.orCurrent(arg)
	if id == "" {
		return false, usageError("/archive <id>")
	}
	if err := s.app.report(s.app.Store.ArchiveConversation(id)); err != nil {
		return false, err
	}
	s.app.printf("Archived %s\n", id)
	return false, nil
}

func (s *Session) cmdRestore(_ context.Context, arg string) (bool, error) {
	if arg == "" {
		return false, usageError("/restore <id>")
	}
	if err := s.app.report(s.app.Store.RestoreConversation(arg)); err != nil {
		return false, err
	}
	s.app.printf("Restored %s\n", arg)
	return false, nil
}

func (s *Session) cmdDelete(_ context.Context, arg string) (bool, error) {
	id := s.orCurrent(arg)
	if id == "" {
		return false, usageError("/delete <id>")
	}
	b, ok := s.app.Store.Locate(id)
	if !ok {
		return false, &conversation.NotFoundError{Kind: conversation.KindConversation, ID: id}
	}
	if err := s.app.report(s.app.Store.DeleteConversation(id, b)); err != nil {
		return false, err
	}
	s.app.printf("Deleted %s\n", id)
	return false, nil
}

func (s *Session) cmdEdit(_ context.Context, arg string) (bool, error) {
	mid, text, ok := strings.Cut(arg, " ")
	cid := s.app.Store.CurrentID()
	if !ok || cid == "" || strings.TrimSpace(text) == "" {
		return false, usageError("/edit <msg-id> <text> (in the open conversation)")
	}
	if err := s.app.report(s.app.Store.EditMessage(cid, mid, strings.TrimSpace(text))); err != nil {
		return false, err
	}
	s.app.printf("Edited %s\n", mid)
	return false, nil
}

func (s *Session) cmdRegen(ctx context.Context, arg string) (bool, error) {
	conv := s.app.Store.Current()
	if conv == nil {
		return false, usageError("/regen needs an open conversation")
	}
	mid := arg
	if mid == "" {
		for i := len(conv.Messages) - 1; i >= 0; i-- {
			if conv.Messages[i].Role == model.RoleAssistant {
				mid = conv.Messages[i].ID
				break
			}
		}
		if mid == "" {
			return false, usageError("/regen: no assistant message to regenerate")
		}
	}
	return false, s.reply(ctx, func(ctx context.Context) (*model.Message, error) {
		return s.app.Store.RegenerateReply(ctx, conv.ID, mid, s.app.Generator)
	})
}

func (s *Session) cmdAttach(_ context.Context, arg string) (bool, error) {
	if arg == "" {
		return false, usageError("/attach <path>")
	}
	info, err := os.Stat(arg)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, usageError("/attach: %s is a directory", arg)
	}
	att := model.DescribeAttachment(filepath.Base(arg), info.Size())
	s.pending = append(s.pending, att)
	s.app.printf("%s It will be sent with your next message.\n", att.Note)
	return false, nil
}

func (s *Session) cmdExport(_ context.Context, arg string) (bool, error) {
	p := NewArgParser(strings.Fields(arg), "stdout")
	id := s.orCurrent(p.Positional(0))
	if id == "" {
		return false, usageError("/export <id> [--format F] [--stdout]")
	}
	return false, s.app.Export(id, p.Flag("format"), p.BoolFlag("stdout"))
}

func (s *Session) cmdSearch(_ context.Context, arg string) (bool, error) {
	return false, RunSearch(s.app, strings.Fields(arg))
}

func (s *Session) cmdConfig(_ context.Context, arg string) (bool, error) {
	if arg == "" {
		for _, k := range config.Keys() {
			s.app.printf("%s\n", k)
		}
		return false, nil
	}
	return false, s.app.ShowConfig(arg)
}

// orCurrent returns id, or the open conversation's id when id is empty.
func (s *Session) orCurrent(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.app.Store.CurrentID()
}
