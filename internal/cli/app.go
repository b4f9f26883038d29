// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jeranaias/chatstore/internal/config"
	"github.com/jeranaias/chatstore/internal/conversation"
)

// App bundles what every command needs.
type App struct {
	Store     *conversation.Store
	Generator conversation.ReplyGenerator
	Config    *config.Config
	Logger    *slog.Logger

	// Out receives command output, Err receives warnings.
	Out io.Writer
	Err io.Writer

	// Width is the table width for listings. Zero means terminal width.
	Width int

	Quiet bool
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

func (a *App) warnf(format string, args ...any) {
	w := a.Err
	if w == nil {
		w = a.Out
	}
	fmt.Fprintf(w, "warning: "+format+"\n", args...)
}

func (a *App) width() int {
	if a.Width > 0 {
		return a.Width
	}
	return GetTerminalWidth()
}

// report prints a store error. Persistence failures are warnings: the
// change is kept in memory and retried later.
func (a *App) report(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, conversation.ErrPersistence) {
		a.warnf("%v (kept in memory, will retry)", err)
		return nil
	}
	return err
}
