// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the interactive chat REPL
// for chatstore.
//
// # Key Types
//
//   - Command: Enumeration of the CLI commands
//   - Args: Parsed global flags plus the remaining raw arguments
//   - App: Store, generator and configuration shared by all commands
//   - Session: Interactive chat with slash commands
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdChat:
//	    in := cli.NewChatInput()
//	    defer in.Close()
//	    err = cli.NewSession(app).Run(ctx, in)
//	case cli.CmdList:
//	    err = cli.RunList(app, args.Raw)
//	}
package cli
