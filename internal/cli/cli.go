// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for chatstore.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/jeranaias/chatstore/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdList
	CmdSearch
	CmdExport
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Provider   string
	Backend    string
	StorePath  string
	Quiet      bool
	Verbose    bool

	// Raw args (remaining after the command name)
	Raw []string
}

const usageText = `chatstore - persistent chat conversations with pluggable reply backends

Usage:
  chatstore [flags]                        Start an interactive chat (default)
  chatstore chat                           Same as above
  chatstore list [--archived]              List conversations
  chatstore search <query> [--scope S]     Search titles and messages (S: active, archived, all)
  chatstore export <id> [--format F] [--out DIR] [--stdout]
                                           Export a conversation (F: text, markdown, json, yaml)
  chatstore config get <key>               Show one configuration value
  chatstore config keys                    List configuration keys
  chatstore config init [--force]          Write the effective configuration to ~/.chatstore/config.toml
  chatstore version                        Show version information
  chatstore help                           Show this help

Global flags:
  --config PATH      Load configuration from PATH instead of ~/.chatstore
  --provider NAME    Reply provider: openai, ollama, echo
  --backend NAME     Storage backend: json, sqlite, postgres, memory
  --store PATH       JSON file or SQLite database path
  -q, --quiet        Minimal output
  -v, --verbose      Debug logging

Environment:
  CHATSTORE_API_KEY (or GROQ_API_KEY, OPENAI_API_KEY), CHATSTORE_BASE_URL,
  CHATSTORE_MODEL, CHATSTORE_PROVIDER, CHATSTORE_BACKEND, CHATSTORE_STORE_PATH,
  CHATSTORE_DATABASE_URL, CHATSTORE_OLLAMA_URL, CHATSTORE_LOG_LEVEL
`

// Usage writes the help text to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "chatstore version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	parsedArgs.Raw = remaining[1:]

	switch cmd {
	case "chat":
		return CmdChat, parsedArgs
	case "list", "ls":
		return CmdList, parsedArgs
	case "search", "find":
		return CmdSearch, parsedArgs
	case "export":
		return CmdExport, parsedArgs
	case "config":
		return CmdConfig, parsedArgs
	case "version", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		return CmdHelp, parsedArgs
	}

	// unknown command; Raw keeps it for the error message
	parsedArgs.Raw = remaining
	return CmdHelp, parsedArgs
}

// parseGlobalFlags extracts flags valid for every command.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	value := func(i int) (string, int) {
		if i+1 < len(args) {
			return args[i+1], i + 1
		}
		return "", i
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--config":
			parsedArgs.ConfigPath, i = value(i)
		case "--provider":
			parsedArgs.Provider, i = value(i)
		case "--backend":
			parsedArgs.Backend, i = value(i)
		case "--store":
			parsedArgs.StorePath, i = value(i)
		default:
			if name, v, ok := strings.Cut(arg, "="); ok {
				switch name {
				case "--config":
					parsedArgs.ConfigPath = v
					continue
				case "--provider":
					parsedArgs.Provider = v
					continue
				case "--backend":
					parsedArgs.Backend = v
					continue
				case "--store":
					parsedArgs.StorePath = v
					continue
				}
			}
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsedArgs
}

// ApplyTo overrides cfg with flags given on the command line.
func (a Args) ApplyTo(cfg *config.Config) {
	if a.Provider != "" {
		cfg.Generator.Provider = strings.ToLower(a.Provider)
	}
	if a.Backend != "" {
		cfg.Storage.Backend = strings.ToLower(a.Backend)
	}
	if a.StorePath != "" {
		cfg.Storage.Path = a.StorePath
	}
	if a.Verbose {
		cfg.Logging.Level = "debug"
	}
}
