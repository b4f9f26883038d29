// chatstore - persistent chat conversations with pluggable reply backends.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jeranaias/chatstore/internal/cli"
	"github.com/jeranaias/chatstore/internal/config"
	"github.com/jeranaias/chatstore/internal/conversation"
	"github.com/jeranaias/chatstore/internal/reply"
	"github.com/jeranaias/chatstore/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cmd, args := cli.Parse(os.Args[1:])

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return
	case cli.CmdHelp:
		if len(args.Raw) > 0 {
			fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args.Raw[0])
			cli.Usage(os.Stderr)
			os.Exit(2)
		}
		cli.Usage(os.Stdout)
		return
	}

	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cmd cli.Command, args cli.Args) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, logCloser, err := config.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	app := &cli.App{
		Config: cfg,
		Logger: logger,
		Out:    os.Stdout,
		Err:    os.Stderr,
		Quiet:  args.Quiet,
	}

	if cmd == cli.CmdConfig {
		return cli.RunConfig(app, args.Raw)
	}

	repo, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Storage.Backend,
		Path:        cfg.Storage.Path,
		DatabaseURL: cfg.Storage.DatabaseURL,
		TablePrefix: cfg.Storage.TablePrefix,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	store, err := conversation.NewStore(ctx, repo,
		conversation.WithReplyTimeout(cfg.ReplyTimeout()),
		conversation.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	app.Store = store

	switch cmd {
	case cli.CmdList:
		return cli.RunList(app, args.Raw)
	case cli.CmdSearch:
		return cli.RunSearch(app, args.Raw)
	case cli.CmdExport:
		return cli.RunExport(app, args.Raw)
	}

	gen, err := reply.New(cfg, logger)
	if err != nil {
		return err
	}
	app.Generator = gen

	if cfg.Storage.Watch {
		watchStore(ctx, repo, store, app.Err, logger)
	}

	if !cli.IsTTY() {
		logger.Debug("stdin is not a terminal; line editing disabled")
	}
	in := cli.NewChatInput()
	defer in.Close()

	err = cli.NewSession(app).Run(ctx, in)
	if flushErr := flushOnExit(store); flushErr != nil {
		logger.Error("conversations not saved", "error", flushErr)
	}
	return err
}

// loadConfig reads the configuration file, then applies command-line flags.
func loadConfig(args cli.Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, err
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
	}

	args.ApplyTo(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// watchStore reloads the store when another process rewrites the JSON file.
// Other backends are not watched.
func watchStore(ctx context.Context, repo storage.Repository, store *conversation.Store, w io.Writer, logger *slog.Logger) {
	jsonRepo, ok := repo.(*storage.JSONFileRepository)
	if !ok {
		logger.Warn("storage watch is only supported for the json backend")
		return
	}
	err := jsonRepo.Watch(ctx, storage.DefaultWatchDebounce, func() {
		if err := store.Reload(ctx); err != nil {
			logger.Error("reload after external change failed", "error", err)
			return
		}
		fmt.Fprintf(w, "\n[conversations reloaded from %s]\n", jsonRepo.Path())
	})
	if err != nil {
		logger.Warn("cannot watch conversation file", "path", jsonRepo.Path(), "error", err)
	}
}

func flushOnExit(store *conversation.Store) error {
	if !store.Dirty() {
		return nil
	}
	return store.Flush(context.Background())
}
