// Command houseyectl is an operator tool for the houseye data store: it
// ensures indexes and lets an admin inspect and edit users, images and
// chats from a shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/houseye/internal/config"
	"github.com/PaulBabatuyi/houseye/internal/logger"
	"github.com/PaulBabatuyi/houseye/internal/store"

	"go.uber.org/zap"
)

var flagTimeout time.Duration

func main() {
	flag.DurationVar(&flagTimeout, "timeout", 30*time.Second, "deadline for the whole command")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: houseyectl [-timeout d] <command> [args]\n\n%s", usage)
	}
	flag.Parse()

	if err := run(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "houseyectl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	// Cancel on SIGINT/SIGTERM as well as on timeout
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()

	s, err := store.Open(ctx, cfg, logger.Log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			logger.Log.Warn("close store", zap.Error(err))
		}
	}()

	return newApp(s, os.Stdout).run(ctx, args)
}
