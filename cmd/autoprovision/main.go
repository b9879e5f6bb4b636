package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/autoprovision/internal/bootstrap"
	"github.com/kazz187/autoprovision/internal/config"
	"github.com/kazz187/autoprovision/pkg/clog"
)

func main() {
	c := newCLI(os.Stdout, os.Stderr)
	command := kingpin.MustParse(c.parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fatalf("failed to load env: %v", err)
	}
	level := env.SlogLevel()
	if !*c.verbose && level < slog.LevelInfo {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(
		clog.NewTextHandler(os.Stderr,
			clog.WithLevel(level),
			clog.WithColor(!color.NoColor),
			clog.WithColumns("operation", "provider_key", "workspace_id"),
		),
	)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	a, err := bootstrap.New(ctx, env)
	if err != nil {
		cancel()
		fatalf("failed to initialize: %v", err)
	}
	code := c.run(ctx, command, a)
	cancel()
	if err := a.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	os.Exit(code)
}

func fatalf(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
