package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	server "github.com/kazz187/autoprovision/internal"
	"github.com/kazz187/autoprovision/internal/bootstrap"
	"github.com/kazz187/autoprovision/internal/config"
	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/event"
	"github.com/kazz187/autoprovision/internal/provisioning"
	"github.com/kazz187/autoprovision/pkg/clog"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.IsLocal() {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	app, err := bootstrap.New(ctx, env)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	srv := server.NewServer(
		env,
		provisioning.NewServer(app.Engine),
		connection.NewServer(app.Store.Repositories().Connections),
		event.NewServer(app.Events),
	)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
