package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"voteverse/internal/app/bootstrap"
)

// API process entrypoint.
// Data flow:
// 1) Load config and the contest roster.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP, the leaderboard stream, and the outbox relay until a signal arrives.
func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildAPI(ctx)
	if err != nil {
		slog.Error("voteverse api failed to build",
			"event", "api_build_failed",
			"module", "cmd/api",
			"layer", "platform",
			"error", err.Error(),
		)
		os.Exit(1)
	}

	runErr := app.Run(ctx)
	if err := app.Close(); err != nil {
		slog.Warn("voteverse api close failed",
			"event", "api_close_failed",
			"module", "cmd/api",
			"layer", "platform",
			"error", err.Error(),
		)
	}
	if runErr != nil {
		slog.Error("voteverse api stopped with error",
			"event", "api_run_failed",
			"module", "cmd/api",
			"layer", "platform",
			"error", runErr.Error(),
		)
		os.Exit(1)
	}
}
