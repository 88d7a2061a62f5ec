package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"selfintro-bot/internal/app"
	"selfintro-bot/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	// A Lambda invocation cannot outlive its response.
	cfg.AsyncDelivery = false

	logger := app.NewLogger(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	// ---- Wiring ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		app.Fatal(logger, "failed to initialise", err)
	}

	lambda.Start(a.Handler.Handle)
}
