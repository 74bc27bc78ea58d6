package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

type CLI struct {
	Serve    ServeCommand    `cmd:"serve" help:"Start the relay server."`
	Chat     ChatCommand     `cmd:"chat" help:"Chat with an n8n workflow through the relay server."`
	Relay    RelayCommand    `cmd:"relay" help:"Send a single message to an n8n workflow and print the normalized messages."`
	Complete CompleteCommand `cmd:"complete" help:"Run a completion with optional images."`
	Session  SessionCommand  `cmd:"session" help:"Create a realtime session and print the session descriptor."`
	Version  VersionCommand  `cmd:"version" help:"Print the version."`
}

func main() {
	// Values already set in the environment take precedence over .env.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli, kong.UsageOnError(), kong.BindTo(ctx, (*context.Context)(nil)))
	if err := kctx.Run(); err != nil {
		log := getLogger("error")
		log.Error("error", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func getLogger(level string) *slog.Logger {
	return newLogger(os.Stderr, level)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	ll := slog.LevelInfo
	switch level {
	case "debug":
		ll = slog.LevelDebug
	case "info":
		ll = slog.LevelInfo
	case "warn":
		ll = slog.LevelWarn
	case "error":
		ll = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ll,
	}))
}
