// Command obagg aggregates cryptocurrency order books from multiple
// exchanges into one consolidated book. It loads configuration, validates
// it, wires dependencies, sets up signal handling, and starts the
// application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantfold/obagg/internal/app"
	"github.com/quantfold/obagg/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file (optional)")
	mode := flag.String("mode", "", "operating mode: quote, watch, or serve")
	qty := flag.String("qty", "", "quantity to quote, e.g. 10 or 0.5")
	side := flag.String("side", "", "quote side: buy, sell, or both")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, or error")
	logFormat := flag.String("log-format", "", "log format: text or json")
	flag.Parse()

	// Bootstrap logger, replaced once the configured level and format are
	// known. All logs go to stderr; stdout carries only report output.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Load configuration: defaults, then file, then environment.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Flags set on the command line override env and file values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "qty":
			cfg.Quote.DefaultQuantity = *qty
		case "side":
			cfg.Quote.DefaultSide = *side
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	logger = newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down gracefully")
			return
		}
		logger.Error("exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "obagg: %v\n", err)
		application.Close()
		os.Exit(1)
	}
}

// newLogger builds the stderr logger for the given level and format.
func newLogger(levelName, format string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
