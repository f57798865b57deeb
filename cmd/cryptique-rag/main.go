package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/app"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/logging"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/mcp"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to YAML config file (default: $CRYPTIQUE_RAG_CONFIG or ./cryptique-rag.yaml)")
	showVersion := flag.Bool("version", false, "Print version and build information")
	purgeEvery := flag.Duration("purge-interval", time.Hour, "How often to apply the retention policy (0 disables)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Cryptique RAG MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		return 0
	}

	// A missing .env file is fine; the environment may be set directly
	_ = godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Log to stderr; stdout is reserved for the MCP protocol
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	logger.Info("Cryptique RAG MCP server starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"vector_extension", storage.VectorExtensionAvailable)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *purgeEvery > 0 && cfg.Retention.MaxAge > 0 {
		go runRetention(ctx, a, *purgeEvery)
	}

	server := mcp.NewServer(a.Orchestrator, logger)
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "err", err)
		return 1
	}
	logger.Info("server stopped")
	return 0
}

// runRetention applies the retention policy on start and then every interval
func runRetention(ctx context.Context, a *app.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.Orchestrator.Purge(ctx, time.Now()); err != nil {
			a.Logger.Warn("retention purge failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
