package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/app"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/logging"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/storage"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ragctl",
		Usage:   "Operate the analytics embedding and retrieval store",
		Version: fmt.Sprintf("%s (%s, vector extension: %v)", version, storage.BuildMode, storage.VectorExtensionAvailable),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{config.EnvConfigPath},
				Value:   config.DefaultFileName,
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the config",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Vector store path; overrides the config",
			},
		},
		Before: loadEnv,
		Commands: []*cli.Command{
			ingestCommand(),
			queryCommand(),
			purgeCommand(),
			statsCommand(),
			probeCommand(),
		},
	}
}

// loadEnv loads the env file before any config is read. A missing default
// .env file is not an error.
func loadEnv(c *cli.Context) error {
	path := c.String("env-file")
	if err := godotenv.Load(path); err != nil && c.IsSet("env-file") {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the config file with environment and flag overrides
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp builds the pipeline for one command and closes it afterwards
func withApp(c *cli.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close", "err", err)
		}
	}()

	return fn(a)
}
