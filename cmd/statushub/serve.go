package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statushub"
	"github.com/jpalmerr/statushub/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts the StatusHub server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status hub server",
	Long: `Start the StatusHub server.

The server will:
  - Load configuration from the YAML file, if one is given
  - Apply environment overrides (PORT, HOST, SECRET, GET_SECRET, LOG_LEVEL,
    ALLOWED_ORIGINS_FILE)
  - Serve the update API, the event streams and the presence page

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  statushub serve
  statushub serve -c statushub.yaml
  PORT=8080 statushub serve --config /etc/statushub/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (optional)")
}

// loadConfig reads the config file when given, else the defaults, and applies
// environment overrides either way.
func loadConfig(configFile string) (*config.Config, error) {
	if configFile == "" {
		return config.Default()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(level)

	logger.Info("starting server",
		"category", "SYSTEM",
		"port", cfg.Port,
		"heartbeat_interval", cfg.HeartbeatInterval.Duration().String(),
		"log_level", cfg.LogLevel,
	)

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	sh, err := statushub.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create StatusHub: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- sh.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete", "category", "SYSTEM")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete", "category", "SYSTEM")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"category", "SYSTEM",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
