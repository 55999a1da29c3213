package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/assistant"
	"github.com/jholhewres/bookclaw/pkg/bookclaw/calendar"
	"github.com/jholhewres/bookclaw/pkg/bookclaw/channels/whatsapp"
)

// newServeCmd creates the `bookclaw serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WhatsApp booking assistant",
		Long: `Start BookClaw as a daemon: connect to WhatsApp (QR login on first
run), answer customer messages and dispatch scheduled sends.

Examples:
  bookclaw serve
  bookclaw serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := buildLogger(cmd, cfg)

	// Resolve the API key from env → keyring → config.
	assistant.ResolveAPIKey(cfg, logger)

	wa := whatsapp.New(cfg.WhatsApp, logger)

	var cal calendar.Service
	if cfg.Calendar.Enabled {
		tokens, err := calendar.NewServiceAccountTokenSource(cfg.Calendar.CredentialsPath)
		if err != nil {
			return fmt.Errorf("loading calendar credentials: %w", err)
		}
		cal = calendar.NewClient(tokens, logger)
	}

	bot, err := assistant.New(cfg, wa, cal, logger)
	if err != nil {
		return fmt.Errorf("creating assistant: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	logger.Info("BookClaw running. Press Ctrl+C to stop.",
		"ai", cfg.AI.Enabled,
		"calendar", cfg.Calendar.Enabled,
		"auto_send", cfg.AutoSend.Enabled,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received, stopping...", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		bot.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// buildLogger configures slog from the logging section and the
// --verbose flag. Text format gets a colored terminal handler.
func buildLogger(cmd *cobra.Command, cfg *assistant.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}
	return slog.New(handler)
}

// resolveConfig loads the config from --config or the usual locations.
func resolveConfig(cmd *cobra.Command) (*assistant.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := assistant.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	return nil, fmt.Errorf("no configuration file found; run 'bookclaw config init' first")
}
