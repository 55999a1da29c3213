package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/assistant"
)

// configTemplate is written by `bookclaw config init`. Secrets are
// referenced via ${VAR} and resolved from the environment or .env.
const configTemplate = `# BookClaw configuration
bot:
  log_messages: true
  ignore_own_messages: true
  ignore_broadcast: true
  ignore_groups: false
  dedup_window: 1h

auto_reply:
  enabled: true
  use_default_reply: true
  default_reply: "Thanks for your message! We'll get back to you shortly."
  keywords:
    hours: "We are open Tuesday to Saturday, 9:00 to 18:00."
    location: "You can find us at 12 High Street."

ai:
  enabled: true
  model: gpt-4o-mini
  base_url: https://api.openai.com/v1
  api_key: ${OPENAI_API_KEY}
  max_loops: 5
  fallback_to_default: true
  system_prompt: |
    You are the booking assistant for a salon. Help customers check
    availability and book appointments. Be brief and friendly.

memory:
  enabled: true
  limit: 20
  store: memory        # memory | sqlite
  # path: ./data/bookclaw.db

calendar:
  enabled: false
  credentials_path: ./service-account.json
  calendar_id: ${CALENDAR_ID}

services:
  haircut:
    name: Haircut
    duration_minutes: 30
    price: 1500
    currency: LKR
  beard_trim:
    name: Beard Trim
    duration_minutes: 15
    price: 500
    currency: LKR

auto_send:
  enabled: false
  messages: []
  # - to: "94771234567"
  #   message: "Reminder: book your weekly slot!"
  #   schedule:
  #     immediate: false
  #     delay: 1m
  #     interval: 168h

whatsapp:
  session_dir: ./data/whatsapp

logging:
  level: info
  format: text
`

// newConfigCmd creates the `bookclaw config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd(), newConfigCheckCmd())
	return cmd
}

// newConfigInitCmd writes a starter config.yaml in the current directory.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config.yaml to the current directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			const path = "config.yaml"

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			fmt.Printf("Created %s. Edit it and run 'bookclaw serve'.\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config.yaml")
	return cmd
}

// newConfigCheckCmd parses the config and reports what is enabled.
func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Println("Configuration OK.")
			fmt.Printf("  AI:        enabled=%v model=%s max_loops=%d\n", cfg.AI.Enabled, cfg.AI.Model, cfg.AI.MaxLoops)
			fmt.Printf("  Memory:    enabled=%v store=%s limit=%d\n", cfg.Memory.Enabled, storeName(cfg), cfg.Memory.Limit)
			fmt.Printf("  Calendar:  enabled=%v calendar_id=%s\n", cfg.Calendar.Enabled, cfg.Calendar.CalendarID)
			fmt.Printf("  Services:  %d configured\n", len(cfg.Services))
			fmt.Printf("  Auto-send: enabled=%v jobs=%d\n", cfg.AutoSend.Enabled, len(cfg.AutoSend.Messages))
			return nil
		},
	}
}

func storeName(cfg *assistant.Config) string {
	if cfg.Memory.Store == "" {
		return "memory"
	}
	return cfg.Memory.Store
}
