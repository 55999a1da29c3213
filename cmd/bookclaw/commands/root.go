// Package commands implements the BookClaw CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bookclaw",
		Short: "BookClaw - WhatsApp booking assistant",
		Long: `BookClaw is a WhatsApp assistant that answers customer messages with
an LLM, checks Google Calendar availability and books appointments from
a configured service catalog.

Examples:
  bookclaw serve
  bookclaw serve --config ./config.yaml
  bookclaw config init
  bookclaw key set api_key`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newKeyCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
