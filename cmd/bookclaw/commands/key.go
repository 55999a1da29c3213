package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/assistant"
)

// newKeyCmd creates the `bookclaw key` command group for managing
// secrets in the system keyring.
func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage secrets in the system keyring",
		Long: `Store secrets in the operating system keyring instead of the config
file. The serve command resolves the API key from the environment, the
keyring and finally the config file, in that order.

Examples:
  bookclaw key set api_key
  bookclaw key delete api_key`,
	}

	cmd.AddCommand(newKeySetCmd(), newKeyDeleteCmd())
	return cmd
}

func newKeySetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret in the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			fmt.Printf("Enter value for %q: ", args[0])
			reader := bufio.NewReader(os.Stdin)
			value, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return fmt.Errorf("empty value")
			}

			if err := assistant.StoreKeyring(args[0], value); err != nil {
				return fmt.Errorf("storing secret: %w", err)
			}
			fmt.Printf("Stored %q in the system keyring.\n", args[0])
			return nil
		},
	}
}

func newKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := assistant.DeleteKeyring(args[0]); err != nil {
				return fmt.Errorf("deleting secret: %w", err)
			}
			fmt.Printf("Deleted %q from the system keyring.\n", args[0])
			return nil
		},
	}
}
