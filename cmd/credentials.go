package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"habitcoach/config"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage stored API keys",
	Long: `Manage API keys in the data directory. Keys are kept in plain TOML or,
when [security] method = "ssh_key", encrypted with a key derived from your
SSH private key.

Known ids: coach (bearer token for the coach API), openai, openrouter and
anthropic (upstream keys for "habitcoach serve").`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <id> <key>",
	Short: "Store an API key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.ToLower(strings.TrimSpace(args[0]))
		secret := strings.TrimSpace(args[1])
		if id == "" || secret == "" {
			return fmt.Errorf("id and key must not be empty")
		}
		return updateCredentials(func(store *config.CredentialStore) {
			store.Set(id, secret)
		}, cmd, fmt.Sprintf("Stored key for %s", id))
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.ToLower(strings.TrimSpace(args[0]))
		return updateCredentials(func(store *config.CredentialStore) {
			store.Delete(id)
		}, cmd, fmt.Sprintf("Removed key for %s", id))
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsDeleteCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func updateCredentials(change func(*config.CredentialStore), cmd *cobra.Command, done string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openCredentials(cfg)
	if err != nil {
		return err
	}
	change(store)
	if err := store.Save(cfg.DataDir()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), done)
	return nil
}
