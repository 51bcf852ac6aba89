package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/btmgen/internal/core/auth"
	"github.com/solatis/btmgen/internal/core/config"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Print the API key for a configured serve secret",
	Long: `Print the API key clients send in x-api-key metadata.

The secret is read from BTM_SERVE_SECRET or BTM_SERVE_SECRET_<n>; the key is
derived from it, so rotating the secret revokes the key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secretID, _ := cmd.Flags().GetString("secret-id")

		secrets, err := config.ServeSecrets()
		if err != nil {
			return fmt.Errorf("failed to load serve secrets: %w", err)
		}
		if len(secrets) == 0 {
			return fmt.Errorf("no serve secrets configured (set BTM_SERVE_SECRET environment variable)")
		}
		if secretID == "" && len(secrets) == 1 {
			for id := range secrets {
				secretID = id
			}
		}
		secret, ok := secrets[secretID]
		if !ok {
			return fmt.Errorf("unknown secret id %q", secretID)
		}

		fmt.Fprintln(cmd.OutOrStdout(), auth.GenerateAPIKey(secretID, secret))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.Flags().String("secret-id", "", "secret id (optional with a single secret)")
}
