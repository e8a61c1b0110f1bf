package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionkeep/secret"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random encryption key",
		Long: `Print a new URL-safe base64 encoded 32-byte key suitable for
SESSIONKEEP_SECRETS__ENCRYPTION_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secret.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
