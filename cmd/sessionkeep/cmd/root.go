package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionkeep/session"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type globalOptions struct {
	configPath string
	auth       session.Authenticator
}

func newRootCmd(auth session.Authenticator) *cobra.Command {
	opts := &globalOptions{auth: auth}
	cmd := &cobra.Command{
		Use:   "sessionkeep",
		Short: "sessionkeep caches analytics platform session tokens",
		Long: `Session token cache and credential vault for analytics platform integrations.
Configuration is read from a TOML file, SESSIONKEEP_* environment variables
and command-line flags, in that order of precedence.`,
		Version:      Version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to TOML config file")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")
	flags.String("data-dir", "", "Directory for persistent data")
	flags.String("encryption-key", "", "URL-safe base64 32-byte encryption key (prefer SESSIONKEEP_SECRETS__ENCRYPTION_KEY)")
	flags.String("app-secret", "", "Application secret (prefer SESSIONKEEP_SECRETS__APP_SECRET)")

	cmd.AddCommand(
		newServerCmd(opts),
		newKeygenCmd(),
		newEncryptCmd(opts),
		newDecryptCmd(opts),
	)
	return cmd
}

// Execute runs the CLI without a platform authenticator.
func Execute() {
	ExecuteWith(nil)
}

// ExecuteWith runs the CLI with auth signing in to the analytics platform
// on behalf of the server's session manager.
func ExecuteWith(auth session.Authenticator) {
	if err := newRootCmd(auth).Execute(); err != nil {
		os.Exit(1)
	}
}
