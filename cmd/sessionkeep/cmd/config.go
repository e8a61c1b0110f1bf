package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionkeep/config"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"log-level":           "log_level",
	"log-format":          "log_format",
	"data-dir":            "data_dir",
	"encryption-key":      "secrets.encryption_key",
	"app-secret":          "secrets.app_secret",
	"host":                "server.host",
	"port":                "server.port",
	"shared-backend":      "shared.backend",
	"credentials-backend": "credentials.backend",
}

// loadConfig loads the config file and environment, applying only the flags
// the user actually set on top.
func loadConfig(cmd *cobra.Command, opts *globalOptions, environ func() []string) (*config.Config, error) {
	overrides := make(map[string]any)
	for name, key := range flagKeys {
		if cmd.Flags().Changed(name) {
			overrides[key] = cmd.Flags().Lookup(name).Value.String()
		}
	}
	return config.Load(opts.configPath, environ, overrides)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == config.LogFormatText {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}
