package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/config"
	"github.com/synthesis-kb/synthesis/pkg/client"
)

// addServerFlag registers the --server flag used by every command that
// talks to a running server.
func addServerFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "server", "", "Server base URL (default: from config)")
}

// resolveServerURL returns the explicit flag value, or the address the
// local config would serve on.
func resolveServerURL(flag string) string {
	if flag != "" {
		return flag
	}
	cfg, err := config.Load(".")
	if err != nil {
		cfg = config.NewConfig()
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}

// newAPIClient builds a client for the configured server.
func newAPIClient(serverFlag string, timeout time.Duration) (*client.Client, error) {
	return client.New(client.Options{
		BaseURL: resolveServerURL(serverFlag),
		Timeout: timeout,
	})
}

// parseDuration parses a config duration string, falling back when the
// value is empty or malformed.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
