package cmd

import (
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/config"
	"github.com/synthesis-kb/synthesis/internal/output"
)

func newStatusCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server health and configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := output.New(cmd.OutOrStdout())

			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			w.Section("Configuration")
			w.KeyValue("storage root", cfg.Storage.Root)
			w.KeyValue("database", cfg.Storage.DatabasePath)
			w.KeyValue("search mode", cfg.Search.Mode)
			w.KeyValue("lexical backend", cfg.Search.LexicalBackend)

			api, err := newAPIClient(serverFlag, 5*time.Second)
			if err != nil {
				return err
			}

			w.Newline()
			w.Section("Server")
			health, err := api.Health(cmd.Context())
			if err != nil {
				w.Errorf("unreachable at %s: %v", resolveServerURL(serverFlag), err)
				return nil
			}

			if health.Status == "ok" {
				w.Successf("healthy at %s", resolveServerURL(serverFlag))
			} else {
				w.Warningf("%s at %s", health.Status, resolveServerURL(serverFlag))
			}

			names := make([]string, 0, len(health.Checks))
			for name := range health.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				w.KeyValue(name, health.Checks[name])
			}
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}
