package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/config"
	"github.com/synthesis-kb/synthesis/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		offline bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose system readiness",
		Long: `Run the pre-flight checks: storage and database writability, free
disk space, Ollama reachability, and provider API keys. Exits non-zero
when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}

			checker := preflight.New(preflight.Config{
				StorageRoot:  cfg.Storage.Root,
				DatabasePath: cfg.Storage.DatabasePath,
				OllamaHost:   cfg.Embeddings.OllamaHost,
				Offline:      offline,
			}, preflight.WithVerbose(verbose), preflight.WithOutput(cmd.OutOrStdout()))

			results := checker.RunAll(cmd.Context())
			checker.PrintResults(results)

			dataDir := filepath.Dir(cfg.Storage.DatabasePath)
			if checker.HasCriticalFailures(results) {
				_ = preflight.ClearMarker(dataDir)
				return fmt.Errorf("system check failed")
			}
			if err := preflight.MarkPassed(dataDir); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip network checks")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show passing check details")

	return cmd
}
