package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/synthesis-kb/synthesis/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the user config,
the project .synthesis.yaml, and environment overrides. API keys are
never printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			// Keys stay out of display output even though the yaml tags
			// would carry them.
			cfg.Embeddings.OpenAIKey = ""
			cfg.Embeddings.VoyageKey = ""
			cfg.Reranker.CohereKey = ""

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		user  bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Long: `Write a starter configuration file. By default this creates
.synthesis.yaml in the working directory; --user writes the global
config under ~/.config/synthesis/ instead. An existing file is only
replaced with --force, which backs it up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := ".synthesis.yaml"
			if user {
				path = config.GetUserConfigPath()
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil {
				if !force {
					return fmt.Errorf("%s already exists (use --force to replace)", path)
				}
				if user {
					backup, err := config.BackupUserConfig()
					if err != nil {
						return err
					}
					if backup != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "backed up existing config to %s\n", backup)
					}
				}
			}

			if err := config.NewConfig().WriteYAML(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config file")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
