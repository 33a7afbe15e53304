package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/output"
)

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage collections",
	}

	cmd.AddCommand(newCollectionsListCmd())
	cmd.AddCommand(newCollectionsCreateCmd())
	cmd.AddCommand(newCollectionsDeleteCmd())

	return cmd
}

func newCollectionsListCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			cols, err := api.ListCollections(cmd.Context())
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if len(cols) == 0 {
				w.Status("ℹ️ ", "no collections")
				return nil
			}
			for _, c := range cols {
				w.KeyValue(c.ID, fmt.Sprintf("%s (created %s)", c.Name, c.CreatedAt.Format("2006-01-02")))
			}
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func newCollectionsCreateCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			col, err := api.CreateCollection(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("created collection %s (%s)", col.Name, col.ID)
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func newCollectionsDeleteCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a collection and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			if err := api.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("deleted collection %s", args[0])
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}
