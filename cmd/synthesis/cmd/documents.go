package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/output"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage documents",
	}

	cmd.AddCommand(newDocumentsListCmd())
	cmd.AddCommand(newDocumentsDeleteCmd())
	cmd.AddCommand(newDocumentsRelatedCmd())

	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	var (
		collection string
		serverFlag string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents in a collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if collection == "" {
				return fmt.Errorf("--collection is required")
			}
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			docs, err := api.ListDocuments(cmd.Context(), collection)
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if len(docs) == 0 {
				w.Status("ℹ️ ", "no documents")
				return nil
			}
			for _, d := range docs {
				w.KeyValue(d.ID, fmt.Sprintf("%s  %s  %d chunks", d.FileName, d.Status, d.ChunkCount))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection ID")
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func newDocumentsDeleteCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			if err := api.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("deleted document %s", args[0])
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func newDocumentsRelatedCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "related <id>",
		Short: "Show files related to a source document",
		Long: `Show structural relationships derived at ingest time for a source
file: imports, importers, test pairings, and siblings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			rel, err := api.RelatedFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			w.Section(rel.FilePath)
			if rel.Related == nil {
				w.Status("ℹ️ ", "no relationships recorded")
				return nil
			}
			printRelatedGroup(w, "imports", rel.Related.Imports)
			printRelatedGroup(w, "imported by", rel.Related.ImportedBy)
			printRelatedGroup(w, "uses", rel.Related.Uses)
			printRelatedGroup(w, "used by", rel.Related.UsedBy)
			printRelatedGroup(w, "tests", rel.Related.Tests)
			printRelatedGroup(w, "tested by", rel.Related.TestedBy)
			printRelatedGroup(w, "siblings", rel.Related.Siblings)
			printRelatedGroup(w, "parent", rel.Related.Parent)
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func printRelatedGroup(w *output.Writer, label string, paths []string) {
	for _, p := range paths {
		w.KeyValue(label, p)
	}
}
