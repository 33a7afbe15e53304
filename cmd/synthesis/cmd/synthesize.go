package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/output"
	"github.com/synthesis-kb/synthesis/internal/synthesis"
)

func newSynthesizeCmd() *cobra.Command {
	var (
		collection string
		topK       int
		jsonOutput bool
		serverFlag string
	)

	cmd := &cobra.Command{
		Use:   "synthesize <query>",
		Short: "Compare approaches across sources",
		Long: `Cluster search results into distinct approaches, score consensus,
and surface contradictions between sources, with a recommendation when
the sources disagree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if collection == "" {
				return fmt.Errorf("--collection is required")
			}

			api, err := newAPIClient(serverFlag, 2*time.Minute)
			if err != nil {
				return err
			}

			resp, err := api.Synthesize(cmd.Context(), &synthesis.Request{
				Query:        args[0],
				CollectionID: collection,
				TopK:         topK,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			renderSynthesis(output.New(cmd.OutOrStdout()), resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection ID to synthesize over")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Candidate count fed into clustering")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON")
	addServerFlag(cmd, &serverFlag)

	return cmd
}

func renderSynthesis(w *output.Writer, resp *synthesis.Response) {
	w.Section(fmt.Sprintf("Synthesis for %q", resp.Query))
	w.KeyValue("sources", fmt.Sprintf("%d", resp.Metadata.TotalSources))
	w.KeyValue("approaches", fmt.Sprintf("%d", resp.Metadata.ApproachesFound))
	w.KeyValue("conflicts", fmt.Sprintf("%d", resp.Metadata.ConflictsFound))

	for i, a := range resp.Approaches {
		w.Newline()
		w.Statusf("📚", "Approach %d: %s (consensus %.2f)", i+1, a.Method, a.ConsensusScore)
		if a.Summary != "" {
			w.Snippet(a.Summary, 4)
		}
		for _, s := range a.Sources {
			w.KeyValue(string(s.Quality), s.Title)
		}
	}

	for _, c := range resp.Conflicts {
		w.Newline()
		w.Warningf("conflict (%s): %s", c.Severity, c.Topic)
		if c.Difference != "" {
			w.Snippet(c.Difference, 4)
		}
		if c.Recommendation != "" {
			w.KeyValue("recommendation", c.Recommendation)
		}
	}

	if resp.Recommended != "" {
		w.Newline()
		w.Successf("recommended: %s", resp.Recommended)
	}
}
