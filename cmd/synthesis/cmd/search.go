package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/output"
	"github.com/synthesis-kb/synthesis/pkg/client"
)

func newSearchCmd() *cobra.Command {
	var (
		collection  string
		topK        int
		mode        string
		rerank      bool
		trustLevels []string
		jsonOutput  bool
		serverFlag  string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a collection",
		Long: `Run a search against a running Synthesis server.

The query is matched with the configured retrieval mode (vector or
hybrid BM25 + vector with reciprocal rank fusion). Results carry
citations and per-leg scores.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if collection == "" {
				return fmt.Errorf("--collection is required")
			}

			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}

			resp, err := api.Search(cmd.Context(), &client.SearchRequest{
				Query:        args[0],
				CollectionID: collection,
				TopK:         topK,
				SearchMode:   mode,
				Rerank:       rerank,
				TrustLevels:  trustLevels,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			renderSearchResults(output.New(cmd.OutOrStdout()), args[0], resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection ID to search")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default: server config)")
	cmd.Flags().StringVar(&mode, "mode", "", "Retrieval mode: vector or hybrid (default: server config)")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Re-rank results with the cross-encoder")
	cmd.Flags().StringSliceVar(&trustLevels, "trust", nil, "Keep only these source grades (official, verified, community)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON")
	addServerFlag(cmd, &serverFlag)

	return cmd
}

func renderSearchResults(w *output.Writer, query string, resp *client.SearchResponse) {
	if len(resp.Results) == 0 {
		w.Warningf("no results for %q", query)
		return
	}

	w.Section(fmt.Sprintf("Results for %q", query))
	w.KeyValue("mode", resp.Metadata.Mode)
	w.KeyValue("latency", fmt.Sprintf("%dms", resp.Metadata.LatencyMS))
	if resp.Degraded {
		w.Warning("vector leg unavailable, lexical results only")
	}
	if resp.FallbackUsed {
		w.Warning("budget fallback active, local embeddings used")
	}

	for i, r := range resp.Results {
		w.Newline()
		w.Statusf("🔎", "%d. %s (score %.3f, %s)", i+1, r.DocumentTitle, r.FinalScore, r.Source)
		if r.Citation != "" {
			w.KeyValue("citation", r.Citation)
		}
		w.Snippet(r.Content, 6)
	}
}
