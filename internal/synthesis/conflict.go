package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/synthesis-kb/synthesis/internal/embed"
)

// verdict is the JSON answer expected from the chat model for one
// approach pair.
type verdict struct {
	Contradictory bool    `json:"contradictory"`
	Difference    string  `json:"difference"`
	Severity      string  `json:"severity"`
	Prefer        string  `json:"prefer"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
}

// detectConflicts compares approach pairs. Pairs that already agree
// (similarity above the ceiling) or talk past each other (below the
// floor) are skipped; the rest are judged by the chat model. Any model
// or parse failure skips the pair.
func (e *Engine) detectConflicts(ctx context.Context, query string, approaches []*Approach) []*Conflict {
	vectors, err := e.embedSummaries(ctx, approaches)
	if err != nil {
		e.log.Warn("skipping contradiction detection, summary embedding failed", "error", err)
		return nil
	}

	var conflicts []*Conflict
	for i := 0; i < len(approaches); i++ {
		for j := i + 1; j < len(approaches); j++ {
			sim := float64(cosine32(vectors[i], vectors[j]))
			if sim > e.opts.MaxSimilarity || sim < e.opts.MinSimilarity {
				continue
			}

			v, err := e.judge(ctx, approaches[i], approaches[j])
			if err != nil {
				e.log.Warn("conflict verdict failed", "error", err)
				continue
			}
			if v == nil || !v.Contradictory {
				continue
			}

			a := bestSource(approaches[i])
			b := bestSource(approaches[j])
			conflicts = append(conflicts, &Conflict{
				Topic:          query,
				SourceA:        a,
				SourceB:        b,
				Severity:       normaliseSeverity(v.Severity),
				Difference:     v.Difference,
				Recommendation: recommendation(a, b, approaches[i], approaches[j]),
				Confidence:     v.Confidence,
				aIdx:           i,
				bIdx:           j,
			})
		}
	}
	return conflicts
}

func (e *Engine) embedSummaries(ctx context.Context, approaches []*Approach) ([][]float32, error) {
	// Summaries ride the documentation route so similarity checks stay on
	// the local model regardless of the paid-provider configuration.
	sel, err := e.router.Pick(ctx, embed.RouteOptions{Kind: embed.KindDocumentation})
	if err != nil {
		return nil, err
	}
	summaries := make([]string, len(approaches))
	for i, a := range approaches {
		summaries[i] = a.Summary
	}
	return sel.Embedder.EmbedBatch(ctx, summaries)
}

// judge asks the chat model whether two approaches contradict.
func (e *Engine) judge(ctx context.Context, a, b *Approach) (*verdict, error) {
	prompt := fmt.Sprintf(`Two documentation sources describe ways to solve the same problem. Decide whether they contradict each other.

Source A (%s): %s

Source B (%s): %s

Answer with only a JSON object shaped exactly like:
{"contradictory": true, "difference": "<one sentence>", "severity": "high|medium|low", "prefer": "a|b", "reasoning": "<one sentence>", "confidence": 0.0}`,
		bestSource(a).Quality, a.Summary,
		bestSource(b).Quality, b.Summary)

	out, err := e.chat.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseVerdict(out)
}

// parseVerdict extracts the first JSON object from the model output.
// Malformed output returns (nil, nil) so the caller skips the pair.
func parseVerdict(raw string) (*verdict, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, nil
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return nil, nil
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return &v, nil
}

func normaliseSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// bestSource returns the approach's strongest source.
func bestSource(a *Approach) *SourceRef {
	best := a.Sources[0]
	for _, s := range a.Sources[1:] {
		best = preferred(best, s)
	}
	return best
}

// recommendation prefers higher quality sources, then newer ones.
func recommendation(a, b *SourceRef, appA, appB *Approach) string {
	winner, method := a, appA.Method
	if preferred(a, b) == b {
		winner, method = b, appB.Method
	}

	reason := string(winner.Quality) + " source"
	if qualityRank(a.Quality) == qualityRank(b.Quality) && winner.LastVerified != nil {
		reason = "more recently verified " + reason
	}
	return fmt.Sprintf("prefer %q (%s)", method, reason)
}
