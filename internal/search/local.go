package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/synthesis-kb/synthesis/internal/embed"
)

// LocalReranker is the no-key fallback. It is initialised lazily under a
// one-shot guard so the underlying embedder (a process-wide singleton) is
// loaded at most once, on first use. Scores blend embedding cosine with
// query term overlap.
type LocalReranker struct {
	load func() (embed.Embedder, error)

	once     sync.Once
	embedder embed.Embedder
	loadErr  error
}

// NewLocalReranker defers embedder construction until the first Rerank
// call.
func NewLocalReranker(load func() (embed.Embedder, error)) *LocalReranker {
	return &LocalReranker{load: load}
}

func (l *LocalReranker) Name() string { return "local" }

func (l *LocalReranker) Available(_ context.Context) bool { return true }

func (l *LocalReranker) init() error {
	l.once.Do(func() {
		l.embedder, l.loadErr = l.load()
	})
	return l.loadErr
}

func (l *LocalReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if err := l.init(); err != nil {
		return nil, err
	}
	if topK <= 0 || topK > len(documents) {
		topK = len(documents)
	}

	queryVec, err := l.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	docVecs, err := l.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return nil, err
	}

	queryTerms := termSet(query)
	out := make([]RerankResult, len(documents))
	for i, doc := range documents {
		score := 0.7 * cosine(queryVec, docVecs[i])
		score += 0.3 * overlap(queryTerms, doc)
		out[i] = RerankResult{Index: i, Score: score}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out[:topK], nil
}

func (l *LocalReranker) Close() error {
	if l.embedder != nil {
		return l.embedder.Close()
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func termSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(s)) {
		t = strings.Trim(t, ".,;:!?\"'()[]{}")
		if len(t) > 2 {
			out[t] = true
		}
	}
	return out
}

// overlap is the fraction of query terms present in the document.
func overlap(queryTerms map[string]bool, doc string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docTerms := termSet(doc)
	hits := 0
	for t := range queryTerms {
		if docTerms[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}
