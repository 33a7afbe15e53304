package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/synthesis-kb/synthesis/internal/embed"
	"github.com/synthesis-kb/synthesis/internal/errors"
	"github.com/synthesis-kb/synthesis/internal/llm"
	"github.com/synthesis-kb/synthesis/internal/search"
	"github.com/synthesis-kb/synthesis/internal/store"
)

const (
	// DefaultMaxCandidates caps the results fed into clustering.
	DefaultMaxCandidates = 50

	maxClusters      = 3
	kmeansIterations = 10
	snippetBytes     = 500
	summaryMaxBytes  = 400

	// penalty per high-severity conflict an approach participates in
	highSeverityPenalty = 0.15
)

// Searcher is the retrieval dependency; satisfied by the search engine.
type Searcher interface {
	Search(ctx context.Context, req *search.Request) (*search.Response, error)
}

// DocumentLoader resolves candidate document metadata.
type DocumentLoader interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
}

// Options configures the synthesis pipeline.
type Options struct {
	Enabled                bool
	ContradictionDetection bool
	// MinSimilarity is the floor below which approach pairs are unrelated.
	MinSimilarity float64
	// MaxSimilarity is the ceiling above which approach pairs agree.
	MaxSimilarity float64
	MaxCandidates int
}

func (o Options) withDefaults() Options {
	if o.MinSimilarity <= 0 {
		o.MinSimilarity = 0.2
	}
	if o.MaxSimilarity <= 0 {
		o.MaxSimilarity = 0.7
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	return o
}

// Engine runs the synthesis pipeline over search results.
type Engine struct {
	searcher Searcher
	docs     DocumentLoader
	router   *embed.Router
	chat     llm.Client // nil switches summaries to extractive
	gate     search.FallbackGate
	opts     Options
	log      *slog.Logger
	now      func() time.Time
	rng      *rand.Rand
}

// New builds an engine. chat and gate may be nil.
func New(searcher Searcher, docs DocumentLoader, router *embed.Router, chat llm.Client, gate search.FallbackGate, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		searcher: searcher,
		docs:     docs,
		router:   router,
		chat:     chat,
		gate:     gate,
		opts:     opts.withDefaults(),
		log:      log,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Enabled reports whether the synthesis feature is on.
func (e *Engine) Enabled() bool { return e.opts.Enabled }

// Compare retrieves candidates for the query, clusters them into
// approaches, scores consensus, optionally detects contradictions, and
// recommends one approach.
func (e *Engine) Compare(ctx context.Context, req *Request) (*Response, error) {
	start := e.now()

	if !e.opts.Enabled {
		return nil, errors.New(errors.CodeNotFound, "synthesis is disabled", nil).
			WithSuggestion("enable it in the synthesis configuration")
	}
	if req.Query == "" {
		return nil, errors.InvalidInput("query is required")
	}
	if req.CollectionID == "" {
		return nil, errors.InvalidInput("collection_id is required")
	}

	topK := req.TopK
	if topK <= 0 || topK > e.opts.MaxCandidates {
		topK = e.opts.MaxCandidates
	}

	sr, err := e.searcher.Search(ctx, &search.Request{
		CollectionID: req.CollectionID,
		Query:        req.Query,
		TopK:         topK,
		Rerank:       true,
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{Query: req.Query, Approaches: []*Approach{}, Conflicts: []*Conflict{}}
	candidates := sr.Results
	if len(candidates) == 0 {
		resp.Metadata.SynthesisTimeMS = e.now().Sub(start).Milliseconds()
		return resp, nil
	}

	refs := e.sourceRefs(ctx, candidates)

	vectors, err := e.embedSnippets(ctx, req.Query, candidates)
	if err != nil {
		return nil, err
	}

	k := len(candidates) / 3
	if k > maxClusters {
		k = maxClusters
	}
	if k < 1 {
		k = 1
	}
	clusters := kmeans(vectors, k, kmeansIterations, e.rng)

	for i, members := range clusters {
		resp.Approaches = append(resp.Approaches, e.approach(ctx, i, members, candidates, refs, vectors))
	}
	sort.SliceStable(resp.Approaches, func(i, j int) bool {
		return resp.Approaches[i].ConsensusScore > resp.Approaches[j].ConsensusScore
	})

	if e.opts.ContradictionDetection && len(resp.Approaches) > 1 && e.chatReady(ctx) {
		resp.Conflicts = e.detectConflicts(ctx, req.Query, resp.Approaches)
	}

	resp.Recommended = recommend(resp.Approaches, resp.Conflicts)
	resp.Metadata = Metadata{
		TotalSources:    len(candidates),
		ApproachesFound: len(resp.Approaches),
		ConflictsFound:  len(resp.Conflicts),
		SynthesisTimeMS: e.now().Sub(start).Milliseconds(),
	}
	return resp, nil
}

// sourceRefs resolves one SourceRef per candidate, loading each document
// once. Load failures degrade to unknown quality rather than aborting.
func (e *Engine) sourceRefs(ctx context.Context, candidates []*search.Result) []*SourceRef {
	docs := make(map[string]*store.Document)
	refs := make([]*SourceRef, len(candidates))
	for i, c := range candidates {
		doc, ok := docs[c.DocumentID]
		if !ok {
			var err error
			doc, err = e.docs.GetDocument(ctx, c.DocumentID)
			if err != nil {
				e.log.Warn("failed to load document for synthesis", "document_id", c.DocumentID, "error", err)
				doc = nil
			}
			docs[c.DocumentID] = doc
		}

		ref := &SourceRef{
			DocumentID: c.DocumentID,
			Title:      c.DocumentTitle,
			SourceURL:  c.SourceURL,
			Quality:    store.QualityUnknown,
			Citation:   c.Citation,
		}
		if doc != nil {
			if doc.Meta.SourceQuality != "" {
				ref.Quality = doc.Meta.SourceQuality
			}
			ref.LastVerified = doc.Meta.LastVerified
		}
		refs[i] = ref
	}
	return refs
}

// embedSnippets embeds the head of each candidate's content.
func (e *Engine) embedSnippets(ctx context.Context, query string, candidates []*search.Result) ([][]float32, error) {
	sel, err := e.router.Pick(ctx, embed.RouteOptions{Kind: embed.ClassifyContent("", query)})
	if err != nil {
		return nil, err
	}

	snippets := make([]string, len(candidates))
	for i, c := range candidates {
		snippets[i] = headBytes(c.Content, snippetBytes)
	}
	return sel.Embedder.EmbedBatch(ctx, snippets)
}

// approach builds one Approach from a cluster.
func (e *Engine) approach(ctx context.Context, idx int, members []int, candidates []*search.Result, refs []*SourceRef, vectors [][]float32) *Approach {
	texts := make([]string, len(members))
	sources := make([]*SourceRef, len(members))
	for i, m := range members {
		texts[i] = candidates[m].Content
		sources[i] = refs[m]
	}

	method := trigramLabel(texts)
	if method == "" {
		method = commonTitle(sources)
	}
	if method == "" {
		method = fmt.Sprintf("approach %d", idx+1)
	}

	return &Approach{
		Method:         method,
		Summary:        e.summarise(ctx, texts),
		Sources:        sources,
		ConsensusScore: consensus(sources, members, vectors, e.now()),
	}
}

// summarise asks the chat model for a short summary, falling back to an
// extractive one on any failure.
func (e *Engine) summarise(ctx context.Context, texts []string) string {
	if e.chatReady(ctx) {
		var b strings.Builder
		b.WriteString("Summarise, in at most two sentences, the approach these excerpts share. Answer with the summary only.\n")
		for i, t := range texts {
			if i == 4 {
				break
			}
			fmt.Fprintf(&b, "\nExcerpt %d:\n%s\n", i+1, headBytes(t, snippetBytes))
		}

		out, err := e.chat.Generate(ctx, b.String())
		if err == nil && strings.TrimSpace(out) != "" {
			return extractiveSummary(out, summaryMaxBytes)
		}
		if err != nil {
			e.log.Warn("summary generation failed, using extractive summary", "error", err)
		}
	}
	return extractiveSummary(texts[0], summaryMaxBytes)
}

// chatReady reports whether the chat model may be called now. Paid
// providers are suppressed while the budget fallback is active.
func (e *Engine) chatReady(ctx context.Context) bool {
	if e.chat == nil {
		return false
	}
	if e.gate != nil && e.gate.FallbackActive() && e.chat.ProviderName() != "ollama" {
		return false
	}
	return e.chat.Available(ctx)
}

// consensus = 0.4·quality agreement + 0.4·cluster cohesion + 0.2·freshness
// agreement.
func consensus(sources []*SourceRef, members []int, vectors [][]float32, now time.Time) float64 {
	n := float64(len(sources))
	if n == 0 {
		return 0
	}

	var quality, freshness float64
	for _, s := range sources {
		if s.Quality == store.QualityOfficial || s.Quality == store.QualityVerified {
			quality++
		}
		if s.LastVerified == nil {
			freshness += 0.7
		} else if now.Sub(*s.LastVerified) <= 6*30*24*time.Hour {
			freshness++
		}
	}

	cohesion := 1.0
	if len(members) > 1 {
		assign := make([]int, len(vectors))
		for i := range assign {
			assign[i] = -1
		}
		for _, m := range members {
			assign[m] = 0
		}
		centroid := meanVector(vectors, assign, 0)

		var sum float64
		for _, m := range members {
			sum += float64(cosine32(vectors[m], centroid))
		}
		cohesion = sum / n
	}

	return 0.4*(quality/n) + 0.4*cohesion + 0.2*(freshness/n)
}

// recommend picks the approach with the highest consensus after the
// high-severity conflict penalty; ties break by source count, then by
// the presence of an official source.
func recommend(approaches []*Approach, conflicts []*Conflict) string {
	if len(approaches) == 0 {
		return ""
	}

	highCount := make([]int, len(approaches))
	for _, c := range conflicts {
		if c.Severity != SeverityHigh {
			continue
		}
		if c.aIdx >= 0 && c.aIdx < len(approaches) {
			highCount[c.aIdx]++
		}
		if c.bIdx >= 0 && c.bIdx < len(approaches) {
			highCount[c.bIdx]++
		}
	}

	best := 0
	bestScore := score(approaches[0], highCount[0])
	for i := 1; i < len(approaches); i++ {
		s := score(approaches[i], highCount[i])
		switch {
		case s > bestScore:
			best, bestScore = i, s
		case s == bestScore && betterTie(approaches[i], approaches[best]):
			best = i
		}
	}
	return approaches[best].Method
}

func score(a *Approach, highConflicts int) float64 {
	return a.ConsensusScore - highSeverityPenalty*float64(highConflicts)
}

func betterTie(a, b *Approach) bool {
	if len(a.Sources) != len(b.Sources) {
		return len(a.Sources) > len(b.Sources)
	}
	return hasOfficial(a) && !hasOfficial(b)
}

func hasOfficial(a *Approach) bool {
	for _, s := range a.Sources {
		if s.Quality == store.QualityOfficial {
			return true
		}
	}
	return false
}

// commonTitle returns the most frequent source title, ties to the first.
func commonTitle(sources []*SourceRef) string {
	counts := make(map[string]int)
	best := ""
	for _, s := range sources {
		if s.Title == "" {
			continue
		}
		counts[s.Title]++
		if best == "" || counts[s.Title] > counts[best] {
			best = s.Title
		}
	}
	return best
}

// headBytes cuts s at approximately n bytes on a rune boundary.
func headBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
