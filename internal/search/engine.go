package search

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/synthesis-kb/synthesis/internal/embed"
	"github.com/synthesis-kb/synthesis/internal/errors"
	"github.com/synthesis-kb/synthesis/internal/store"
)

// Store is the slice of the storage gateway the engine reads from.
type Store interface {
	GetCollection(ctx context.Context, id string) (*store.Collection, error)
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	GetChunks(ctx context.Context, ids []int64) ([]*store.Chunk, error)
	VectorSearch(ctx context.Context, collectionID string, query []float32, topK int, minScore float32) ([]store.VectorResult, error)
}

// Options carries the configured retrieval behaviour.
type Options struct {
	Mode           string // "hybrid" or "vector"
	RRFConstant    int
	VectorWeight   float64
	BM25Weight     float64
	CandidateLimit int
	MaxResults     int
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	if o.RRFConstant <= 0 {
		o.RRFConstant = DefaultRRFConstant
	}
	if o.VectorWeight <= 0 && o.BM25Weight <= 0 {
		o.VectorWeight = DefaultVectorWeight
		o.BM25Weight = DefaultBM25Weight
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = DefaultCandidateLimit
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultTopK
	}
	return o
}

// Engine runs hybrid retrieval over one storage gateway.
type Engine struct {
	store    Store
	lexical  store.LexicalIndex
	router   *embed.Router
	reranker Reranker
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// New builds an engine. reranker may be nil when re-ranking is disabled.
func New(s Store, lexical store.LexicalIndex, router *embed.Router, reranker Reranker, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:    s,
		lexical:  lexical,
		router:   router,
		reranker: reranker,
		opts:     opts.withDefaults(),
		log:      log,
		now:      time.Now,
	}
}

// Search executes a request end to end: concurrent legs, fusion, filtering,
// trust weighting, and optional re-ranking.
func (e *Engine) Search(ctx context.Context, req *Request) (*Response, error) {
	start := e.now()

	if req.CollectionID == "" {
		return nil, errors.InvalidInput("collection_id is required")
	}
	if req.Query == "" {
		return &Response{Results: []*Result{}, Mode: e.mode(req)}, nil
	}

	coll, err := e.store.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}

	mode := e.mode(req)
	topK := req.TopK
	if topK <= 0 {
		topK = e.opts.MaxResults
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	fuser := e.fuserFor(coll, req)

	var (
		vecResults []store.VectorResult
		lexResults []store.LexicalResult
		vecErr     error
		lexErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecResults, vecErr = e.vectorLeg(gctx, coll, req)
		return nil
	})
	if mode == ModeHybrid {
		g.Go(func() error {
			lexResults, lexErr = e.lexical.LexicalSearch(gctx, req.CollectionID, req.Query, e.opts.CandidateLimit)
			return nil
		})
	}
	_ = g.Wait()

	degraded := false
	switch {
	case mode == ModeVector && vecErr != nil:
		return nil, vecErr
	case mode == ModeHybrid && vecErr != nil && lexErr != nil:
		return nil, errors.Wrap(goerrors.Join(vecErr, lexErr), errors.CodeInternal,
			"both retrieval legs failed")
	case vecErr != nil:
		e.log.Warn("vector leg failed, returning lexical results only", "error", vecErr)
		degraded = true
	case lexErr != nil && mode == ModeHybrid:
		e.log.Warn("lexical leg failed, returning vector results only", "error", lexErr)
		degraded = true
	}

	results := fuser.Fuse(vecResults, lexResults)

	results, err = e.enrich(ctx, results, req.Filter)
	if err != nil {
		return nil, err
	}
	sortResults(results)

	resp := &Response{
		Mode:           mode,
		Degraded:       degraded,
		VectorResults:  len(vecResults),
		LexicalResults: len(lexResults),
	}

	if req.Rerank && e.reranker != nil && len(results) > 0 {
		results, resp.FallbackUsed = e.rerank(ctx, req.Query, results, topK)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	resp.Results = results
	resp.Took = e.now().Sub(start)
	resp.TookMS = resp.Took.Milliseconds()
	return resp, nil
}

func (e *Engine) mode(req *Request) string {
	switch req.Mode {
	case ModeVector, ModeHybrid:
		return req.Mode
	}
	return e.opts.Mode
}

// fuserFor applies fusion overrides: collection metadata first, then
// per-request weights.
func (e *Engine) fuserFor(coll *store.Collection, req *Request) *Fuser {
	k := e.opts.RRFConstant
	wv := e.opts.VectorWeight
	wl := e.opts.BM25Weight
	if v, err := strconv.Atoi(coll.Metadata[store.CollectionKeyRRFConstant]); err == nil && v > 0 {
		k = v
	}
	if v, err := strconv.ParseFloat(coll.Metadata[store.CollectionKeyVectorWeight], 64); err == nil && v > 0 {
		wv = v
	}
	if v, err := strconv.ParseFloat(coll.Metadata[store.CollectionKeyBM25Weight], 64); err == nil && v > 0 {
		wl = v
	}
	if req.VectorWeight > 0 {
		wv = req.VectorWeight
	}
	if req.BM25Weight > 0 {
		wl = req.BM25Weight
	}
	return NewFuser(k, wv, wl)
}

// vectorLeg embeds the query and runs ANN retrieval. The embedding route is
// pinned to the collection's recorded provider so query vectors always match
// the dimension of the indexed chunks.
func (e *Engine) vectorLeg(ctx context.Context, coll *store.Collection, req *Request) ([]store.VectorResult, error) {
	sel, err := e.router.Pick(ctx, embed.RouteOptions{
		Kind:     embed.ClassifyContent("", req.Query),
		Override: coll.Metadata[store.CollectionKeyEmbeddingProvider],
	})
	if err != nil {
		return nil, err
	}
	vec, err := sel.Embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.store.VectorSearch(ctx, req.CollectionID, vec, e.opts.CandidateLimit, req.MinScore)
}

// enrich loads chunk and document data for fused results, applies the
// metadata filter, and folds trust and recency into the final score.
func (e *Engine) enrich(ctx context.Context, results []*Result, filter *Filter) ([]*Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	docs := make(map[string]*store.Document)
	now := e.now()

	out := results[:0]
	for _, r := range results {
		c, ok := byID[r.ChunkID]
		if !ok {
			// Deleted between index lookup and enrichment.
			continue
		}
		doc, ok := docs[c.DocumentID]
		if !ok {
			doc, err = e.store.GetDocument(ctx, c.DocumentID)
			if err != nil {
				if errors.IsCode(err, errors.CodeNotFound) {
					continue
				}
				return nil, err
			}
			docs[c.DocumentID] = doc
		}

		if !matchesFilter(filter, doc.Meta, now) {
			continue
		}

		r.DocumentID = doc.ID
		r.DocumentTitle = doc.FileName
		r.SourceURL = doc.Meta.SourceURL
		r.Content = c.Content
		r.Metadata = c.Metadata
		r.Citation = citation(doc, c)
		applyTrust(r, doc.Meta, now)
		out = append(out, r)
	}
	return out, nil
}

// rerank reorders by cross-encoder score; on total provider failure the
// fused order is kept and the response flags the fallback.
func (e *Engine) rerank(ctx context.Context, query string, results []*Result, topK int) ([]*Result, bool) {
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = truncate(r.Content, 4000)
	}

	ranked, err := e.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		e.log.Warn("re-ranking failed, keeping fused order", "error", err)
		return results, true
	}

	out := make([]*Result, 0, len(ranked))
	for _, rr := range ranked {
		r := results[rr.Index]
		r.RerankScore = rr.Score
		r.FinalScore = rr.Score
		out = append(out, r)
	}
	return out, false
}

func citation(doc *store.Document, c *store.Chunk) string {
	loc := doc.FileName
	if c.StartLine > 0 {
		loc = fmt.Sprintf("%s:%d-%d", doc.FileName, c.StartLine, c.EndLine)
	}
	if doc.Meta.SourceURL != "" {
		return fmt.Sprintf("%s (%s)", loc, doc.Meta.SourceURL)
	}
	return loc
}
