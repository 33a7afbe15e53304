// Package search implements hybrid retrieval: concurrent lexical and
// vector legs fused by reciprocal rank, metadata filtering, trust
// weighting, and optional cross-encoder re-ranking.
package search

import (
	"time"

	"github.com/synthesis-kb/synthesis/internal/store"
)

// Defaults for result sizing. Legs fetch CandidateLimit each before fusion;
// callers get DefaultTopK unless they ask for more, capped at MaxTopK.
const (
	DefaultCandidateLimit = 30
	DefaultTopK           = 10
	MaxTopK               = 50
)

// Mode selects the retrieval strategy.
const (
	ModeVector = "vector"
	ModeHybrid = "hybrid"
)

// Source tags which leg produced a fused result.
const (
	SourceVector  = "vector"
	SourceLexical = "lexical"
	SourceBoth    = "both"
)

// Request is one search invocation.
type Request struct {
	CollectionID string  `json:"collection_id"`
	Query        string  `json:"query"`
	Mode         string  `json:"mode,omitempty"` // overrides the configured mode
	TopK         int     `json:"top_k,omitempty"`
	MinScore     float32 `json:"min_score,omitempty"`
	Rerank       bool    `json:"rerank,omitempty"`
	Filter       *Filter `json:"filter,omitempty"`

	// VectorWeight and BM25Weight override the fusion weights for this
	// request when positive.
	VectorWeight float64 `json:"vector_weight,omitempty"`
	BM25Weight   float64 `json:"bm25_weight,omitempty"`
}

// Filter narrows fused results by document metadata.
type Filter struct {
	// SourceQuality keeps only documents with one of these grades.
	SourceQuality []store.SourceQuality `json:"source_quality,omitempty"`
	// Framework keeps only documents tagged with this framework.
	Framework string `json:"framework,omitempty"`
	// MinFrameworkVersion keeps documents whose framework_version compares
	// greater or equal, numerically per semver component.
	MinFrameworkVersion string `json:"min_framework_version,omitempty"`
	// MaxAge keeps documents whose last_verified is within this window.
	MaxAge time.Duration `json:"max_age,omitempty"`
	// MinTrustScore keeps documents whose trust weight (by source
	// quality) is at least this value. Distinct from Request.MinScore,
	// which thresholds vector similarity.
	MinTrustScore float64 `json:"min_trust_score,omitempty"`
}

// Result is one scored chunk.
type Result struct {
	ChunkID       int64             `json:"chunk_id"`
	DocumentID    string            `json:"document_id"`
	DocumentTitle string            `json:"document_title"`
	SourceURL     string            `json:"source_url,omitempty"`
	Content       string            `json:"content"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Citation      string            `json:"citation"`

	VectorScore  float64 `json:"vector_score"`
	LexicalScore float64 `json:"lexical_score"`
	FusedScore   float64 `json:"fused_score"`
	// FinalScore is the fused score after trust and recency weighting,
	// replaced by the cross-encoder score when re-ranking ran.
	FinalScore  float64 `json:"final_score"`
	RerankScore float64 `json:"rerank_score,omitempty"`

	Source string `json:"source"` // vector, lexical, or both
}

// Response wraps the ranked results with execution facts.
type Response struct {
	Results []*Result `json:"results"`
	Mode    string    `json:"mode"`
	// VectorResults and LexicalResults count what each leg returned
	// before fusion.
	VectorResults  int `json:"vector_results"`
	LexicalResults int `json:"bm25_results"`
	// Degraded is true when one retrieval leg failed and the other's
	// results were returned anyway.
	Degraded bool `json:"degraded,omitempty"`
	// FallbackUsed is true when re-ranking was requested but every
	// provider failed, or the budget gate substituted providers.
	FallbackUsed bool          `json:"fallback_used,omitempty"`
	Took         time.Duration `json:"-"`
	TookMS       int64         `json:"took_ms"`
}
