// Package synthesis clusters search results into approaches, scores
// consensus, detects contradictions between sources, and recommends one
// approach.
package synthesis

import (
	"time"

	"github.com/synthesis-kb/synthesis/internal/store"
)

// Conflict severity grades.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Request asks for a multi-source comparison.
type Request struct {
	Query        string `json:"query"`
	CollectionID string `json:"collection_id"`
	TopK         int    `json:"top_k,omitempty"`
}

// SourceRef describes one contributing document.
type SourceRef struct {
	DocumentID   string              `json:"document_id"`
	Title        string              `json:"title"`
	SourceURL    string              `json:"source_url,omitempty"`
	Quality      store.SourceQuality `json:"quality"`
	LastVerified *time.Time          `json:"last_verified,omitempty"`
	Citation     string              `json:"citation,omitempty"`
}

// Approach is one cluster of sources advocating the same method.
type Approach struct {
	Method         string       `json:"method"`
	Summary        string       `json:"summary"`
	Sources        []*SourceRef `json:"sources"`
	ConsensusScore float64      `json:"consensus_score"`
}

// Conflict records a detected contradiction between two approaches.
type Conflict struct {
	Topic          string     `json:"topic"`
	SourceA        *SourceRef `json:"source_a"`
	SourceB        *SourceRef `json:"source_b"`
	Severity       string     `json:"severity"`
	Difference     string     `json:"difference"`
	Recommendation string     `json:"recommendation"`
	Confidence     float64    `json:"confidence"`

	// approach indices, used for the recommendation penalty
	aIdx, bIdx int
}

// Metadata carries execution facts for the response.
type Metadata struct {
	TotalSources    int   `json:"total_sources"`
	ApproachesFound int   `json:"approaches_found"`
	ConflictsFound  int   `json:"conflicts_found"`
	SynthesisTimeMS int64 `json:"synthesis_time_ms"`
}

// Response is the comparison result.
type Response struct {
	Query       string      `json:"query"`
	Approaches  []*Approach `json:"approaches"`
	Conflicts   []*Conflict `json:"conflicts"`
	Recommended string      `json:"recommended,omitempty"`
	Metadata    Metadata    `json:"metadata"`
}

// qualityRank orders source quality for preference decisions.
func qualityRank(q store.SourceQuality) int {
	switch q {
	case store.QualityOfficial:
		return 3
	case store.QualityVerified:
		return 2
	case store.QualityCommunity:
		return 1
	default:
		return 0
	}
}

// preferred returns the better of two sources: higher quality grade
// first, then the more recently verified.
func preferred(a, b *SourceRef) *SourceRef {
	ra, rb := qualityRank(a.Quality), qualityRank(b.Quality)
	if ra != rb {
		if ra > rb {
			return a
		}
		return b
	}
	switch {
	case a.LastVerified == nil:
		return b
	case b.LastVerified == nil:
		return a
	case a.LastVerified.After(*b.LastVerified):
		return a
	default:
		return b
	}
}
