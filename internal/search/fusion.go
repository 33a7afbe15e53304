package search

import (
	"sort"

	"github.com/synthesis-kb/synthesis/internal/store"
)

// RRF fusion defaults. The weights favour the vector leg and must sum to 1.
const (
	DefaultRRFConstant  = 60
	DefaultVectorWeight = 0.7
	DefaultBM25Weight   = 0.3
)

// Fuser combines the two retrieval legs by weighted Reciprocal Rank
// Fusion:
//
//	fused = w_v * 1/(k + rank_v) + w_l * 1/(k + rank_l)
//
// A chunk present in only one list receives just that list's
// contribution.
type Fuser struct {
	K            int
	VectorWeight float64
	BM25Weight   float64
}

func NewFuser(k int, vectorWeight, bm25Weight float64) *Fuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if vectorWeight <= 0 && bm25Weight <= 0 {
		vectorWeight = DefaultVectorWeight
		bm25Weight = DefaultBM25Weight
	}
	return &Fuser{K: k, VectorWeight: vectorWeight, BM25Weight: bm25Weight}
}

// Fuse merges ranked leg outputs into fused results ordered by descending
// fused score. Input order defines ranks (best first, rank 1).
func (f *Fuser) Fuse(vector []store.VectorResult, lexical []store.LexicalResult) []*Result {
	byID := make(map[int64]*Result, len(vector)+len(lexical))

	get := func(id int64) *Result {
		r, ok := byID[id]
		if !ok {
			r = &Result{ChunkID: id}
			byID[id] = r
		}
		return r
	}

	for rank, v := range vector {
		r := get(v.ChunkID)
		r.VectorScore = float64(v.Score)
		r.FusedScore += f.VectorWeight / float64(f.K+rank+1)
		r.Source = SourceVector
	}
	for rank, l := range lexical {
		r := get(l.ChunkID)
		r.LexicalScore = l.Score
		r.FusedScore += f.BM25Weight / float64(f.K+rank+1)
		if r.Source == SourceVector {
			r.Source = SourceBoth
		} else {
			r.Source = SourceLexical
		}
	}

	out := make([]*Result, 0, len(byID))
	for _, r := range byID {
		r.FinalScore = r.FusedScore
		out = append(out, r)
	}
	sortResults(out)
	return out
}

// sortResults orders by final score descending with deterministic
// tie-breaking: both-leg results first, then higher lexical score, then
// chunk id.
func sortResults(rs []*Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if (a.Source == SourceBoth) != (b.Source == SourceBoth) {
			return a.Source == SourceBoth
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return a.ChunkID < b.ChunkID
	})
}
