package synthesis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-kb/synthesis/internal/embed"
	"github.com/synthesis-kb/synthesis/internal/store"
)

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict(`{"contradictory": true, "difference": "retry counts differ", "severity": "HIGH", "prefer": "a", "confidence": 0.8}`)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.Contradictory)
	assert.Equal(t, "retry counts differ", v.Difference)
	assert.InDelta(t, 0.8, v.Confidence, 1e-9)
}

func TestParseVerdict_SurroundingProse(t *testing.T) {
	v, err := parseVerdict("Sure, here is my answer:\n{\"contradictory\": false}\nHope that helps!")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.False(t, v.Contradictory)
}

func TestParseVerdict_Malformed(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{broken", `{"contradictory": "maybe"}`} {
		v, err := parseVerdict(raw)
		require.NoError(t, err, raw)
		assert.Nil(t, v, raw)
	}
}

func TestParseVerdict_ClampsConfidence(t *testing.T) {
	v, err := parseVerdict(`{"contradictory": true, "confidence": 3.5}`)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v.Confidence, 1e-9)
}

func TestNormaliseSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, normaliseSeverity(" High "))
	assert.Equal(t, SeverityLow, normaliseSeverity("low"))
	assert.Equal(t, SeverityMedium, normaliseSeverity("medium"))
	assert.Equal(t, SeverityMedium, normaliseSeverity("catastrophic"))
}

func TestDetectConflicts_BuildsConflict(t *testing.T) {
	recent := time.Now().AddDate(0, -1, 0)
	approaches := []*Approach{
		{Method: "riverpod providers", Summary: "Use riverpod providers for shared state.",
			Sources: []*SourceRef{{Title: "Docs", Quality: store.QualityOfficial, LastVerified: &recent}}},
		{Method: "global singletons", Summary: "Keep state in global singletons everywhere.",
			Sources: []*SourceRef{{Title: "Blog", Quality: store.QualityCommunity}}},
	}

	chat := &scriptedChat{reply: `{"contradictory": true, "difference": "opposite state ownership", "severity": "high", "prefer": "a", "confidence": 0.9}`}
	e := New(&fakeSearcher{}, &fakeDocs{}, synthRouter(), chat, nil,
		// Similarity window wide open so the pair always reaches the model.
		Options{Enabled: true, ContradictionDetection: true, MinSimilarity: -1.1, MaxSimilarity: 1.1}, nil)
	e.opts.MinSimilarity = -1.1 // withDefaults replaces non-positive values

	conflicts := e.detectConflicts(context.Background(), "state management", approaches)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, "state management", c.Topic)
	assert.Equal(t, SeverityHigh, c.Severity)
	assert.Equal(t, "opposite state ownership", c.Difference)
	assert.InDelta(t, 0.9, c.Confidence, 1e-9)
	assert.Equal(t, store.QualityOfficial, c.SourceA.Quality)
	assert.Contains(t, c.Recommendation, "riverpod providers")
	assert.Contains(t, c.Recommendation, "official")
	assert.Equal(t, 0, c.aIdx)
	assert.Equal(t, 1, c.bIdx)
}

func TestDetectConflicts_NonContradictorySkipped(t *testing.T) {
	approaches := []*Approach{
		{Method: "a", Summary: "alpha", Sources: []*SourceRef{{Quality: store.QualityOfficial}}},
		{Method: "b", Summary: "beta", Sources: []*SourceRef{{Quality: store.QualityCommunity}}},
	}
	chat := &scriptedChat{reply: `{"contradictory": false}`}
	e := New(&fakeSearcher{}, &fakeDocs{}, synthRouter(), chat, nil,
		Options{Enabled: true, ContradictionDetection: true, MaxSimilarity: 1.1}, nil)
	e.opts.MinSimilarity = -1.1

	assert.Empty(t, e.detectConflicts(context.Background(), "q", approaches))
	assert.Equal(t, 1, chat.calls)
}

func TestDetectConflicts_ModelFailureSkipsPair(t *testing.T) {
	approaches := []*Approach{
		{Method: "a", Summary: "alpha", Sources: []*SourceRef{{Quality: store.QualityOfficial}}},
		{Method: "b", Summary: "beta", Sources: []*SourceRef{{Quality: store.QualityCommunity}}},
	}
	chat := &scriptedChat{err: fmt.Errorf("model offline")}
	e := New(&fakeSearcher{}, &fakeDocs{}, synthRouter(), chat, nil,
		Options{Enabled: true, ContradictionDetection: true, MaxSimilarity: 1.1}, nil)
	e.opts.MinSimilarity = -1.1

	assert.Empty(t, e.detectConflicts(context.Background(), "q", approaches))
}

// routedStatic records which provider a batch landed on.
type routedStatic struct {
	*embed.StaticEmbedder
	name    string
	batches int
}

func (r *routedStatic) ProviderName() string { return r.name }
func (r *routedStatic) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.batches++
	return r.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestEmbedSummaries_UsesDocumentationRoute(t *testing.T) {
	doc := &routedStatic{StaticEmbedder: embed.NewStaticEmbedder(), name: "docs"}
	writing := &routedStatic{StaticEmbedder: embed.NewStaticEmbedder(), name: "writing"}
	router := embed.NewRouter(
		map[string]embed.Embedder{"docs": doc, "writing": writing},
		map[embed.ContentKind]string{
			embed.KindDocumentation: "docs",
			embed.KindWriting:       "writing",
		},
		nil, nil)

	e := New(&fakeSearcher{}, &fakeDocs{}, router, nil, nil, Options{Enabled: true}, nil)

	vecs, err := e.embedSummaries(context.Background(),
		[]*Approach{{Summary: "alpha"}, {Summary: "beta"}})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, 1, doc.batches, "summaries should ride the documentation route")
	assert.Zero(t, writing.batches)
}

func TestRecommendation_QualityThenRecency(t *testing.T) {
	recent := time.Now().AddDate(0, -1, 0)
	old := time.Now().AddDate(-1, 0, 0)

	appA := &Approach{Method: "method a"}
	appB := &Approach{Method: "method b"}

	got := recommendation(
		&SourceRef{Quality: store.QualityCommunity},
		&SourceRef{Quality: store.QualityOfficial},
		appA, appB)
	assert.Contains(t, got, "method b")
	assert.Contains(t, got, "official")

	got = recommendation(
		&SourceRef{Quality: store.QualityVerified, LastVerified: &recent},
		&SourceRef{Quality: store.QualityVerified, LastVerified: &old},
		appA, appB)
	assert.Contains(t, got, "method a")
	assert.Contains(t, got, "more recently verified")
}
