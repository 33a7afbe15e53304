package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/synthesis-kb/synthesis/internal/store"
)

func TestTrustWeight(t *testing.T) {
	assert.Equal(t, 1.0, TrustWeight(store.QualityOfficial))
	assert.Equal(t, 0.85, TrustWeight(store.QualityVerified))
	assert.Equal(t, 0.6, TrustWeight(store.QualityCommunity))
	assert.Equal(t, 0.5, TrustWeight(store.QualityUnknown))
	assert.Equal(t, 0.5, TrustWeight(store.SourceQuality("bogus")))
}

func TestRecencyWeight(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	fresh := now.AddDate(0, -3, 0)
	assert.Equal(t, 1.0, RecencyWeight(&fresh, now))

	mid := now.AddDate(0, -9, 0)
	assert.Equal(t, 0.9, RecencyWeight(&mid, now))

	old := now.AddDate(-2, 0, 0)
	assert.Equal(t, 0.7, RecencyWeight(&old, now))

	assert.Equal(t, 0.7, RecencyWeight(nil, now))
}

func TestCompareVersions_NumericNotLexicographic(t *testing.T) {
	assert.Equal(t, 1, CompareVersions("3.10.0", "3.9.1"))
	assert.Equal(t, -1, CompareVersions("3.9.1", "3.10.0"))
	assert.Equal(t, 0, CompareVersions("1.2.3", "1.2.3"))
	assert.Equal(t, 0, CompareVersions("1.2", "1.2.0"))
	assert.Equal(t, 1, CompareVersions("v2.0.0", "1.99.99"))
	assert.Equal(t, -1, CompareVersions("3.2.0-beta", "3.2.1"))
	assert.Equal(t, 1, CompareVersions("10.0.0", "9.9.9"))
}

func TestMatchesFilter(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	verified := now.AddDate(0, -2, 0)
	meta := store.DocumentMeta{
		SourceQuality:    store.QualityOfficial,
		Framework:        "flutter",
		FrameworkVersion: "3.22.0",
		LastVerified:     &verified,
	}

	assert.True(t, matchesFilter(nil, meta, now))
	assert.True(t, matchesFilter(&Filter{}, meta, now))

	assert.True(t, matchesFilter(&Filter{SourceQuality: []store.SourceQuality{store.QualityOfficial}}, meta, now))
	assert.False(t, matchesFilter(&Filter{SourceQuality: []store.SourceQuality{store.QualityCommunity}}, meta, now))

	assert.True(t, matchesFilter(&Filter{Framework: "Flutter"}, meta, now))
	assert.False(t, matchesFilter(&Filter{Framework: "react"}, meta, now))

	assert.True(t, matchesFilter(&Filter{MinFrameworkVersion: "3.9.0"}, meta, now))
	assert.False(t, matchesFilter(&Filter{MinFrameworkVersion: "3.23.0"}, meta, now))

	assert.True(t, matchesFilter(&Filter{MaxAge: 90 * 24 * time.Hour}, meta, now))
	assert.False(t, matchesFilter(&Filter{MaxAge: 30 * 24 * time.Hour}, meta, now))

	assert.True(t, matchesFilter(&Filter{MinTrustScore: 0.9}, meta, now))

	noDate := store.DocumentMeta{SourceQuality: store.QualityCommunity}
	assert.False(t, matchesFilter(&Filter{MaxAge: time.Hour}, noDate, now))
	assert.False(t, matchesFilter(&Filter{MinFrameworkVersion: "1.0"}, noDate, now))
	assert.False(t, matchesFilter(&Filter{MinTrustScore: 0.8}, noDate, now))
	assert.True(t, matchesFilter(&Filter{MinTrustScore: 0.6}, noDate, now))
}

func TestApplyTrust(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(-2, 0, 0)

	r := &Result{FusedScore: 0.5}
	applyTrust(r, store.DocumentMeta{SourceQuality: store.QualityVerified, LastVerified: &old}, now)
	assert.InDelta(t, 0.5*0.85*0.7, r.FinalScore, 1e-12)
}
