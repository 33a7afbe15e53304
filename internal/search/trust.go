package search

import (
	"strconv"
	"strings"
	"time"

	"github.com/synthesis-kb/synthesis/internal/store"
)

// Trust weights by source quality.
var trustWeights = map[store.SourceQuality]float64{
	store.QualityOfficial:  1.0,
	store.QualityVerified:  0.85,
	store.QualityCommunity: 0.6,
	store.QualityUnknown:   0.5,
}

// TrustWeight returns the multiplier for a source quality grade.
func TrustWeight(q store.SourceQuality) float64 {
	if w, ok := trustWeights[q]; ok {
		return w
	}
	return trustWeights[store.QualityUnknown]
}

// RecencyWeight returns the multiplier for a last-verified time: 1.0 under
// six months, 0.9 under twelve, 0.7 beyond or unknown.
func RecencyWeight(lastVerified *time.Time, now time.Time) float64 {
	if lastVerified == nil || lastVerified.IsZero() {
		return 0.7
	}
	age := now.Sub(*lastVerified)
	switch {
	case age < 6*30*24*time.Hour:
		return 1.0
	case age < 12*30*24*time.Hour:
		return 0.9
	default:
		return 0.7
	}
}

// applyTrust multiplies a fused score by the document's trust and recency
// weights.
func applyTrust(r *Result, meta store.DocumentMeta, now time.Time) {
	r.FinalScore = r.FusedScore * TrustWeight(meta.SourceQuality) * RecencyWeight(meta.LastVerified, now)
}

// matchesFilter reports whether a document passes the request filter.
func matchesFilter(f *Filter, meta store.DocumentMeta, now time.Time) bool {
	if f == nil {
		return true
	}
	if len(f.SourceQuality) > 0 {
		ok := false
		for _, q := range f.SourceQuality {
			if meta.SourceQuality == q {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Framework != "" && !strings.EqualFold(meta.Framework, f.Framework) {
		return false
	}
	if f.MinFrameworkVersion != "" {
		if meta.FrameworkVersion == "" {
			return false
		}
		if CompareVersions(meta.FrameworkVersion, f.MinFrameworkVersion) < 0 {
			return false
		}
	}
	if f.MaxAge > 0 {
		if meta.LastVerified == nil || now.Sub(*meta.LastVerified) > f.MaxAge {
			return false
		}
	}
	if f.MinTrustScore > 0 && TrustWeight(meta.SourceQuality) < f.MinTrustScore {
		return false
	}
	return true
}

// CompareVersions compares dotted version strings component by component as
// numbers, never lexicographically, so "3.10.0" > "3.9.1". Non-numeric
// suffixes ("3.2.0-beta") compare on their numeric prefix; missing
// components count as zero. Returns -1, 0, or 1.
func CompareVersions(a, b string) int {
	as := versionParts(a)
	bs := versionParts(b)
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		// Keep the leading digits only; "0rc1" counts as 0.
		j := 0
		for j < len(p) && p[j] >= '0' && p[j] <= '9' {
			j++
		}
		n, _ := strconv.Atoi(p[:j])
		out = append(out, n)
	}
	return out
}
