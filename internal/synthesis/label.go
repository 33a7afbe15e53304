package synthesis

import (
	"strings"
	"unicode"
)

// labelStopwords are dropped before tri-gram extraction; a tri-gram made
// entirely of these never becomes a label.
var labelStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "you": true, "your": true, "are": true, "can": true,
	"use": true, "using": true, "from": true, "into": true, "when": true,
	"will": true, "have": true, "has": true, "its": true, "then": true,
	"but": true, "not": true, "all": true, "how": true, "what": true,
}

// trigramLabel returns the most frequent word tri-gram across the texts,
// or "" when none qualifies. Ties go to the earliest occurrence.
func trigramLabel(texts []string) string {
	counts := make(map[string]int)
	order := make(map[string]int)
	next := 0

	for _, text := range texts {
		words := labelWords(text)
		for i := 0; i+2 < len(words); i++ {
			if labelStopwords[words[i]] && labelStopwords[words[i+1]] && labelStopwords[words[i+2]] {
				continue
			}
			tri := words[i] + " " + words[i+1] + " " + words[i+2]
			if _, seen := counts[tri]; !seen {
				order[tri] = next
				next++
			}
			counts[tri]++
		}
	}

	best, bestCount := "", 1 // a label needs at least two occurrences
	for tri, c := range counts {
		if c > bestCount || (c == bestCount && best != "" && order[tri] < order[best]) {
			best, bestCount = tri, c
		}
	}
	return best
}

// labelWords lowercases and splits text into alphanumeric words of two
// or more characters.
func labelWords(text string) []string {
	var words []string
	var cur strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() >= 2 {
			words = append(words, cur.String())
		}
		cur.Reset()
	}
	if cur.Len() >= 2 {
		words = append(words, cur.String())
	}
	return words
}

// extractiveSummary returns the leading sentences of text within maxLen
// bytes, cutting at a sentence boundary when one exists.
func extractiveSummary(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxLen {
		return text
	}

	cut := text[:maxLen]
	if idx := lastSentenceEnd(cut); idx > maxLen/3 {
		return strings.TrimSpace(cut[:idx+1])
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "…"
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, end := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(s, end); idx > best {
			best = idx
		}
	}
	return best
}
