package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder hashes token and trigram features into a fixed-size
// vector. No network, no model, fully deterministic. Semantic quality
// is poor compared to a real model, so it serves only as the last rung
// of the provider fallback chain.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// Tokens carry most of the weight; character trigrams add spelling
// signal so near-identical identifiers still land near each other.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// Keywords shared across languages add no discriminative signal.
var codeStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

var wordRunRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return make([]float32, StaticDimensions), nil
	}

	vec := make([]float32, StaticDimensions)
	for _, token := range staticTokenize(text) {
		vec[featureIndex(token)] += tokenWeight
	}
	for _, gram := range trigrams(text) {
		vec[featureIndex(gram)] += ngramWeight
	}
	return normalizeVector(vec), nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// staticTokenize lowercases and splits text into words, breaking
// camelCase identifiers apart and dropping code stop words.
func staticTokenize(text string) []string {
	var tokens []string
	for _, word := range wordRunRegex.FindAllString(text, -1) {
		for _, part := range splitIdentifier(word) {
			part = strings.ToLower(part)
			if part != "" && !codeStopWords[part] {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// splitIdentifier breaks camelCase and PascalCase at case boundaries.
// Runs of capitals stay together: "parseHTTPHeader" yields parse,
// HTTP, Header.
func splitIdentifier(s string) []string {
	parts := []string{}
	var cur strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && cur.Len() > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// trigrams flattens text to lowercased alphanumerics and slides a
// 3-character window over the result.
func trigrams(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return extractNgrams(b.String(), ngramSize)
}

func extractNgrams(s string, n int) []string {
	if len(s) < n {
		return nil
	}
	grams := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		grams = append(grams, s[i:i+n])
	}
	return grams
}

// featureIndex maps a feature string into the vector via FNV-64.
func featureIndex(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(StaticDimensions))
}

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

func (e *StaticEmbedder) ModelName() string { return "static" }

func (e *StaticEmbedder) ProviderName() string { return "static" }

// Available is true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
