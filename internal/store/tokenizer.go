package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches alphanumeric runs, keeping underscores for the
// snake_case split.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// DefaultCodeStopWords are tokens too common in source code to carry
// ranking signal.
var DefaultCodeStopWords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "from", "as", "is", "are", "was", "be", "this",
	"that", "it", "not",
	// code keywords shared across the supported languages
	"func", "function", "return", "var", "let", "const", "class",
	"import", "export", "new", "if", "else", "true", "false", "null",
	"void", "int", "string", "bool",
}

// TokenizeCode splits text with code-aware rules: camelCase,
// PascalCase, and snake_case identifiers break into their parts, all
// lowercased, tokens shorter than 2 chars dropped.
func TokenizeCode(text string) []string {
	var tokens []string

	words := tokenRegex.FindAllString(text, -1)
	for _, word := range words {
		for _, t := range SplitCodeToken(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// SplitCodeToken splits snake_case first, then camelCase within each part.
func SplitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}

	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
//   - "parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	runes := []rune(s)
	result := []string{}

	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		// A boundary sits before an upper rune that follows a lower one,
		// or that starts a new word after an acronym run.
		afterLower := unicode.IsLower(runes[i-1])
		beforeLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if afterLower || beforeLower {
			result = append(result, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		result = append(result, string(runes[start:]))
	}
	return result
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		lower := strings.ToLower(token)
		if _, isStop := stopWords[lower]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a stop word list to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
