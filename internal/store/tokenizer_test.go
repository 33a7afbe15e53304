package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCode_CamelCase(t *testing.T) {
	tokens := TokenizeCode("func getUserById")
	assert.Equal(t, []string{"func", "get", "user", "by", "id"}, tokens)
}

func TestTokenizeCode_SnakeCase(t *testing.T) {
	tokens := TokenizeCode("def get_user_by_id")
	assert.Equal(t, []string{"def", "get", "user", "by", "id"}, tokens)
}

func TestTokenizeCode_DropsShortTokens(t *testing.T) {
	tokens := TokenizeCode("a b cd")
	assert.Equal(t, []string{"cd"}, tokens)
}

func TestSplitCamelCase(t *testing.T) {
	cases := []struct {
		input    string
		expected []string
	}{
		{"getUserById", []string{"get", "User", "By", "Id"}},
		{"HTTPHandler", []string{"HTTP", "Handler"}},
		{"parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"simple", []string{"simple"}},
		{"", []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, SplitCamelCase(tc.input))
		})
	}
}

func TestSplitCodeToken_MixedStyles(t *testing.T) {
	assert.Equal(t, []string{"http", "Get", "User"}, SplitCodeToken("http_getUser"))
}

func TestFilterStopWords(t *testing.T) {
	stopWords := BuildStopWordMap([]string{"the", "func"})

	tokens := FilterStopWords([]string{"the", "widget", "func", "build"}, stopWords)
	assert.Equal(t, []string{"widget", "build"}, tokens)
}
