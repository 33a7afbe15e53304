package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_DispatchByExtension(t *testing.T) {
	s := NewSplitter(Options{CodeChunking: true, PreserveImports: true}, nil)
	defer s.Close()
	ctx := context.Background()

	md, err := s.Split(ctx, &FileInput{Path: "docs/guide.md", Content: []byte("# Title\n\nBody text.\n")})
	require.NoError(t, err)
	require.NotEmpty(t, md.Chunks)
	assert.Nil(t, md.Parsed)
	assert.Equal(t, "section", md.Chunks[0].Metadata["type"])

	dart, err := s.Split(ctx, &FileInput{Path: "lib/auth.dart", Content: []byte(dartAuthService)})
	require.NoError(t, err)
	require.NotNil(t, dart.Parsed)
	assert.Equal(t, "dart", dart.Parsed.Language)
	require.NotEmpty(t, dart.Chunks)

	txt, err := s.Split(ctx, &FileInput{Path: "notes.txt", Content: []byte("plain text content")})
	require.NoError(t, err)
	assert.Nil(t, txt.Parsed)
	assert.Equal(t, "text", txt.Chunks[0].Metadata["type"])
}

func TestSplitter_BrokenDartFallsBackToText(t *testing.T) {
	s := NewSplitter(Options{CodeChunking: true}, nil)
	defer s.Close()

	res, err := s.Split(context.Background(), &FileInput{
		Path:    "lib/broken.dart",
		Content: []byte("void broken() {\n  missing closing brace\n"),
	})
	require.NoError(t, err, "parse failure must not surface as an error")
	assert.Nil(t, res.Parsed)
	require.NotEmpty(t, res.Chunks)
	assert.Equal(t, "text", res.Chunks[0].Metadata["type"])
}

func TestSplitter_CodeChunkingDisabled(t *testing.T) {
	s := NewSplitter(Options{CodeChunking: false}, nil)
	defer s.Close()

	res, err := s.Split(context.Background(), &FileInput{
		Path:    "lib/auth.dart",
		Content: []byte(dartAuthService),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Parsed)
	assert.Equal(t, "text", res.Chunks[0].Metadata["type"])
}

func TestBuildCodeChunks_PreserveImports(t *testing.T) {
	pf, err := ParseDart("lib/auth.dart", []byte(dartAuthService))
	require.NoError(t, err)

	chunks := buildCodeChunks(pf, Options{PreserveImports: true}.withDefaults())
	require.NotEmpty(t, chunks)
	for _, ck := range chunks {
		assert.Contains(t, ck.Content, "import 'package:http/http.dart';",
			"every chunk carries the import block")
	}
}

func TestBuildCodeChunks_SmallClassEmittedWhole(t *testing.T) {
	pf, err := ParseDart("lib/auth.dart", []byte(dartAuthService))
	require.NoError(t, err)

	chunks := buildCodeChunks(pf, Options{}.withDefaults())
	var classChunk *Chunk
	for _, ck := range chunks {
		if ck.Metadata["type"] == "class" {
			classChunk = ck
		}
	}
	require.NotNil(t, classChunk)
	assert.Equal(t, "AuthService", classChunk.Metadata["name"])
	assert.Contains(t, classChunk.Content, "Future<bool> login")
}

func TestBuildCodeChunks_LargeClassSplitsPerMethod(t *testing.T) {
	pf, err := ParseDart("lib/auth.dart", []byte(dartAuthService))
	require.NoError(t, err)

	chunks := buildCodeChunks(pf, Options{CodeMaxChunkLines: 5}.withDefaults())
	var methods []string
	for _, ck := range chunks {
		if ck.Metadata["type"] == "method" {
			assert.Equal(t, "AuthService", ck.Metadata["class"])
			methods = append(methods, ck.Metadata["name"])
		}
	}
	assert.Contains(t, methods, "login")
	assert.Contains(t, methods, "hash")

	for _, ck := range chunks {
		assert.NotEqual(t, "class", ck.Metadata["type"],
			"oversized class must not be emitted whole")
	}
}

func TestBuildCodeChunks_FunctionMetadata(t *testing.T) {
	pf, err := ParseDart("lib/auth.dart", []byte(dartAuthService))
	require.NoError(t, err)

	chunks := buildCodeChunks(pf, Options{}.withDefaults())
	var fn *Chunk
	for _, ck := range chunks {
		if ck.Metadata["type"] == "function" {
			fn = ck
		}
	}
	require.NotNil(t, fn)
	assert.Equal(t, "fetchUser", fn.Metadata["name"])
	assert.Equal(t, "String id", fn.Metadata["params"])
	assert.Equal(t, "Future<User>", fn.Metadata["return_type"])
	assert.Equal(t, "true", fn.Metadata["async"])
	assert.Equal(t, "dart", fn.Metadata["language"])
	assert.False(t, strings.Contains(fn.Metadata["params"], "("))
}
