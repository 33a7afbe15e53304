package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synerrors "github.com/synthesis-kb/synthesis/internal/errors"
)

func TestBlobStore_SaveAndRead_Roundtrip(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	// When: saving a document file
	n, err := b.Save("flutter-docs", "doc-1", ".md", strings.NewReader("# State Management\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(19), n)

	// Then: it lands at <root>/<collection>/<document><ext>
	path := filepath.Join(b.Root(), "flutter-docs", "doc-1.md")
	_, err = os.Stat(path)
	require.NoError(t, err)

	// And: the bytes round-trip
	data, err := b.ReadAll("flutter-docs", "doc-1", ".md")
	require.NoError(t, err)
	assert.Equal(t, "# State Management\n", string(data))
}

func TestBlobStore_Save_OverwritesAtomically(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = b.Save("docs", "doc-1", ".txt", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = b.Save("docs", "doc-1", ".txt", strings.NewReader("second"))
	require.NoError(t, err)

	data, err := b.ReadAll("docs", "doc-1", ".txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// And: no temp files were left behind
	entries, err := os.ReadDir(filepath.Join(b.Root(), "docs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBlobStore_RejectsUnsafeIdentifiers(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	cases := []struct {
		name       string
		collection string
		document   string
		ext        string
	}{
		{"dotdot collection", "../etc", "doc", ".md"},
		{"dotdot document", "docs", "../../passwd", ".md"},
		{"slash in document", "docs", "a/b", ".md"},
		{"absolute document", "docs", "/etc/passwd", ".md"},
		{"empty collection", "", "doc", ".md"},
		{"ext without dot", "docs", "doc", "md"},
		{"ext with traversal", "docs", "doc", ".md/../x"},
		{"ext with double dot", "docs", "doc", ".."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Save(tc.collection, tc.document, tc.ext, strings.NewReader("x"))
			require.Error(t, err)
			assert.Equal(t, synerrors.CodeInvalidInput, synerrors.GetCode(err))
		})
	}
}

func TestBlobStore_Open_Missing(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = b.Open("docs", "ghost", ".md")
	require.Error(t, err)
	assert.Equal(t, synerrors.CodeNotFound, synerrors.GetCode(err))
}

func TestBlobStore_Delete_Idempotent(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = b.Save("docs", "doc-1", ".md", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, b.Delete("docs", "doc-1", ".md"))
	require.NoError(t, b.Delete("docs", "doc-1", ".md"))

	_, err = b.Open("docs", "doc-1", ".md")
	assert.Equal(t, synerrors.CodeNotFound, synerrors.GetCode(err))
}

func TestBlobStore_DeleteCollection_RemovesDirectory(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = b.Save("docs", "doc-1", ".md", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = b.Save("docs", "doc-2", ".md", strings.NewReader("y"))
	require.NoError(t, err)

	require.NoError(t, b.DeleteCollection("docs"))

	_, err = os.Stat(filepath.Join(b.Root(), "docs"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidateID(t *testing.T) {
	assert.True(t, ValidateID("flutter-docs"))
	assert.True(t, ValidateID("doc_123"))
	assert.False(t, ValidateID(""))
	assert.False(t, ValidateID("a b"))
	assert.False(t, ValidateID("a/b"))
	assert.False(t, ValidateID("a."))
}
