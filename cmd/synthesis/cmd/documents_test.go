package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsListCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents", r.URL.Path)
		require.Equal(t, "c1", r.URL.Query().Get("collection_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documents": [
			{"id": "d1", "collection_id": "c1", "file_name": "lib/auth.dart", "status": "completed", "chunk_count": 7},
			{"id": "d2", "collection_id": "c1", "file_name": "README.md", "status": "pending", "chunk_count": 0}
		]}`))
	}))
	defer srv.Close()

	cmd := newDocumentsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"list", "--collection", "c1", "--server", srv.URL})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "lib/auth.dart")
	assert.Contains(t, out, "7 chunks")
	assert.Contains(t, out, "pending")
}

func TestDocumentsListCmd_RequiresCollection(t *testing.T) {
	cmd := newDocumentsCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--collection is required")
}

func TestDocumentsDeleteCmd(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cmd := newDocumentsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"delete", "d1", "--server", srv.URL})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/documents/d1", gotPath)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Contains(t, buf.String(), "deleted document d1")
}

func TestDocumentsRelatedCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents/d1/related-files", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"file_path": "lib/auth.dart",
			"related_files": {
				"imports": ["lib/user.dart"],
				"imported_by": ["lib/main.dart"],
				"uses": [],
				"used_by": [],
				"tests": [],
				"tested_by": ["test/auth_test.dart"],
				"siblings": ["lib/session.dart"],
				"parent": []
			}
		}`))
	}))
	defer srv.Close()

	cmd := newDocumentsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"related", "d1", "--server", srv.URL})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "lib/auth.dart")
	assert.Contains(t, out, "lib/user.dart")
	assert.Contains(t, out, "test/auth_test.dart")
	assert.Contains(t, out, "lib/session.dart")
}

func TestDocumentsRelatedCmd_NoRelationships(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"file_path": "notes.md", "related_files": null}`))
	}))
	defer srv.Close()

	cmd := newDocumentsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"related", "d2", "--server", srv.URL})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no relationships recorded")
}
