package relation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-kb/synthesis/internal/chunk"
	"github.com/synthesis-kb/synthesis/internal/store"
)

type fakeStore struct {
	rels  []*store.Relationship
	paths []string
}

func (f *fakeStore) UpsertRelationships(_ context.Context, rels []*store.Relationship) error {
	f.rels = append(f.rels, rels...)
	return nil
}

func (f *fakeStore) ListRelationships(_ context.Context, collectionID, path string) ([]*store.Relationship, error) {
	var out []*store.Relationship
	for _, r := range f.rels {
		if r.CollectionID == collectionID && (r.SourcePath == path || r.TargetPath == path) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDocumentPaths(_ context.Context, _ string) ([]string, error) {
	return f.paths, nil
}

func edges(rels []*store.Relationship, t store.RelationType) map[string]string {
	out := make(map[string]string)
	for _, r := range rels {
		if r.Type == t {
			out[r.SourcePath] = r.TargetPath
		}
	}
	return out
}

func TestDerive_ImportEdgesResolveRelativePaths(t *testing.T) {
	pf := &chunk.ParsedFile{
		Path:     "lib/services/auth.dart",
		Language: "dart",
		Imports: []chunk.Import{
			{Target: "package:http/http.dart", Line: 1},
			{Target: "../models/user.dart", Line: 2},
		},
	}

	rels := Derive("c1", pf, nil)
	imports := edges(rels, store.RelationImport)
	targets := make([]string, 0, 2)
	for _, r := range rels {
		if r.Type == store.RelationImport {
			targets = append(targets, r.TargetPath)
		}
	}
	require.Len(t, imports, 1, "map keyed by source collapses to one entry")
	assert.Contains(t, targets, "package:http/http.dart")
	assert.Contains(t, targets, "lib/models/user.dart")
}

func TestDerive_TestEdge(t *testing.T) {
	pf := &chunk.ParsedFile{Path: "test/services/auth_test.dart", Language: "dart"}
	known := []string{"lib/services/auth.dart", "test/services/auth_test.dart"}

	rels := Derive("c1", pf, known)
	tests := edges(rels, store.RelationTest)
	assert.Equal(t, "lib/services/auth.dart", tests["test/services/auth_test.dart"])
}

func TestDerive_SiblingEdges(t *testing.T) {
	pf := &chunk.ParsedFile{Path: "lib/services/auth.dart", Language: "dart"}
	known := []string{
		"lib/services/auth.dart",
		"lib/services/profile.dart",
		"lib/models/user.dart",
	}

	rels := Derive("c1", pf, known)
	var siblings []string
	for _, r := range rels {
		if r.Type == store.RelationSibling {
			siblings = append(siblings, r.TargetPath)
		}
	}
	assert.Equal(t, []string{"lib/services/profile.dart"}, siblings)
}

func TestDerive_PartDirectives(t *testing.T) {
	lib := &chunk.ParsedFile{
		Path:     "lib/services/auth.dart",
		Language: "dart",
		Parts:    []string{"auth_helpers.dart"},
	}
	rels := Derive("c1", lib, nil)
	parents := edges(rels, store.RelationParent)
	assert.Equal(t, "lib/services/auth_helpers.dart", parents["lib/services/auth.dart"])

	part := &chunk.ParsedFile{
		Path:     "lib/services/auth_helpers.dart",
		Language: "dart",
		PartOf:   "auth.dart",
	}
	rels = Derive("c1", part, nil)
	parents = edges(rels, store.RelationParent)
	assert.Equal(t, "lib/services/auth_helpers.dart", parents["lib/services/auth.dart"],
		"part-of inverts to the same parent-to-part direction")
}

func TestDerive_UsageEdges(t *testing.T) {
	pf := &chunk.ParsedFile{
		Path:     "lib/services/auth.dart",
		Language: "dart",
		Functions: []chunk.Function{{
			Name:   "login",
			Source: "Future<void> login() async {\n  final u = UserProfile.load();\n}",
		}},
	}
	known := []string{"lib/services/auth.dart", "lib/models/user_profile.dart"}

	rels := Derive("c1", pf, known)
	uses := edges(rels, store.RelationUsage)
	assert.Equal(t, "lib/models/user_profile.dart", uses["lib/services/auth.dart"])
}

func TestDerive_NoSelfEdges(t *testing.T) {
	pf := &chunk.ParsedFile{
		Path:     "lib/a.dart",
		Language: "dart",
		Imports:  []chunk.Import{{Target: "a.dart"}},
	}
	rels := Derive("c1", pf, []string{"lib/a.dart"})
	for _, r := range rels {
		assert.NotEqual(t, r.SourcePath, r.TargetPath)
	}
}

func TestQuery_RelatedGroupsByDirection(t *testing.T) {
	fs := &fakeStore{rels: []*store.Relationship{
		{CollectionID: "c1", SourcePath: "lib/a.dart", TargetPath: "lib/b.dart", Type: store.RelationImport},
		{CollectionID: "c1", SourcePath: "lib/c.dart", TargetPath: "lib/a.dart", Type: store.RelationImport},
		{CollectionID: "c1", SourcePath: "test/a_test.dart", TargetPath: "lib/a.dart", Type: store.RelationTest},
		{CollectionID: "c1", SourcePath: "lib/a.dart", TargetPath: "lib/d.dart", Type: store.RelationSibling},
	}}

	q := NewQuery(fs)
	rel, err := q.Related(context.Background(), "c1", "lib/a.dart")
	require.NoError(t, err)

	assert.Equal(t, []string{"lib/b.dart"}, rel.Imports)
	assert.Equal(t, []string{"lib/c.dart"}, rel.ImportedBy)
	assert.Equal(t, []string{"test/a_test.dart"}, rel.TestedBy)
	assert.Equal(t, []string{"lib/d.dart"}, rel.Siblings)
	assert.Empty(t, rel.Tests)
}

func TestDeriveAndStore_Upserts(t *testing.T) {
	fs := &fakeStore{paths: []string{"lib/a.dart", "lib/b.dart"}}
	d := NewDeriver(fs)

	pf := &chunk.ParsedFile{
		Path:     "lib/a.dart",
		Language: "dart",
		Imports:  []chunk.Import{{Target: "b.dart"}},
	}
	require.NoError(t, d.DeriveAndStore(context.Background(), "c1", pf))
	assert.NotEmpty(t, fs.rels)
}
