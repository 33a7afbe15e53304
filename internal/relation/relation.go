// Package relation derives file relationship edges from AST-chunked source
// files and answers related-file queries.
package relation

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/synthesis-kb/synthesis/internal/chunk"
	"github.com/synthesis-kb/synthesis/internal/store"
)

// Store is the slice of the storage gateway relations need.
type Store interface {
	UpsertRelationships(ctx context.Context, rels []*store.Relationship) error
	ListRelationships(ctx context.Context, collectionID, path string) ([]*store.Relationship, error)
	ListDocumentPaths(ctx context.Context, collectionID string) ([]string, error)
}

// Related groups the edges touching one file, split by direction.
type Related struct {
	Imports    []string `json:"imports"`
	ImportedBy []string `json:"imported_by"`
	Uses       []string `json:"uses"`
	UsedBy     []string `json:"used_by"`
	Tests      []string `json:"tests"`
	TestedBy   []string `json:"tested_by"`
	Siblings   []string `json:"siblings"`
	Parent     []string `json:"parent"`
}

// Deriver extracts edges during ingestion.
type Deriver struct {
	store Store
}

func NewDeriver(s Store) *Deriver {
	return &Deriver{store: s}
}

// DeriveAndStore computes a file's edges from its parsed structure plus the
// collection's known paths, and upserts them. knownPaths feeds usage and
// sibling detection; passing the current snapshot is enough, idempotent
// upserts converge as more files arrive.
func (d *Deriver) DeriveAndStore(ctx context.Context, collectionID string, pf *chunk.ParsedFile) error {
	known, err := d.store.ListDocumentPaths(ctx, collectionID)
	if err != nil {
		return err
	}
	rels := Derive(collectionID, pf, known)
	if len(rels) == 0 {
		return nil
	}
	return d.store.UpsertRelationships(ctx, rels)
}

// Derive computes edges without touching storage.
func Derive(collectionID string, pf *chunk.ParsedFile, knownPaths []string) []*store.Relationship {
	var rels []*store.Relationship
	add := func(target string, t store.RelationType) {
		if target == "" || target == pf.Path {
			return
		}
		rels = append(rels, &store.Relationship{
			CollectionID: collectionID,
			SourcePath:   pf.Path,
			TargetPath:   target,
			Type:         t,
		})
	}

	for _, imp := range pf.Imports {
		add(resolveImport(pf.Path, imp.Target), store.RelationImport)
	}
	for _, part := range pf.Parts {
		// A part file is a child of this library.
		add(resolveImport(pf.Path, part), store.RelationParent)
	}
	// `part of some.library.name` names a library, not a file; only path
	// form resolves to a parent edge.
	if strings.HasSuffix(pf.PartOf, ".dart") {
		// `part of 'lib.dart'` points at the parent library.
		if target := resolveImport(pf.Path, pf.PartOf); target != "" {
			rels = append(rels, &store.Relationship{
				CollectionID: collectionID,
				SourcePath:   target,
				TargetPath:   pf.Path,
				Type:         store.RelationParent,
			})
		}
	}

	if src := testSubject(pf.Path, knownPaths); src != "" {
		add(src, store.RelationTest)
	}

	dir := path.Dir(pf.Path)
	for _, p := range knownPaths {
		if p != pf.Path && path.Dir(p) == dir {
			add(p, store.RelationSibling)
		}
	}

	for _, target := range usageTargets(pf, knownPaths) {
		add(target, store.RelationUsage)
	}
	return rels
}

// resolveImport turns a relative import into a path relative to the project
// root; scheme-qualified targets (package:, dart:) are kept verbatim.
func resolveImport(fromPath, target string) string {
	if strings.Contains(target, ":") {
		return target
	}
	return path.Clean(path.Join(path.Dir(fromPath), target))
}

// testSubject infers the source file a test covers: `x_test.ext` and
// `x.test.ext` map to `x.ext`, with a `test/` root mirrored into `lib/` or
// `src/` when such a file exists.
func testSubject(testPath string, knownPaths []string) string {
	ext := path.Ext(testPath)
	base := strings.TrimSuffix(testPath, ext)

	var stem string
	switch {
	case strings.HasSuffix(base, "_test"):
		stem = strings.TrimSuffix(base, "_test")
	case strings.HasSuffix(base, ".test"):
		stem = strings.TrimSuffix(base, ".test")
	case strings.HasSuffix(base, ".spec"):
		stem = strings.TrimSuffix(base, ".spec")
	default:
		return ""
	}
	candidate := stem + ext

	if containsPath(knownPaths, candidate) {
		return candidate
	}
	for _, root := range []string{"lib/", "src/"} {
		for _, prefix := range []string{"test/", "tests/"} {
			if strings.HasPrefix(candidate, prefix) {
				mirrored := root + strings.TrimPrefix(candidate, prefix)
				if containsPath(knownPaths, mirrored) {
					return mirrored
				}
			}
		}
	}
	return candidate
}

var capitalisedIdent = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]{2,})\b`)

// usageTargets attributes capitalised identifiers referenced in the file's
// code to the known file that plausibly declares them (by snake_case name
// match). Heuristic, so only identifiers resolving to exactly one file
// produce an edge.
func usageTargets(pf *chunk.ParsedFile, knownPaths []string) []string {
	refs := make(map[string]bool)
	collect := func(src string) {
		for _, m := range capitalisedIdent.FindAllStringSubmatch(src, -1) {
			refs[m[1]] = true
		}
	}
	for _, fn := range pf.Functions {
		collect(fn.Source)
	}
	for _, cls := range pf.Classes {
		collect(cls.Source)
		// A file does not "use" the types it declares.
		delete(refs, cls.Name)
	}

	var out []string
	seen := make(map[string]bool)
	for ident := range refs {
		target := ""
		want := toSnake(ident)
		for _, p := range knownPaths {
			if p == pf.Path {
				continue
			}
			name := strings.TrimSuffix(path.Base(p), path.Ext(p))
			if name == want || strings.EqualFold(name, ident) {
				if target != "" && target != p {
					target = "" // ambiguous
					break
				}
				target = p
			}
		}
		if target != "" && !seen[target] {
			seen[target] = true
			out = append(out, target)
		}
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func containsPath(paths []string, p string) bool {
	for _, x := range paths {
		if x == p {
			return true
		}
	}
	return false
}

// Query answers related-file lookups.
type Query struct {
	store Store
}

func NewQuery(s Store) *Query {
	return &Query{store: s}
}

// Related returns the file's edges grouped by type and direction.
func (q *Query) Related(ctx context.Context, collectionID, filePath string) (*Related, error) {
	rels, err := q.store.ListRelationships(ctx, collectionID, filePath)
	if err != nil {
		return nil, err
	}

	out := &Related{}
	for _, r := range rels {
		outbound := r.SourcePath == filePath
		other := r.TargetPath
		if !outbound {
			other = r.SourcePath
		}
		switch r.Type {
		case store.RelationImport:
			if outbound {
				out.Imports = append(out.Imports, other)
			} else {
				out.ImportedBy = append(out.ImportedBy, other)
			}
		case store.RelationUsage:
			if outbound {
				out.Uses = append(out.Uses, other)
			} else {
				out.UsedBy = append(out.UsedBy, other)
			}
		case store.RelationTest:
			if outbound {
				out.Tests = append(out.Tests, other)
			} else {
				out.TestedBy = append(out.TestedBy, other)
			}
		case store.RelationSibling:
			out.Siblings = append(out.Siblings, other)
		case store.RelationParent:
			out.Parent = append(out.Parent, other)
		}
	}
	return out, nil
}
