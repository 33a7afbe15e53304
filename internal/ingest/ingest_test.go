package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-kb/synthesis/internal/chunk"
	"github.com/synthesis-kb/synthesis/internal/embed"
	"github.com/synthesis-kb/synthesis/internal/errors"
	"github.com/synthesis-kb/synthesis/internal/extract"
	"github.com/synthesis-kb/synthesis/internal/relation"
	"github.com/synthesis-kb/synthesis/internal/store"
)

type memStore struct {
	mu          sync.Mutex
	collections map[string]*store.Collection
	docs        map[string]*store.Document
	chunks      map[string][]*store.Chunk
	rels        []*store.Relationship
}

func newMemStore(collectionIDs ...string) *memStore {
	m := &memStore{
		collections: make(map[string]*store.Collection),
		docs:        make(map[string]*store.Document),
		chunks:      make(map[string][]*store.Chunk),
	}
	for _, id := range collectionIDs {
		m.collections[id] = &store.Collection{ID: id, Name: id}
	}
	return m
}

func (m *memStore) GetCollection(_ context.Context, id string) (*store.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok {
		return nil, errors.NotFound("collection", id)
	}
	return c, nil
}

func (m *memStore) CreateDocument(_ context.Context, d *store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memStore) GetDocument(_ context.Context, id string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, errors.NotFound("document", id)
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) UpdateDocumentStatus(_ context.Context, id string, status store.DocumentStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return errors.NotFound("document", id)
	}
	d.Status = status
	d.StatusMessage = message
	return nil
}

func (m *memStore) CompleteDocument(_ context.Context, docID string, chunks []*store.Chunk, meta store.DocumentMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return errors.NotFound("document", docID)
	}
	for i, c := range chunks {
		c.ID = int64(i + 1)
	}
	m.chunks[docID] = chunks
	d.Status = store.StatusComplete
	d.StatusMessage = ""
	d.Meta = meta
	d.ChunkCount = len(chunks)
	return nil
}

func (m *memStore) UpsertRelationships(_ context.Context, rels []*store.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels = append(m.rels, rels...)
	return nil
}

func (m *memStore) ListRelationships(_ context.Context, _, _ string) ([]*store.Relationship, error) {
	return nil, nil
}

func (m *memStore) ListDocumentPaths(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (m *memStore) status(id string) (store.DocumentStatus, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return "", ""
	}
	return d.Status, d.StatusMessage
}

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{files: make(map[string][]byte)} }

func blobKey(collectionID, documentID, ext string) string {
	return collectionID + "/" + documentID + ext
}

func (m *memBlobs) Save(collectionID, documentID, ext string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[blobKey(collectionID, documentID, ext)] = data
	return int64(len(data)), nil
}

func (m *memBlobs) ReadAll(collectionID, documentID, ext string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[blobKey(collectionID, documentID, ext)]
	if !ok {
		return nil, errors.NotFound("file", documentID)
	}
	return data, nil
}

func (m *memBlobs) Delete(collectionID, documentID, ext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, blobKey(collectionID, documentID, ext))
	return nil
}

type memLexical struct {
	mu        sync.Mutex
	indexed   []int64
	deleted   []int64
	indexErr  error
	deleteErr error
}

func (m *memLexical) IndexChunks(_ context.Context, chunks []*store.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return m.indexErr
	}
	for _, c := range chunks {
		m.indexed = append(m.indexed, c.ID)
	}
	return nil
}

func (m *memLexical) LexicalSearch(_ context.Context, _, _ string, _ int) ([]store.LexicalResult, error) {
	return nil, nil
}

func (m *memLexical) DeleteChunks(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ids...)
	return m.deleteErr
}

type failingEmbedder struct{ *embed.StaticEmbedder }

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding host down")
}

func ingestRouter(e embed.Embedder) *embed.Router {
	return embed.NewRouter(
		map[string]embed.Embedder{"static": e},
		map[embed.ContentKind]string{
			embed.KindCode:          "static",
			embed.KindWriting:       "static",
			embed.KindDocumentation: "static",
		},
		nil, nil,
	)
}

type fixture struct {
	store   *memStore
	blobs   *memBlobs
	lexical *memLexical
	orch    *Orchestrator
}

func newFixture(t *testing.T, opts Options, embedder embed.Embedder) *fixture {
	t.Helper()
	if embedder == nil {
		embedder = embed.NewStaticEmbedder()
	}
	s := newMemStore("c1")
	f := &fixture{store: s, blobs: newMemBlobs(), lexical: &memLexical{}}
	f.orch = New(s, f.blobs, f.lexical,
		extract.New(nil),
		chunk.NewSplitter(chunk.Options{CodeChunking: true, PreserveImports: true}, nil),
		ingestRouter(embedder),
		relation.NewDeriver(s),
		opts, nil)
	t.Cleanup(f.orch.Close)
	return f
}

func (f *fixture) waitFor(t *testing.T, docID string, want store.DocumentStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, _ := f.store.status(docID)
		return got == want
	}, 5*time.Second, 10*time.Millisecond, "document never reached %s", want)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	_, err := f.orch.Submit(ctx, Submission{FileName: "a.md", Content: strings.NewReader("x")})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	_, err = f.orch.Submit(ctx, Submission{CollectionID: "c1", Content: strings.NewReader("x")})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	_, err = f.orch.Submit(ctx, Submission{CollectionID: "c1", FileName: "binary.exe", Content: strings.NewReader("x")})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	_, err = f.orch.Submit(ctx, Submission{CollectionID: "nope", FileName: "a.md", Content: strings.NewReader("x")})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = f.orch.Submit(ctx, Submission{CollectionID: "c1", FileName: "a.md", Content: strings.NewReader("")})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestSubmit_PayloadTooLarge(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 10}, nil)

	_, err := f.orch.Submit(context.Background(), Submission{
		CollectionID: "c1", FileName: "big.md",
		Content: strings.NewReader(strings.Repeat("a", 100)),
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePayloadTooLarge))

	f.blobs.mu.Lock()
	defer f.blobs.mu.Unlock()
	assert.Empty(t, f.blobs.files, "oversized blob must be removed")
}

func TestPipeline_MarkdownEndToEnd(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	doc, err := f.orch.Submit(context.Background(), Submission{
		CollectionID: "c1",
		FileName:     "guide.md",
		ContentType:  "text/markdown",
		SourceURL:    "https://docs.flutter.dev/state",
		Content:      strings.NewReader("# State\n\nUse providers to share state between widgets.\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, doc.Status)

	f.waitFor(t, doc.ID, store.StatusComplete)

	final, err := f.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.QualityOfficial, final.Meta.SourceQuality)
	assert.Equal(t, "static", final.Meta.EmbeddingProvider)
	assert.NotZero(t, final.Meta.EmbeddingDimensions)
	assert.Equal(t, final.ChunkCount, len(f.store.chunks[doc.ID]))

	for _, c := range f.store.chunks[doc.ID] {
		assert.NotEmpty(t, c.Embedding)
		assert.Equal(t, "static", c.Model)
	}

	f.lexical.mu.Lock()
	defer f.lexical.mu.Unlock()
	assert.Len(t, f.lexical.indexed, final.ChunkCount)
}

func TestPipeline_DartFileDerivesRelationships(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	src := `import 'package:http/http.dart';
import '../models/user.dart';

class AuthService {
  Future<void> login() async {}
}
`
	doc, err := f.orch.Submit(context.Background(), Submission{
		CollectionID: "c1",
		FileName:     "lib/services/auth_service.dart",
		Content:      strings.NewReader(src),
	})
	require.NoError(t, err)
	f.waitFor(t, doc.ID, store.StatusComplete)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	require.NotEmpty(t, f.store.rels, "AST ingestion must write relationship edges")

	targets := make([]string, 0, len(f.store.rels))
	for _, r := range f.store.rels {
		if r.Type == store.RelationImport {
			targets = append(targets, r.TargetPath)
		}
	}
	assert.Contains(t, targets, "package:http/http.dart")
	assert.Contains(t, targets, "lib/models/user.dart")
}

func TestPipeline_EmbeddingFailureAbandonsBatch(t *testing.T) {
	f := newFixture(t, Options{}, &failingEmbedder{embed.NewStaticEmbedder()})

	doc, err := f.orch.Submit(context.Background(), Submission{
		CollectionID: "c1", FileName: "a.md",
		Content: strings.NewReader("some markdown content"),
	})
	require.NoError(t, err)

	f.waitFor(t, doc.ID, store.StatusError)
	_, msg := f.store.status(doc.ID)
	assert.Contains(t, msg, "embedding host down")

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Empty(t, f.store.chunks[doc.ID], "no chunks may persist after an embedding failure")
}

func TestPipeline_LexicalFailureRollsBack(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.lexical.indexErr = fmt.Errorf("fts write failed")

	doc, err := f.orch.Submit(context.Background(), Submission{
		CollectionID: "c1", FileName: "a.md",
		Content: strings.NewReader("some markdown content"),
	})
	require.NoError(t, err)

	f.waitFor(t, doc.ID, store.StatusError)

	f.lexical.mu.Lock()
	defer f.lexical.mu.Unlock()
	assert.NotEmpty(t, f.lexical.deleted, "persisted chunks must be removed from the lexical index")
}

func TestSubmit_AfterClose(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.orch.Close()

	_, err := f.orch.Submit(context.Background(), Submission{
		CollectionID: "c1", FileName: "a.md", Content: strings.NewReader("x"),
	})
	require.Error(t, err)
}
