// Package ingest runs the document pipeline: extract, chunk, embed,
// persist. Submissions return as soon as the document is queued; a
// bounded worker pool drives each document through the status machine.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/synthesis-kb/synthesis/internal/chunk"
	"github.com/synthesis-kb/synthesis/internal/embed"
	"github.com/synthesis-kb/synthesis/internal/errors"
	"github.com/synthesis-kb/synthesis/internal/extract"
	"github.com/synthesis-kb/synthesis/internal/metadata"
	"github.com/synthesis-kb/synthesis/internal/relation"
	"github.com/synthesis-kb/synthesis/internal/store"
)

const (
	// DefaultWorkers is the pipeline worker count.
	DefaultWorkers = 2
	// DefaultEmbedConcurrency bounds parallel embedding calls per document.
	DefaultEmbedConcurrency = 4
	// DefaultTimeout bounds one document's whole pipeline run.
	DefaultTimeout = 10 * time.Minute
	// DefaultMaxUploadBytes caps one submission.
	DefaultMaxUploadBytes = 100 << 20

	queueDepth = 64
)

// Store is the persistence surface the pipeline writes through.
type Store interface {
	GetCollection(ctx context.Context, id string) (*store.Collection, error)
	CreateDocument(ctx context.Context, d *store.Document) error
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status store.DocumentStatus, message string) error
	CompleteDocument(ctx context.Context, docID string, chunks []*store.Chunk, meta store.DocumentMeta) error
}

// Blobs is the original-file storage surface.
type Blobs interface {
	Save(collectionID, documentID, ext string, r io.Reader) (int64, error)
	ReadAll(collectionID, documentID, ext string) ([]byte, error)
	Delete(collectionID, documentID, ext string) error
}

// Options configures the orchestrator.
type Options struct {
	Workers          int
	EmbedConcurrency int
	Timeout          time.Duration
	MaxUploadBytes   int64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.EmbedConcurrency <= 0 {
		o.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return o
}

// Submission is one file handed to Submit.
type Submission struct {
	CollectionID string
	FileName     string
	ContentType  string
	Content      io.Reader

	// SourceURL records where the file came from, when fetched.
	SourceURL string
	// Quality overrides URL-derived source quality when set.
	Quality store.SourceQuality
	// Framework and FrameworkVersion tag the document when known.
	Framework        string
	FrameworkVersion string
}

type job struct {
	docID     string
	sub       Submission
	extension string
}

// Orchestrator owns the worker pool and the per-document pipeline.
type Orchestrator struct {
	store     Store
	blobs     Blobs
	lexical   store.LexicalIndex
	extractor *extract.Extractor
	splitter  chunk.Splitter
	router    *embed.Router
	deriver   *relation.Deriver // nil disables relationship edges
	opts      Options
	log       *slog.Logger

	queue  chan job
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New builds an orchestrator and starts its workers. deriver may be nil.
func New(s Store, blobs Blobs, lexical store.LexicalIndex, extractor *extract.Extractor, splitter chunk.Splitter, router *embed.Router, deriver *relation.Deriver, opts Options, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:     s,
		blobs:     blobs,
		lexical:   lexical,
		extractor: extractor,
		splitter:  splitter,
		router:    router,
		deriver:   deriver,
		opts:      opts.withDefaults(),
		log:       log,
		queue:     make(chan job, queueDepth),
		cancel:    cancel,
	}

	o.wg.Add(o.opts.Workers)
	for i := 0; i < o.opts.Workers; i++ {
		go o.worker(ctx)
	}
	return o
}

// Submit validates the file, stores the original, creates the document
// in pending state, and queues it for processing. It returns as soon as
// the document is queued; progress is visible through document status.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*store.Document, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, errors.Internal("ingestion is shut down", nil)
	}
	o.mu.Unlock()

	if sub.CollectionID == "" {
		return nil, errors.InvalidInput("collection_id is required")
	}
	if sub.FileName == "" {
		return nil, errors.InvalidInput("file name is required")
	}
	if !extract.Supported(sub.ContentType, sub.FileName) {
		return nil, errors.InvalidInput("unsupported file type").
			WithDetail("file_name", sub.FileName).
			WithDetail("content_type", sub.ContentType).
			WithSuggestion("supported types: pdf, docx, markdown, html, plain text, source code")
	}

	coll, err := o.store.GetCollection(ctx, sub.CollectionID)
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(sub.FileName))

	// The cap is enforced while streaming: one extra byte past the
	// limit rejects the upload.
	n, err := o.blobs.Save(coll.ID, docID, ext, io.LimitReader(sub.Content, o.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if n > o.opts.MaxUploadBytes {
		_ = o.blobs.Delete(coll.ID, docID, ext)
		return nil, errors.PayloadTooLarge("file exceeds the upload size limit")
	}
	if n == 0 {
		_ = o.blobs.Delete(coll.ID, docID, ext)
		return nil, errors.InvalidInput("file is empty")
	}

	doc := &store.Document{
		ID:           docID,
		CollectionID: coll.ID,
		FileName:     sub.FileName,
		Extension:    ext,
		ContentType:  sub.ContentType,
		SizeBytes:    n,
		Status:       store.StatusPending,
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		_ = o.blobs.Delete(coll.ID, docID, ext)
		return nil, err
	}

	select {
	case o.queue <- job{docID: docID, sub: sub, extension: ext}:
	case <-ctx.Done():
		o.failDocument(docID, "cancelled")
		return nil, ctx.Err()
	}
	return doc, nil
}

// Close stops accepting submissions, cancels in-flight pipelines, and
// waits for the workers. Queued documents are marked with an error.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	close(o.queue)
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for j := range o.queue {
		if ctx.Err() != nil {
			o.failDocument(j.docID, "cancelled")
			continue
		}
		o.run(ctx, j)
	}
}

// run drives one document through the pipeline and records the outcome.
func (o *Orchestrator) run(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := o.process(ctx, j)
	switch {
	case err == nil:
		o.log.Info("document ingested",
			"document_id", j.docID,
			"file", j.sub.FileName,
			"took", time.Since(start))
	case ctx.Err() != nil:
		o.failDocument(j.docID, "cancelled")
	default:
		o.log.Warn("ingestion failed",
			"document_id", j.docID,
			"file", j.sub.FileName,
			"error", err)
		o.failDocument(j.docID, err.Error())
	}
}

func (o *Orchestrator) process(ctx context.Context, j job) error {
	coll, err := o.store.GetCollection(ctx, j.sub.CollectionID)
	if err != nil {
		return err
	}

	// extract
	if err := o.store.UpdateDocumentStatus(ctx, j.docID, store.StatusExtracting, ""); err != nil {
		return err
	}
	data, err := o.blobs.ReadAll(coll.ID, j.docID, j.extension)
	if err != nil {
		return err
	}
	kind := extract.KindFor(j.sub.ContentType, j.sub.FileName)
	text, err := o.extractor.Extract(ctx, kind, j.sub.FileName, data)
	if err != nil {
		return err
	}

	// chunk
	if err := o.store.UpdateDocumentStatus(ctx, j.docID, store.StatusChunking, ""); err != nil {
		return err
	}
	res, err := o.splitter.Split(ctx, &chunk.FileInput{Path: j.sub.FileName, Content: []byte(text)})
	if err != nil {
		return err
	}
	if len(res.Chunks) == 0 {
		return errors.InvalidInput("document produced no chunks")
	}

	chunks := make([]*store.Chunk, len(res.Chunks))
	for i, c := range res.Chunks {
		chunks[i] = &store.Chunk{
			DocumentID:   j.docID,
			CollectionID: coll.ID,
			ChunkIndex:   i,
			Content:      c.Content,
			Language:     c.Language,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			Metadata:     c.Metadata,
		}
	}

	// embed
	if err := o.store.UpdateDocumentStatus(ctx, j.docID, store.StatusEmbedding, ""); err != nil {
		return err
	}
	sel, err := o.router.Pick(ctx, embed.RouteOptions{
		Kind:     embed.ClassifyContent(j.sub.FileName, text),
		Override: coll.Metadata[store.CollectionKeyEmbeddingProvider],
	})
	if err != nil {
		return err
	}
	if err := o.embedChunks(ctx, sel.Embedder, chunks); err != nil {
		// No partial batches: either every chunk gets a vector or the
		// document fails.
		return err
	}

	// persist
	meta := o.buildMeta(j.sub, sel)
	if err := o.store.CompleteDocument(ctx, j.docID, chunks, meta); err != nil {
		return err
	}

	if err := o.lexical.IndexChunks(ctx, chunks); err != nil {
		ids := make([]int64, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		_ = o.lexical.DeleteChunks(ctx, ids)
		return errors.Wrap(err, errors.CodeInternal, "lexical indexing failed")
	}

	if res.Parsed != nil && o.deriver != nil {
		if err := o.deriver.DeriveAndStore(ctx, coll.ID, res.Parsed); err != nil {
			o.log.Warn("failed to derive file relationships",
				"document_id", j.docID, "file", j.sub.FileName, "error", err)
		}
	}
	return nil
}

// embedChunks fans the chunks out over the embedder with bounded
// concurrency. Indices are fixed up front so results can never land on
// the wrong chunk.
func (o *Orchestrator) embedChunks(ctx context.Context, embedder embed.Embedder, chunks []*store.Chunk) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.EmbedConcurrency)

	model := embedder.ModelName()
	for i := range chunks {
		g.Go(func() error {
			vec, err := embedder.Embed(ctx, chunks[i].Content)
			if err != nil {
				return err
			}
			chunks[i].Embedding = vec
			chunks[i].Model = model
			return nil
		})
	}
	return g.Wait()
}

// buildMeta derives the document metadata from the submission and the
// selected embedding route.
func (o *Orchestrator) buildMeta(sub Submission, sel *embed.Selection) store.DocumentMeta {
	b := metadata.NewBuilder().
		WithFilePath(sub.FileName).
		WithEmbedding(sel.Provider, sel.Embedder.ModelName(), sel.Embedder.Dimensions()).
		WithLastVerified(time.Now().UTC())
	if sub.SourceURL != "" {
		b.WithSourceURL(sub.SourceURL)
	}
	if sub.Quality != "" {
		b.WithSourceQuality(sub.Quality)
	}
	if sub.Framework != "" {
		b.WithFramework(sub.Framework, sub.FrameworkVersion)
	}
	return b.Build()
}

// failDocument marks a document errored outside the (possibly dead)
// pipeline context.
func (o *Orchestrator) failDocument(docID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.UpdateDocumentStatus(ctx, docID, store.StatusError, message); err != nil {
		o.log.Error("failed to record document error",
			"document_id", docID, "error", err)
	}
}
