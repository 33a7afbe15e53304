// Package server exposes the HTTP API: ingestion, collections,
// documents, search, synthesis, and cost reporting.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/synthesis-kb/synthesis/internal/costs"
	"github.com/synthesis-kb/synthesis/internal/ingest"
	"github.com/synthesis-kb/synthesis/internal/relation"
	"github.com/synthesis-kb/synthesis/internal/search"
	"github.com/synthesis-kb/synthesis/internal/store"
	"github.com/synthesis-kb/synthesis/internal/synthesis"
)

// Storage is the persistence surface the handlers read and write.
type Storage interface {
	CreateCollection(ctx context.Context, c *store.Collection) error
	GetCollection(ctx context.Context, id string) (*store.Collection, error)
	ListCollections(ctx context.Context) ([]*store.Collection, error)
	DeleteCollection(ctx context.Context, id string) error

	ListDocuments(ctx context.Context, collectionID string) ([]*store.Document, error)
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	GetChunksByDocument(ctx context.Context, docID string) ([]*store.Chunk, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Searcher runs one search request.
type Searcher interface {
	Search(ctx context.Context, req *search.Request) (*search.Response, error)
}

// Synthesizer runs one comparison request.
type Synthesizer interface {
	Enabled() bool
	Compare(ctx context.Context, req *synthesis.Request) (*synthesis.Response, error)
}

// Ingestor accepts file submissions.
type Ingestor interface {
	Submit(ctx context.Context, sub ingest.Submission) (*store.Document, error)
}

// CostReporter serves the cost endpoints.
type CostReporter interface {
	Summary(ctx context.Context) (*costs.Summary, error)
	History(ctx context.Context, days int) ([]store.DailySpend, error)
	Alerts(ctx context.Context, limit int) ([]*store.BudgetAlert, error)
	Acknowledge(ctx context.Context, id int64) error
}

// RelationQuerier answers related-files lookups.
type RelationQuerier interface {
	Related(ctx context.Context, collectionID, filePath string) (*relation.Related, error)
}

// Blobs removes original files when documents are deleted. Optional.
type Blobs interface {
	Delete(collectionID, documentID, ext string) error
}

// HealthFunc reports component statuses for GET /health.
type HealthFunc func(ctx context.Context) map[string]string

// Options configures the HTTP server.
type Options struct {
	Host           string
	Port           int
	SearchTimeout  time.Duration
	MaxUploadBytes int64
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 5 * time.Second
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = ingest.DefaultMaxUploadBytes
	}
	return o
}

// Server wires the API surface onto a chi router.
type Server struct {
	storage   Storage
	lexical   store.LexicalIndex
	blobs     Blobs
	ingestor  Ingestor
	searcher  Searcher
	synth     Synthesizer
	costs     CostReporter
	relations RelationQuerier
	health    HealthFunc
	opts      Options
	log       *slog.Logger

	http *http.Server
}

// Deps carries the server's collaborators. Nil fields disable the
// corresponding endpoints with NOT_FOUND.
type Deps struct {
	Storage   Storage
	Lexical   store.LexicalIndex
	Blobs     Blobs
	Ingestor  Ingestor
	Searcher  Searcher
	Synth     Synthesizer
	Costs     CostReporter
	Relations RelationQuerier
	Health    HealthFunc
}

// New builds the server and its router.
func New(deps Deps, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		storage:   deps.Storage,
		lexical:   deps.Lexical,
		blobs:     deps.Blobs,
		ingestor:  deps.Ingestor,
		searcher:  deps.Searcher,
		synth:     deps.Synth,
		costs:     deps.Costs,
		relations: deps.Relations,
		health:    deps.Health,
		opts:      opts.withDefaults(),
		log:       log,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi handler tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Post("/ingest", s.handleIngest)

	r.Get("/collections", s.handleListCollections)
	r.Post("/collections", s.handleCreateCollection)
	r.Delete("/collections/{id}", s.handleDeleteCollection)

	r.Get("/documents", s.handleListDocuments)
	r.Delete("/documents/{id}", s.handleDeleteDocument)
	r.Get("/documents/{id}/related-files", s.handleRelatedFiles)

	r.Post("/search", s.handleSearch)
	r.Post("/synthesis/compare", s.handleSynthesis)

	r.Get("/costs/summary", s.handleCostsSummary)
	r.Get("/costs/history", s.handleCostsHistory)
	r.Get("/costs/alerts", s.handleCostsAlerts)
	r.Post("/costs/alerts/{id}/ack", s.handleAcknowledgeAlert)

	r.Get("/health", s.handleHealth)
	return r
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }
