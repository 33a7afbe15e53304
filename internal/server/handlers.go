package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/synthesis-kb/synthesis/internal/errors"
	"github.com/synthesis-kb/synthesis/internal/ingest"
	"github.com/synthesis-kb/synthesis/internal/search"
	"github.com/synthesis-kb/synthesis/internal/store"
	"github.com/synthesis-kb/synthesis/internal/synthesis"
)

// ---- ingestion ----

type ingestItem struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		s.writeError(w, r, errors.NotFound("endpoint", "ingest"))
		return
	}

	// Per-file caps are enforced inside Submit; this bounds the whole
	// request body.
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes*4)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, r, errors.Wrap(err, errors.CodeInvalidInput, "invalid multipart request"))
		return
	}

	collectionID := r.FormValue("collection_id")
	if collectionID == "" {
		s.writeError(w, r, errors.InvalidInput("collection_id is required"))
		return
	}
	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		files = r.MultipartForm.File["files"]
	}
	if len(files) == 0 {
		s.writeError(w, r, errors.InvalidInput("at least one file is required"))
		return
	}

	items := make([]ingestItem, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.CodeInvalidInput, "unreadable upload"))
			return
		}

		doc, err := s.ingestor.Submit(r.Context(), ingest.Submission{
			CollectionID: collectionID,
			FileName:     fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			Content:      f,
		})
		_ = f.Close()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items = append(items, ingestItem{
			DocumentID: doc.ID,
			FileName:   doc.FileName,
			Status:     string(doc.Status),
		})
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{"documents": items})
}

// ---- collections ----

type createCollectionRequest struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.storage.ListCollections(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"collections": cols})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, errors.InvalidInput("name is required"))
		return
	}

	c := &store.Collection{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Metadata: req.Metadata,
	}
	if err := s.storage.CreateCollection(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.storage.DeleteCollection(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// ---- documents ----

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	collectionID := r.URL.Query().Get("collection_id")
	if collectionID == "" {
		s.writeError(w, r, errors.InvalidInput("collection_id query parameter is required"))
		return
	}
	docs, err := s.storage.ListDocuments(r.Context(), collectionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Lexical entries and the original file go first; both are
	// recoverable if the document row deletion fails afterwards.
	if s.lexical != nil {
		chunks, err := s.storage.GetChunksByDocument(r.Context(), id)
		if err == nil {
			ids := make([]int64, len(chunks))
			for i, c := range chunks {
				ids[i] = c.ID
			}
			if err := s.lexical.DeleteChunks(r.Context(), ids); err != nil {
				s.log.Warn("failed to remove document from lexical index", "document_id", id, "error", err)
			}
		}
	}
	if s.blobs != nil {
		if err := s.blobs.Delete(doc.CollectionID, doc.ID, doc.Extension); err != nil {
			s.log.Warn("failed to remove document file", "document_id", id, "error", err)
		}
	}

	if err := s.storage.DeleteDocument(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleRelatedFiles(w http.ResponseWriter, r *http.Request) {
	if s.relations == nil {
		s.writeError(w, r, errors.NotFound("endpoint", "related-files"))
		return
	}
	id := chi.URLParam(r, "id")

	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	related, err := s.relations.Related(r.Context(), doc.CollectionID, doc.FileName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"file_path":     doc.FileName,
		"related_files": related,
	})
}

// ---- search ----

type searchRequest struct {
	Query         string   `json:"query"`
	CollectionID  string   `json:"collection_id"`
	TopK          int      `json:"top_k,omitempty"`
	SearchMode    string   `json:"search_mode,omitempty"`
	Rerank        bool     `json:"rerank,omitempty"`
	TrustLevels   []string `json:"trust_levels,omitempty"`
	MinTrustScore float64  `json:"min_trust_score,omitempty"`
	VectorWeight  float64  `json:"vector_weight,omitempty"`
	BM25Weight    float64  `json:"bm25_weight,omitempty"`
}

type searchMetadata struct {
	Mode          string `json:"mode"`
	VectorResults int    `json:"vector_results"`
	BM25Results   int    `json:"bm25_results"`
	LatencyMS     int64  `json:"latency_ms"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.SearchTimeout)
	defer cancel()

	sreq := &search.Request{
		CollectionID: req.CollectionID,
		Query:        req.Query,
		Mode:         req.SearchMode,
		TopK:         req.TopK,
		Rerank:       req.Rerank,
		VectorWeight: req.VectorWeight,
		BM25Weight:   req.BM25Weight,
	}
	if len(req.TrustLevels) > 0 || req.MinTrustScore > 0 {
		f := &search.Filter{MinTrustScore: req.MinTrustScore}
		for _, level := range req.TrustLevels {
			f.SourceQuality = append(f.SourceQuality, store.SourceQuality(level))
		}
		sreq.Filter = f
	}

	resp, err := s.searcher.Search(ctx, sreq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"results":       resp.Results,
		"degraded":      resp.Degraded,
		"fallback_used": resp.FallbackUsed,
		"search_metadata": searchMetadata{
			Mode:          resp.Mode,
			VectorResults: resp.VectorResults,
			BM25Results:   resp.LexicalResults,
			LatencyMS:     resp.TookMS,
		},
	})
}

// ---- synthesis ----

func (s *Server) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	if s.synth == nil || !s.synth.Enabled() {
		s.writeError(w, r, errors.New(errors.CodeNotFound, "synthesis is disabled", nil))
		return
	}

	var req synthesis.Request
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.synth.Compare(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ---- costs ----

func (s *Server) handleCostsSummary(w http.ResponseWriter, r *http.Request) {
	if s.costs == nil {
		s.writeError(w, r, errors.NotFound("endpoint", "costs"))
		return
	}
	summary, err := s.costs.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCostsHistory(w http.ResponseWriter, r *http.Request) {
	if s.costs == nil {
		s.writeError(w, r, errors.NotFound("endpoint", "costs"))
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	history, err := s.costs.History(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleCostsAlerts(w http.ResponseWriter, r *http.Request) {
	if s.costs == nil {
		s.writeError(w, r, errors.NotFound("endpoint", "costs"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.costs.Alerts(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if s.costs == nil {
		s.writeError(w, r, errors.NotFound("endpoint", "costs"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, errors.InvalidInput("alert id must be numeric"))
		return
	}
	if err := s.costs.Acknowledge(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"acknowledged": id})
}

// ---- health ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		checks = s.health(ctx)
	}

	status := "ok"
	code := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = "degraded"
		}
	}
	s.writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
