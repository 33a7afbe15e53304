// Package store is the persistence layer: collection/document/chunk
// metadata in SQLite, full-text search (FTS5 or Bleve), per-collection
// HNSW vector indexes, and document binaries on disk.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusExtracting DocumentStatus = "extracting"
	StatusChunking   DocumentStatus = "chunking"
	StatusEmbedding  DocumentStatus = "embedding"
	StatusComplete   DocumentStatus = "complete"
	StatusError      DocumentStatus = "error"
)

// SourceQuality grades where a document came from.
type SourceQuality string

const (
	QualityOfficial  SourceQuality = "official"
	QualityVerified  SourceQuality = "verified"
	QualityCommunity SourceQuality = "community"
	QualityUnknown   SourceQuality = "unknown"
)

// Collection groups documents that are searched together.
type Collection struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Collection metadata keys recognised by the embedding router and
// hybrid search. Values override the global configuration.
const (
	CollectionKeyEmbeddingProvider = "embedding_provider"
	CollectionKeyEmbeddingModel    = "embedding_model"
	CollectionKeyVectorWeight      = "vector_weight"
	CollectionKeyBM25Weight        = "bm25_weight"
	CollectionKeyRRFConstant       = "rrf_constant"
)

// DocumentMeta is the structured metadata attached to a document.
// Built by the metadata builder, consumed by trust weighting and synthesis.
type DocumentMeta struct {
	SourceURL        string        `json:"source_url,omitempty"`
	SourceQuality    SourceQuality `json:"source_quality,omitempty"`
	Language         string        `json:"language,omitempty"`
	DocType          string        `json:"doc_type,omitempty"`
	Framework        string        `json:"framework,omitempty"`
	FrameworkVersion string        `json:"framework_version,omitempty"`
	LastVerified     *time.Time    `json:"last_verified,omitempty"`
	Stars            int           `json:"stars,omitempty"`
	Tags             []string      `json:"tags,omitempty"`

	// Embedding triple selected for this document's route.
	EmbeddingProvider   string `json:"embedding_provider,omitempty"`
	EmbeddingModel      string `json:"embedding_model,omitempty"`
	EmbeddingDimensions int    `json:"embedding_dimensions,omitempty"`

	// Extra carries caller-supplied keys outside the typed set.
	Extra map[string]string `json:"extra,omitempty"`
}

// Document is one ingested file within a collection.
type Document struct {
	ID            string         `json:"id"`
	CollectionID  string         `json:"collection_id"`
	FileName      string         `json:"file_name"`
	Extension     string         `json:"extension"`
	ContentType   string         `json:"content_type"`
	SizeBytes     int64          `json:"size_bytes"`
	Status        DocumentStatus `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	Meta          DocumentMeta   `json:"metadata"`
	ChunkCount    int            `json:"chunk_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Chunk is one retrievable unit of a document. IDs are database rowids;
// ChunkIndex is the zero-based position within the parent document.
type Chunk struct {
	ID           int64             `json:"id"`
	DocumentID   string            `json:"document_id"`
	CollectionID string            `json:"collection_id"`
	ChunkIndex   int               `json:"chunk_index"`
	Content      string            `json:"content"`
	Language     string            `json:"language,omitempty"`
	StartLine    int               `json:"start_line,omitempty"`
	EndLine      int               `json:"end_line,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Embedding    []float32         `json:"-"`
	Model        string            `json:"model,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RelationType classifies an edge between two files.
type RelationType string

const (
	RelationImport  RelationType = "import"
	RelationUsage   RelationType = "usage"
	RelationTest    RelationType = "test"
	RelationSibling RelationType = "sibling"
	RelationParent  RelationType = "parent"
)

// Relationship is a directed edge between files in a collection.
type Relationship struct {
	ID           int64        `json:"id"`
	CollectionID string       `json:"collection_id"`
	SourcePath   string       `json:"source_path"`
	TargetPath   string       `json:"target_path"`
	Type         RelationType `json:"type"`
	CreatedAt    time.Time    `json:"created_at"`
}

// UsageRecord is one billable provider call.
type UsageRecord struct {
	ID           int64           `json:"id"`
	Provider     string          `json:"provider"`
	Operation    string          `json:"operation"`
	Model        string          `json:"model,omitempty"`
	Tokens       int64           `json:"tokens"`
	Requests     int             `json:"requests"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	CollectionID string          `json:"collection_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AlertKind is the budget alert severity.
type AlertKind string

const (
	AlertWarning      AlertKind = "warning"
	AlertLimitReached AlertKind = "limit_reached"
)

// BudgetAlert is a persisted budget threshold crossing.
type BudgetAlert struct {
	ID           int64     `json:"id"`
	Kind         AlertKind `json:"kind"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

// SpendBreakdown aggregates usage by provider and operation.
type SpendBreakdown struct {
	Provider       string          `json:"provider"`
	Operation      string          `json:"operation"`
	Requests       int             `json:"requests"`
	Tokens         int64           `json:"tokens"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	MeanPerRequest decimal.Decimal `json:"mean_cost_per_request"`
}

// DailySpend is one day's total.
type DailySpend struct {
	Date  string          `json:"date"` // YYYY-MM-DD
	Total decimal.Decimal `json:"total"`
}

// LexicalResult is one hit from ranked keyword search.
// Score is normalised to [0,1] by dividing by the top score.
type LexicalResult struct {
	ChunkID int64
	Score   float64
}

// VectorResult is one hit from ANN search.
// Score is cosine similarity normalised to [0,1].
type VectorResult struct {
	ChunkID int64
	Score   float32
}

// LexicalIndex is ranked keyword retrieval over a collection's chunks.
// The SQLite gateway implements it with FTS5; Bleve is the alternative
// backend selected by configuration.
type LexicalIndex interface {
	IndexChunks(ctx context.Context, chunks []*Chunk) error
	LexicalSearch(ctx context.Context, collectionID, query string, topK int) ([]LexicalResult, error)
	DeleteChunks(ctx context.Context, chunkIDs []int64) error
}

// marshalJSON encodes v, mapping nil maps to the empty object so the
// column never stores SQL NULL.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}
