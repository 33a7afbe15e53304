// Package config loads and validates the layered Synthesis configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User/global config (~/.config/synthesis/config.yaml)
//  3. Project config (.synthesis.yaml in the working directory)
//  4. Environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Synthesis configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Synthesis  SynthesisConfig  `yaml:"synthesis" json:"synthesis"`
	Budget     BudgetConfig     `yaml:"budget" json:"budget"`
}

// StorageConfig configures where documents and the database live.
type StorageConfig struct {
	// Root is the directory for uploaded document binaries.
	// Layout: <root>/<collection-id>/<document-id><ext>
	Root string `yaml:"root" json:"root"`
	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path" json:"database_path"`
	// MaxUploadMB caps a single uploaded file (default: 100).
	MaxUploadMB int `yaml:"max_upload_mb" json:"max_upload_mb"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	// IngestTimeout bounds a single document's ingestion pipeline (default: 10m).
	IngestTimeout string `yaml:"ingest_timeout" json:"ingest_timeout"`
	// SearchTimeout bounds a search request end to end (default: 5s).
	SearchTimeout string `yaml:"search_timeout" json:"search_timeout"`
}

// SearchConfig configures retrieval and fusion.
// Weights and the RRF constant are configurable via:
//  1. User config (~/.config/synthesis/config.yaml)
//  2. Project config (.synthesis.yaml)
//  3. Env vars (SEARCH_MODE, HYBRID_VECTOR_WEIGHT, HYBRID_BM25_WEIGHT, HYBRID_RRF_K)
type SearchConfig struct {
	// Mode selects the retrieval strategy: "vector" or "hybrid".
	Mode string `yaml:"mode" json:"mode"`

	// VectorWeight is the RRF weight for the vector leg (0.0-1.0).
	// Must sum to 1.0 with BM25Weight.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// BM25Weight is the RRF weight for the lexical leg (0.0-1.0).
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// RRFConstant is the RRF smoothing parameter k (default: 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// LexicalBackend selects the full-text backend.
	// Options: "sqlite" (default, FTS5 with concurrent access) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// LexicalLanguage selects the analyzer language (default: "en").
	LexicalLanguage string `yaml:"lexical_language" json:"lexical_language"`

	// CandidateLimit is the per-leg top-K fetched before fusion (default: 30).
	CandidateLimit int `yaml:"candidate_limit" json:"candidate_limit"`

	// MaxResults is the default result count returned to callers (default: 10, cap: 50).
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// MaxTokens is the token budget per text chunk (default: 800).
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// OverlapTokens is the overlap between consecutive text chunks (default: 150).
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
	// CodeChunking enables AST-aware chunking for source files (default: true).
	CodeChunking bool `yaml:"code_chunking" json:"code_chunking"`
	// PreserveImports prepends the file's import block to each code chunk (default: true).
	PreserveImports bool `yaml:"preserve_imports" json:"preserve_imports"`
	// CodeMaxChunkLines is the class size above which classes split per-method (default: 100).
	CodeMaxChunkLines int `yaml:"code_max_chunk_lines" json:"code_max_chunk_lines"`
}

// EmbeddingsConfig configures the embedding router and its providers.
type EmbeddingsConfig struct {
	// Route overrides: provider name per content route.
	DocumentationProvider string `yaml:"documentation_provider" json:"documentation_provider"`
	CodeProvider          string `yaml:"code_provider" json:"code_provider"`
	WritingProvider       string `yaml:"writing_provider" json:"writing_provider"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// OllamaModel is the local embedding model (default: nomic-embed-text).
	OllamaModel string `yaml:"ollama_model" json:"ollama_model"`
	// OpenAIModel is the writing-route model (default: text-embedding-3-large).
	OpenAIModel string `yaml:"openai_model" json:"openai_model"`
	// VoyageModel is the code-route model (default: voyage-code-2).
	VoyageModel string `yaml:"voyage_model" json:"voyage_model"`

	// OpenAIKey and VoyageKey are normally supplied via OPENAI_API_KEY and
	// VOYAGE_API_KEY rather than checked into a config file.
	OpenAIKey string `yaml:"openai_key,omitempty" json:"-"`
	VoyageKey string `yaml:"voyage_key,omitempty" json:"-"`

	// Concurrency bounds parallel embedding calls per document (default: 4).
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// ProviderTimeout bounds one provider HTTP call (default: 30s).
	ProviderTimeout string `yaml:"provider_timeout" json:"provider_timeout"`
	// CacheSize is the embedding LRU cache capacity (default: 10000).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// RerankerConfig configures cross-encoder re-ranking.
type RerankerConfig struct {
	// Provider selects the re-ranker: "cohere", "local", "none",
	// or empty for auto (cloud if key present, else local).
	Provider string `yaml:"provider" json:"provider"`
	// Model is the cloud re-rank model (default: rerank-english-v3.0).
	Model string `yaml:"model" json:"model"`
	// CohereKey is normally supplied via COHERE_API_KEY.
	CohereKey string `yaml:"cohere_key,omitempty" json:"-"`
}

// SynthesisConfig configures the synthesis engine.
type SynthesisConfig struct {
	// Enabled toggles the synthesis endpoint (default: true).
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ContradictionDetection toggles pairwise conflict analysis (default: true).
	ContradictionDetection bool `yaml:"contradiction_detection" json:"contradiction_detection"`
	// MinSimilarity is the floor below which approach pairs are unrelated (default: 0.2).
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`
	// MaxSimilarity is the ceiling above which approach pairs agree (default: 0.7).
	MaxSimilarity float64 `yaml:"max_similarity" json:"max_similarity"`
	// MaxCandidates caps results fed into clustering (default: 50).
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`
	// LLMProvider selects the verdict model host: "ollama" or "openai" (default: ollama).
	LLMProvider string `yaml:"llm_provider" json:"llm_provider"`
	// LLMModel is the model used for summaries and conflict verdicts (default: llama3.1:8b).
	LLMModel string `yaml:"llm_model" json:"llm_model"`
	// LLMTimeout bounds one LLM call (default: 30s).
	LLMTimeout string `yaml:"llm_timeout" json:"llm_timeout"`
}

// BudgetConfig configures cost tracking.
type BudgetConfig struct {
	// MonthlyUSD is the monthly spend budget. Zero disables budget alerts.
	MonthlyUSD float64 `yaml:"monthly_usd" json:"monthly_usd"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root:         defaultStorageRoot(),
			DatabasePath: defaultDatabasePath(),
			MaxUploadMB:  100,
		},
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          8080,
			LogLevel:      "info",
			IngestTimeout: "10m",
			SearchTimeout: "5s",
		},
		Search: SearchConfig{
			Mode:         "vector",
			VectorWeight: 0.7,
			BM25Weight:   0.3,
			// RRF constant k=60 is industry standard (Azure AI Search, OpenSearch)
			RRFConstant:     60,
			LexicalBackend:  "sqlite",
			LexicalLanguage: "en",
			CandidateLimit:  30,
			MaxResults:      10,
		},
		Chunking: ChunkingConfig{
			MaxTokens:         800,
			OverlapTokens:     150,
			CodeChunking:      true,
			PreserveImports:   true,
			CodeMaxChunkLines: 100,
		},
		Embeddings: EmbeddingsConfig{
			DocumentationProvider: "ollama",
			CodeProvider:          "voyage",
			WritingProvider:       "openai",
			OllamaHost:            "", // empty uses http://localhost:11434
			OllamaModel:           "nomic-embed-text",
			OpenAIModel:           "text-embedding-3-large",
			VoyageModel:           "voyage-code-2",
			Concurrency:           4,
			ProviderTimeout:       "30s",
			CacheSize:             10000,
		},
		Reranker: RerankerConfig{
			Provider: "", // empty = auto: cohere if key present, else local
			Model:    "rerank-english-v3.0",
		},
		Synthesis: SynthesisConfig{
			Enabled:                true,
			ContradictionDetection: true,
			MinSimilarity:          0.2,
			MaxSimilarity:          0.7,
			MaxCandidates:          50,
			LLMProvider:            "ollama",
			LLMModel:               "llama3.1:8b",
			LLMTimeout:             "30s",
		},
		Budget: BudgetConfig{
			MonthlyUSD: 0, // alerts disabled until a budget is set
		},
	}
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".synthesis", "storage")
	}
	return filepath.Join(home, ".synthesis", "storage")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".synthesis", "synthesis.db")
	}
	return filepath.Join(home, ".synthesis", "synthesis.db")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/synthesis/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/synthesis/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "synthesis", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "synthesis", "config.yaml")
	}
	return filepath.Join(home, ".config", "synthesis", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // no user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load loads configuration from the specified directory, applying
// defaults, user config, project config, and environment overrides in
// increasing precedence, then validates the result.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .synthesis.yaml or .synthesis.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".synthesis.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".synthesis.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, use defaults
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Storage
	if other.Storage.Root != "" {
		c.Storage.Root = other.Storage.Root
	}
	if other.Storage.DatabasePath != "" {
		c.Storage.DatabasePath = other.Storage.DatabasePath
	}
	if other.Storage.MaxUploadMB != 0 {
		c.Storage.MaxUploadMB = other.Storage.MaxUploadMB
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.IngestTimeout != "" {
		c.Server.IngestTimeout = other.Server.IngestTimeout
	}
	if other.Server.SearchTimeout != "" {
		c.Server.SearchTimeout = other.Server.SearchTimeout
	}

	// Search weights and RRF constant
	// Note: 0 is not a practical value for weights, so only non-zero values merge
	if other.Search.Mode != "" {
		c.Search.Mode = other.Search.Mode
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.LexicalBackend != "" {
		c.Search.LexicalBackend = other.Search.LexicalBackend
	}
	if other.Search.LexicalLanguage != "" {
		c.Search.LexicalLanguage = other.Search.LexicalLanguage
	}
	if other.Search.CandidateLimit != 0 {
		c.Search.CandidateLimit = other.Search.CandidateLimit
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Chunking
	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}
	// Booleans can be explicitly false, so only merge when the chunking
	// section was clearly present in the parsed file
	if other.Chunking.MaxTokens != 0 || other.Chunking.CodeMaxChunkLines != 0 {
		c.Chunking.CodeChunking = other.Chunking.CodeChunking
		c.Chunking.PreserveImports = other.Chunking.PreserveImports
	}
	if other.Chunking.CodeMaxChunkLines != 0 {
		c.Chunking.CodeMaxChunkLines = other.Chunking.CodeMaxChunkLines
	}

	// Embeddings
	if other.Embeddings.DocumentationProvider != "" {
		c.Embeddings.DocumentationProvider = other.Embeddings.DocumentationProvider
	}
	if other.Embeddings.CodeProvider != "" {
		c.Embeddings.CodeProvider = other.Embeddings.CodeProvider
	}
	if other.Embeddings.WritingProvider != "" {
		c.Embeddings.WritingProvider = other.Embeddings.WritingProvider
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.OllamaModel != "" {
		c.Embeddings.OllamaModel = other.Embeddings.OllamaModel
	}
	if other.Embeddings.OpenAIModel != "" {
		c.Embeddings.OpenAIModel = other.Embeddings.OpenAIModel
	}
	if other.Embeddings.VoyageModel != "" {
		c.Embeddings.VoyageModel = other.Embeddings.VoyageModel
	}
	if other.Embeddings.OpenAIKey != "" {
		c.Embeddings.OpenAIKey = other.Embeddings.OpenAIKey
	}
	if other.Embeddings.VoyageKey != "" {
		c.Embeddings.VoyageKey = other.Embeddings.VoyageKey
	}
	if other.Embeddings.Concurrency != 0 {
		c.Embeddings.Concurrency = other.Embeddings.Concurrency
	}
	if other.Embeddings.ProviderTimeout != "" {
		c.Embeddings.ProviderTimeout = other.Embeddings.ProviderTimeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// Reranker
	if other.Reranker.Provider != "" {
		c.Reranker.Provider = other.Reranker.Provider
	}
	if other.Reranker.Model != "" {
		c.Reranker.Model = other.Reranker.Model
	}
	if other.Reranker.CohereKey != "" {
		c.Reranker.CohereKey = other.Reranker.CohereKey
	}

	// Synthesis
	// Enabled and ContradictionDetection can be explicitly false, so only
	// merge when the section was clearly present
	if other.Synthesis.MinSimilarity != 0 || other.Synthesis.MaxSimilarity != 0 ||
		other.Synthesis.MaxCandidates != 0 || other.Synthesis.LLMModel != "" {
		c.Synthesis.Enabled = other.Synthesis.Enabled
		c.Synthesis.ContradictionDetection = other.Synthesis.ContradictionDetection
	}
	if other.Synthesis.MinSimilarity != 0 {
		c.Synthesis.MinSimilarity = other.Synthesis.MinSimilarity
	}
	if other.Synthesis.MaxSimilarity != 0 {
		c.Synthesis.MaxSimilarity = other.Synthesis.MaxSimilarity
	}
	if other.Synthesis.MaxCandidates != 0 {
		c.Synthesis.MaxCandidates = other.Synthesis.MaxCandidates
	}
	if other.Synthesis.LLMProvider != "" {
		c.Synthesis.LLMProvider = other.Synthesis.LLMProvider
	}
	if other.Synthesis.LLMModel != "" {
		c.Synthesis.LLMModel = other.Synthesis.LLMModel
	}
	if other.Synthesis.LLMTimeout != "" {
		c.Synthesis.LLMTimeout = other.Synthesis.LLMTimeout
	}

	// Budget
	if other.Budget.MonthlyUSD != 0 {
		c.Budget.MonthlyUSD = other.Budget.MonthlyUSD
	}
}

// applyEnvOverrides applies environment variable overrides.
// These use the flat names the deployment environment expects rather
// than a single prefix.
func (c *Config) applyEnvOverrides() {
	// Storage
	if v := os.Getenv("STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}

	// Server
	if v := os.Getenv("SYNTHESIS_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SYNTHESIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("SYNTHESIS_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}

	// Search (explicit zero weights are valid via env)
	if v := os.Getenv("SEARCH_MODE"); v != "" {
		c.Search.Mode = v
	}
	if v := os.Getenv("HYBRID_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("HYBRID_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("HYBRID_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}

	// Chunking
	if v := os.Getenv("CODE_CHUNKING"); v != "" {
		c.Chunking.CodeChunking = parseBool(v)
	}
	if v := os.Getenv("PRESERVE_IMPORTS"); v != "" {
		c.Chunking.PreserveImports = parseBool(v)
	}
	if v := os.Getenv("CODE_MAX_CHUNK_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.CodeMaxChunkLines = n
		}
	}

	// Embedding routes and providers
	if v := os.Getenv("DOC_EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.DocumentationProvider = v
	}
	if v := os.Getenv("CODE_EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.CodeProvider = v
	}
	if v := os.Getenv("WRITING_EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.WritingProvider = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIKey = v
	}
	if v := os.Getenv("VOYAGE_API_KEY"); v != "" {
		c.Embeddings.VoyageKey = v
	}

	// Reranker
	if v := os.Getenv("RERANKER_PROVIDER"); v != "" {
		c.Reranker.Provider = v
	}
	if v := os.Getenv("COHERE_API_KEY"); v != "" {
		c.Reranker.CohereKey = v
	}

	// Synthesis
	if v := os.Getenv("ENABLE_SYNTHESIS"); v != "" {
		c.Synthesis.Enabled = parseBool(v)
	}
	if v := os.Getenv("ENABLE_CONTRADICTION_DETECTION"); v != "" {
		c.Synthesis.ContradictionDetection = parseBool(v)
	}
	if v := os.Getenv("CONTRADICTION_MIN_SIMILARITY"); v != "" {
		if s, err := parseFloat64(v); err == nil && s >= 0 && s <= 1 {
			c.Synthesis.MinSimilarity = s
		}
	}
	if v := os.Getenv("CONTRADICTION_MAX_SIMILARITY"); v != "" {
		if s, err := parseFloat64(v); err == nil && s >= 0 && s <= 1 {
			c.Synthesis.MaxSimilarity = s
		}
	}

	// Budget
	if v := os.Getenv("MONTHLY_BUDGET_USD"); v != "" {
		if b, err := parseFloat64(v); err == nil && b >= 0 {
			c.Budget.MonthlyUSD = b
		}
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validModes := map[string]bool{"vector": true, "hybrid": true}
	if !validModes[strings.ToLower(c.Search.Mode)] {
		return fmt.Errorf("search.mode must be 'vector' or 'hybrid', got %s", c.Search.Mode)
	}

	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}

	sum := c.Search.VectorWeight + c.Search.BM25Weight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("vector_weight + bm25_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Search.LexicalBackend)] {
		return fmt.Errorf("search.lexical_backend must be 'sqlite' or 'bleve', got %s", c.Search.LexicalBackend)
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.MaxResults > 50 {
		return fmt.Errorf("max_results must be at most 50, got %d", c.Search.MaxResults)
	}

	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must be non-negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be smaller than max_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "voyage": true, "static": true}
	for name, p := range map[string]string{
		"documentation_provider": c.Embeddings.DocumentationProvider,
		"code_provider":          c.Embeddings.CodeProvider,
		"writing_provider":       c.Embeddings.WritingProvider,
	} {
		if p != "" && !validProviders[strings.ToLower(p)] {
			return fmt.Errorf("embeddings.%s must be 'ollama', 'openai', 'voyage', or 'static', got %s", name, p)
		}
	}

	if c.Embeddings.Concurrency <= 0 {
		return fmt.Errorf("embeddings.concurrency must be positive, got %d", c.Embeddings.Concurrency)
	}

	validRerankers := map[string]bool{"": true, "cohere": true, "local": true, "none": true}
	if !validRerankers[strings.ToLower(c.Reranker.Provider)] {
		return fmt.Errorf("reranker.provider must be 'cohere', 'local', 'none', or empty (auto), got %s", c.Reranker.Provider)
	}

	if c.Synthesis.MinSimilarity < 0 || c.Synthesis.MinSimilarity > 1 {
		return fmt.Errorf("synthesis.min_similarity must be between 0 and 1, got %f", c.Synthesis.MinSimilarity)
	}
	if c.Synthesis.MaxSimilarity < 0 || c.Synthesis.MaxSimilarity > 1 {
		return fmt.Errorf("synthesis.max_similarity must be between 0 and 1, got %f", c.Synthesis.MaxSimilarity)
	}
	if c.Synthesis.MinSimilarity >= c.Synthesis.MaxSimilarity {
		return fmt.Errorf("synthesis.min_similarity (%f) must be below max_similarity (%f)",
			c.Synthesis.MinSimilarity, c.Synthesis.MaxSimilarity)
	}

	if c.Budget.MonthlyUSD < 0 {
		return fmt.Errorf("budget.monthly_usd must be non-negative, got %f", c.Budget.MonthlyUSD)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
