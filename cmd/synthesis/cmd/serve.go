package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/chunk"
	"github.com/synthesis-kb/synthesis/internal/config"
	"github.com/synthesis-kb/synthesis/internal/costs"
	"github.com/synthesis-kb/synthesis/internal/embed"
	"github.com/synthesis-kb/synthesis/internal/extract"
	"github.com/synthesis-kb/synthesis/internal/ingest"
	"github.com/synthesis-kb/synthesis/internal/llm"
	"github.com/synthesis-kb/synthesis/internal/logging"
	"github.com/synthesis-kb/synthesis/internal/preflight"
	"github.com/synthesis-kb/synthesis/internal/relation"
	"github.com/synthesis-kb/synthesis/internal/search"
	"github.com/synthesis-kb/synthesis/internal/server"
	"github.com/synthesis-kb/synthesis/internal/store"
	"github.com/synthesis-kb/synthesis/internal/synthesis"
)

func newServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		skipCheck bool
		offline   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Synthesis API server",
		Long: `Start the HTTP API server: ingestion, search, synthesis, and cost
endpoints. Configuration is read from ~/.config/synthesis/config.yaml,
.synthesis.yaml in the working directory, and environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			return runServe(ctx, cfg, skipCheck, offline)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip network checks during preflight")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, skipCheck, offline bool) error {
	logger, logCleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Server.LogLevel,
		FilePath:      logging.DefaultLogPath(),
		WriteToStderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCleanup()
	slog.SetDefault(logger)

	dataDir := filepath.Dir(cfg.Storage.DatabasePath)

	// One serving process per data directory. A second instance sharing
	// the SQLite file and blob root would corrupt the lexical index.
	lock := ingest.NewDirLock(dataDir)
	acquired, err := lock.TryAcquire()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another synthesis instance holds %s (lock: %s)", dataDir, lock.Path())
	}
	defer func() { _ = lock.Release() }()

	checker := preflight.New(preflight.Config{
		StorageRoot:  cfg.Storage.Root,
		DatabasePath: cfg.Storage.DatabasePath,
		OllamaHost:   cfg.Embeddings.OllamaHost,
		Offline:      offline,
	})
	if !skipCheck {
		results := checker.RunAll(ctx)
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return fmt.Errorf("system check failed")
		}
		if err := preflight.MarkPassed(dataDir); err != nil {
			logger.Debug("failed to write preflight marker", "error", err)
		}
	}

	s, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = s.Close() }()

	blobs, err := store.NewBlobStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to open blob storage: %w", err)
	}

	lexical, err := store.OpenLexicalIndex(cfg.Search.LexicalBackend, dataDir, s)
	if err != nil {
		return fmt.Errorf("failed to open lexical index: %w", err)
	}
	defer func() {
		if c, ok := lexical.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}()

	tracker := costs.NewTracker(s, costs.Config{
		MonthlyBudgetUSD: decimal.NewFromFloat(cfg.Budget.MonthlyUSD),
	})
	defer func() { _ = tracker.Close() }()

	providerTimeout := parseDuration(cfg.Embeddings.ProviderTimeout, 30*time.Second)
	router, err := embed.NewRouterFromConfig(embed.RouterConfig{
		OllamaHost:      cfg.Embeddings.OllamaHost,
		OllamaModel:     cfg.Embeddings.OllamaModel,
		OpenAIKey:       cfg.Embeddings.OpenAIKey,
		OpenAIModel:     cfg.Embeddings.OpenAIModel,
		VoyageKey:       cfg.Embeddings.VoyageKey,
		VoyageModel:     cfg.Embeddings.VoyageModel,
		CodeProvider:    cfg.Embeddings.CodeProvider,
		WritingProvider: cfg.Embeddings.WritingProvider,
		DocProvider:     cfg.Embeddings.DocumentationProvider,
		CacheSize:       cfg.Embeddings.CacheSize,
		Timeout:         providerTimeout,
	}, tracker, tracker)
	if err != nil {
		return fmt.Errorf("failed to build embedding router: %w", err)
	}

	reranker := buildReranker(cfg, providerTimeout, tracker, logger)

	searcher := search.New(s, lexical, router, reranker, search.Options{
		Mode:           cfg.Search.Mode,
		RRFConstant:    cfg.Search.RRFConstant,
		VectorWeight:   cfg.Search.VectorWeight,
		BM25Weight:     cfg.Search.BM25Weight,
		CandidateLimit: cfg.Search.CandidateLimit,
		MaxResults:     cfg.Search.MaxResults,
	}, logger)

	synth := synthesis.New(searcher, s, router, buildChatClient(cfg, tracker), tracker, synthesis.Options{
		Enabled:                cfg.Synthesis.Enabled,
		ContradictionDetection: cfg.Synthesis.ContradictionDetection,
		MinSimilarity:          cfg.Synthesis.MinSimilarity,
		MaxSimilarity:          cfg.Synthesis.MaxSimilarity,
		MaxCandidates:          cfg.Synthesis.MaxCandidates,
	}, logger)

	splitter := chunk.NewSplitter(chunk.Options{
		MaxTokens:         cfg.Chunking.MaxTokens,
		OverlapTokens:     cfg.Chunking.OverlapTokens,
		CodeChunking:      cfg.Chunking.CodeChunking,
		PreserveImports:   cfg.Chunking.PreserveImports,
		CodeMaxChunkLines: cfg.Chunking.CodeMaxChunkLines,
	}, logger)

	maxUploadBytes := int64(cfg.Storage.MaxUploadMB) << 20

	ingestor := ingest.New(s, blobs, lexical, extract.New(logger), splitter, router,
		relation.NewDeriver(s), ingest.Options{
			EmbedConcurrency: cfg.Embeddings.Concurrency,
			Timeout:          parseDuration(cfg.Server.IngestTimeout, 10*time.Minute),
			MaxUploadBytes:   maxUploadBytes,
		}, logger)
	defer ingestor.Close()

	srv := server.New(server.Deps{
		Storage:   s,
		Lexical:   lexical,
		Blobs:     blobs,
		Ingestor:  ingestor,
		Searcher:  searcher,
		Synth:     synth,
		Costs:     tracker,
		Relations: relation.NewQuery(s),
		Health: func(ctx context.Context) map[string]string {
			return preflight.HealthMap(checker.RunAll(ctx))
		},
	}, server.Options{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		SearchTimeout:  parseDuration(cfg.Server.SearchTimeout, 5*time.Second),
		MaxUploadBytes: maxUploadBytes,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildReranker honours the configured provider: cohere, local, none,
// or empty for auto (cohere when a key is present, local otherwise).
func buildReranker(cfg *config.Config, timeout time.Duration, tracker *costs.Tracker, log *slog.Logger) search.Reranker {
	local := search.NewLocalReranker(func() (embed.Embedder, error) {
		return embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:    cfg.Embeddings.OllamaHost,
			Model:   cfg.Embeddings.OllamaModel,
			Timeout: timeout,
		}), nil
	})

	switch cfg.Reranker.Provider {
	case "none":
		return nil
	case "local":
		return search.NewChain(log, local)
	case "cohere":
		return search.NewChain(log, gatedCohere(cfg, tracker), local)
	default:
		if cfg.Reranker.CohereKey != "" {
			return search.NewChain(log, gatedCohere(cfg, tracker), local)
		}
		return search.NewChain(log, local)
	}
}

// gatedCohere builds the paid reranker behind the budget gate, so an
// active fallback forces the chain onto the local provider.
func gatedCohere(cfg *config.Config, tracker *costs.Tracker) search.Reranker {
	return search.Gated(
		search.NewCohereReranker(cfg.Reranker.CohereKey, tracker,
			search.WithCohereModel(cfg.Reranker.Model)),
		tracker)
}

// buildChatClient selects the synthesis verdict model host.
func buildChatClient(cfg *config.Config, tracker *costs.Tracker) llm.Client {
	timeout := parseDuration(cfg.Synthesis.LLMTimeout, llm.DefaultTimeout)
	if cfg.Synthesis.LLMProvider == "openai" {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.Embeddings.OpenAIKey,
			Model:   cfg.Synthesis.LLMModel,
			Timeout: timeout,
		}, tracker)
	}
	return llm.NewOllamaClient(llm.OllamaConfig{
		Host:    cfg.Embeddings.OllamaHost,
		Model:   cfg.Synthesis.LLMModel,
		Timeout: timeout,
	}, tracker)
}
