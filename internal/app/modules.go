// Package app wires every component into an fx.App, grouped into modules
// by concern the way the teacher's server/modules.go does (infrastructure,
// clients, services, HTTP server), generalized from a single RagServer
// struct into the filing-tree pipeline's distinct stages.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/cache"
	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/embedding"
	"github.com/hsn0918/filingtree/internal/extractor"
	"github.com/hsn0918/filingtree/internal/httpapi"
	"github.com/hsn0918/filingtree/internal/ingest"
	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/prompts"
	"github.com/hsn0918/filingtree/internal/retrieval"
	"github.com/hsn0918/filingtree/internal/store"
	"github.com/hsn0918/filingtree/internal/tokenizer"
	"github.com/hsn0918/filingtree/internal/tree"
)

// Module is the complete application: every concern module plus the
// startup invocation.
var Module = fx.Options(
	InfrastructureModule,
	ClientsModule,
	ServicesModule,
	HTTPServerModule,
	fx.Invoke(StartHTTPServer),
)

// InfrastructureModule provides config, logging, the durable store, the
// blob store, and the embedding cache.
var InfrastructureModule = fx.Module("infrastructure",
	fx.Provide(
		NewAppConfig,
		NewAppLogger,
		NewStore,
		NewBlobStore,
		NewCache,
	),
)

// ClientsModule provides the LLM, embedding, extractor, and tokenizer
// adapters — the filing-tree analogue of the teacher's ExternalClients.
var ClientsModule = fx.Module("clients",
	fx.Provide(
		NewLLMAdapter,
		NewEmbeddingAdapter,
		NewExtractor,
		NewTokenizer,
		NewPromptManager,
	),
)

// ServicesModule provides the Tree Builder/Enricher/Chunker, the Ingest
// Orchestrator, and every Retrieval Orchestrator engine.
var ServicesModule = fx.Module("services",
	fx.Provide(
		NewTreeBuilder,
		NewEnricher,
		NewChunker,
		NewIngestOrchestrator,
		NewDecomposer,
		NewSelector,
		NewValueSearch,
		NewLLMSearch,
		NewAnswerGenerator,
		NewRetrievalOrchestrator,
	),
)

// HTTPServerModule provides the httpapi.Server and the *http.Server.
var HTTPServerModule = fx.Module("http_server",
	fx.Provide(
		NewHTTPAPIServer,
		NewHTTPServer,
	),
)

// NewAppConfig loads configuration from the working directory and the
// environment.
func NewAppConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	return cfg, nil
}

// NewAppLogger initializes the process-wide structured logger.
func NewAppLogger() (*zap.Logger, error) {
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}
	return logger.Get(), nil
}

// NewStore opens the Postgres-backed document/tree/chunk store.
func NewStore(lc fx.Lifecycle, cfg *config.Config) (*store.Store, error) {
	s, err := store.New(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			s.Close()
			return nil
		},
	})
	return s, nil
}

// NewBlobStore opens the MinIO-backed object store for uploaded PDF bytes.
func NewBlobStore(cfg *config.Config) (*store.BlobStore, error) {
	b, err := store.NewBlobStore(context.Background(), cfg.MinIO, cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("app: open blob store: %w", err)
	}
	return b, nil
}

// NewCache opens the rueidis-backed cache used by the embedding adapter,
// the LLM shape-result layer, and the per-(sub-question,doc) search cache.
func NewCache(cfg *config.Config) (*cache.Cache, error) {
	c, err := cache.New(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("app: open cache: %w", err)
	}
	return c, nil
}

// NewLLMAdapter constructs the LLM Adapter, wired to the shared cache so
// identical rendered prompts never re-call the model.
func NewLLMAdapter(cfg *config.Config, c *cache.Cache) *llm.Adapter {
	return llm.New(cfg.LLM).WithCache(c)
}

// NewEmbeddingAdapter constructs the Embedding Adapter, wired to the
// shared cache so repeated chunk/query text never re-embeds.
func NewEmbeddingAdapter(cfg *config.Config, c *cache.Cache) *embedding.Adapter {
	return embedding.New(cfg.Embedding).WithCache(c)
}

// NewExtractor constructs the external PDF-to-text extraction adapter.
func NewExtractor(cfg *config.Config) *extractor.Extractor {
	return extractor.New(cfg.Extractor)
}

// NewTokenizer constructs the Tokenizer Adapter.
func NewTokenizer() (*tokenizer.Tokenizer, error) {
	return tokenizer.New()
}

// NewPromptManager constructs the prompt template registry.
func NewPromptManager() *prompts.Manager {
	return prompts.NewManager()
}

// NewTreeBuilder constructs the Tree Builder.
func NewTreeBuilder(llmAdapter *llm.Adapter, tok *tokenizer.Tokenizer, pm *prompts.Manager, cfg *config.Config) *tree.Builder {
	return tree.NewBuilder(llmAdapter, tok, pm, cfg.Tree)
}

// NewEnricher constructs the Node Enricher.
func NewEnricher(llmAdapter *llm.Adapter, pm *prompts.Manager, cfg *config.Config) *tree.Enricher {
	return tree.NewEnricher(llmAdapter, pm, cfg.Tree)
}

// NewChunker constructs the Chunker.
func NewChunker(tok *tokenizer.Tokenizer, cfg *config.Config) *tree.Chunker {
	return tree.NewChunker(tok, cfg.Chunking)
}

// NewIngestOrchestrator constructs the Ingest Orchestrator.
func NewIngestOrchestrator(
	blobs *store.BlobStore,
	db *store.Store,
	ext *extractor.Extractor,
	builder *tree.Builder,
	enricher *tree.Enricher,
	chunker *tree.Chunker,
	embedder *embedding.Adapter,
	cfg *config.Config,
) *ingest.Orchestrator {
	return ingest.New(blobs, db, ext, builder, enricher, chunker, embedder, cfg.Embedding.BatchSize)
}

// NewDecomposer constructs the query decomposer.
func NewDecomposer(llmAdapter *llm.Adapter, pm *prompts.Manager) *retrieval.Decomposer {
	return retrieval.NewDecomposer(llmAdapter, pm)
}

// NewSelector constructs the document candidate selector.
func NewSelector(db *store.Store) *retrieval.Selector {
	return retrieval.NewSelector(db)
}

// NewValueSearch constructs the Value-Search Engine.
func NewValueSearch(embedder *embedding.Adapter, db *store.Store, cfg *config.Config) *retrieval.ValueSearch {
	return retrieval.NewValueSearch(embedder, db, cfg.Retrieval.ValueSearchTopK)
}

// NewLLMSearch constructs the LLM-Search Engine.
func NewLLMSearch(llmAdapter *llm.Adapter, pm *prompts.Manager) *retrieval.LLMSearch {
	return retrieval.NewLLMSearch(llmAdapter, pm)
}

// NewAnswerGenerator constructs the Answer Generator.
func NewAnswerGenerator(llmAdapter *llm.Adapter, pm *prompts.Manager, tok *tokenizer.Tokenizer, cfg *config.Config) *retrieval.Generator {
	return retrieval.NewGenerator(llmAdapter, pm, tok, cfg.Retrieval.ContextBudgetTokens)
}

// NewRetrievalOrchestrator constructs the Retrieval Orchestrator, wired to
// the shared cache so a repeated sub-question against a document skips
// re-running Value Search and LLM Search.
func NewRetrievalOrchestrator(
	decomposer *retrieval.Decomposer,
	selector *retrieval.Selector,
	valueSearch *retrieval.ValueSearch,
	llmSearch *retrieval.LLMSearch,
	generator *retrieval.Generator,
	db *store.Store,
	c *cache.Cache,
	cfg *config.Config,
) *retrieval.Orchestrator {
	return retrieval.NewOrchestrator(decomposer, selector, valueSearch, llmSearch, generator, db, cfg.Retrieval.RetrievalConcurrency).WithCache(c)
}

// NewHTTPAPIServer constructs the httpapi.Server.
func NewHTTPAPIServer(ing *ingest.Orchestrator, ret *retrieval.Orchestrator, db *store.Store, blobs *store.BlobStore) *httpapi.Server {
	return httpapi.New(ing, ret, db, blobs)
}

// NewHTTPServer assembles the *http.Server ready for ListenAndServe.
func NewHTTPServer(s *httpapi.Server, cfg *config.Config) *http.Server {
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	return httpapi.NewHTTPServer(addr, s)
}

// StartHTTPServer registers the HTTP listener's fx lifecycle hooks,
// matching the teacher's modules.go StartHTTPServer.
func StartHTTPServer(httpServer *http.Server, lc fx.Lifecycle, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Get().Info("starting http server", zap.String("addr", httpServer.Addr))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Get().Error("http server failed", zap.Error(err))
					if shutdownErr := shutdowner.Shutdown(); shutdownErr != nil {
						logger.Get().Error("application shutdown failed", zap.Error(shutdownErr))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Get().Info("stopping http server")
			return httpServer.Shutdown(ctx)
		},
	})
}
