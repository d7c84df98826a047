package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kineticlabs/battintel/internal/config"
	"github.com/kineticlabs/battintel/internal/core"
	db "github.com/kineticlabs/battintel/internal/core/database"
	"github.com/kineticlabs/battintel/internal/core/ingestion_engine"
	"github.com/kineticlabs/battintel/internal/core/llm"
	objectclient "github.com/kineticlabs/battintel/internal/core/object-client"
	"github.com/kineticlabs/battintel/internal/rag"
)

type App struct {
	Store        core.Store
	ObjectClient core.ObjectClient
	Embedder     *llm.CachedEmbedder
	Pipeline     *ingestion_engine.Pipeline
	Server       *Server

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	embedder, closeEmbedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}
	cached := llm.NewCachedEmbedder(embedder)

	store, err := db.NewDatabaseClient(appCtx, cfg, cached.Dimensions())
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	var objClient core.ObjectClient
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		objClient = s3Client
		log.Println("Object client initialized and ready.")
	} else {
		log.Println("AWS credentials not set, uploads are kept local only.")
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.GeminiAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("initialize llm: %w", err)
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)
	chunker := ingestion_engine.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize)
	pipeline := ingestion_engine.NewPipeline(
		store, cached, extractor, chunker,
		cfg.DocsDir, cfg.IngestWorkers,
		time.Duration(cfg.IngestTimeoutSeconds)*time.Second,
	)

	retriever := rag.NewRetriever(store, cached, cfg.TopK, cfg.SimilarityThreshold)
	orchestrator := rag.NewOrchestrator(retriever, llmProvider)
	conversations := rag.NewConversationManager(store)

	server := NewServer(cfg, store, objClient, pipeline, orchestrator, conversations)

	return &App{
		Store:        store,
		ObjectClient: objClient,
		Embedder:     cached,
		Pipeline:     pipeline,
		Server:       server,
		closers:      []func() error{store.Close, llmProvider.Close, closeEmbedder},
	}, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, func() error, error) {
	noop := func() error { return nil }

	switch cfg.EmbeddingProvider {
	case "gemini":
		emb, err := llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return nil, nil, err
		}
		return emb, emb.Close, nil
	case "openai":
		emb, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.EmbedDim,
		})
		if err != nil {
			return nil, nil, err
		}
		return emb, noop, nil
	case "ollama":
		return llm.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedDim), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func (a *App) Close() {
	for _, closeFn := range a.closers {
		_ = closeFn()
	}
}
