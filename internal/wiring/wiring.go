// Package wiring builds the service graph from Settings. The API server and ragctl share it.
package wiring

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/customHttpClient"
	"github.com/akolanti/ResearchAssistant/internal/data/redisStore"
	"github.com/akolanti/ResearchAssistant/internal/data/store"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/job"
	"github.com/akolanti/ResearchAssistant/internal/rag"
	"github.com/akolanti/ResearchAssistant/internal/rag/answer"
	"github.com/akolanti/ResearchAssistant/internal/rag/assembler"
	"github.com/akolanti/ResearchAssistant/internal/rag/chunker"
	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/embedding/googleEmbedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/embedding/openaiEmbedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/extract"
	"github.com/akolanti/ResearchAssistant/internal/rag/ingest"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm/gemini"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm/openaiLLM"
	"github.com/akolanti/ResearchAssistant/internal/rag/retriever"
	"github.com/akolanti/ResearchAssistant/internal/rag/tokens"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB/qdrantDB"
	"github.com/akolanti/ResearchAssistant/internal/worker"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

// App is the assembled service graph.
type App struct {
	Settings  config.Settings
	Jobs      *job.Service
	Documents ingest.Service
	Rag       rag.Service
	DocStore  commonModels.DocumentStore
	Index     vectorDB.Index
	// Probes are the health checks of the external backends in use, keyed by backend.
	Probes map[string]func(ctx context.Context) error

	WorkerStop  chan bool
	WorkerGroup *sync.WaitGroup
	startOnce   sync.Once
}

// Providers lets tests and alternative entry points skip the real model clients.
type Providers struct {
	Embedding embedding.Provider
	LLM       llm.Provider
}

var logger = logger_i.NewLogger("wiring")

// Build connects stores, index and model clients. Closing ctx closes the external clients.
func Build(ctx context.Context, s config.Settings) (*App, error) {
	return BuildWith(ctx, s, Providers{})
}

func BuildWith(ctx context.Context, s config.Settings, p Providers) (*App, error) {
	logger = logger_i.NewLogger("wiring")
	if err := s.Validate(); err != nil {
		return nil, ragErrors.Wrap(ragErrors.KindConfiguration, err, "invalid settings")
	}
	var err error
	if p.Embedding == nil {
		if p.Embedding, err = EmbeddingProvider(ctx, s); err != nil {
			return nil, err
		}
	}
	if p.LLM == nil {
		if p.LLM, err = LLMProvider(ctx, s); err != nil {
			return nil, err
		}
	}

	retryCfg := RetryConfig(s)
	gateway := embedding.NewGateway(p.Embedding, embedding.GatewayConfig{BatchSize: s.EmbedBatchSize, Retry: retryCfg})

	index, err := Index(ctx, s, gateway.Space(), gateway.Dimensions())
	if err != nil {
		return nil, err
	}
	if err := index.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	jobStore, docStore, convStore := Stores(ctx, s)

	content, err := ingest.NewContentStore(s.ContentDir)
	if err != nil {
		return nil, ragErrors.Wrap(ragErrors.KindConfiguration, err, "content dir")
	}

	client := customHttpClient.GetClient()
	extractors := extract.NewRegistry().
		Register(commonModels.SourceText, extract.Text{}).
		Register(commonModels.SourcePDF, extract.NewPDF()).
		Register(commonModels.SourceURL, extract.NewWeb(client, retryCfg)).
		Register(commonModels.SourceYoutube, extract.NewYoutube(client, retryCfg))

	chunks := chunker.New(chunker.WithChunkSize(s.ChunkSize), chunker.WithOverlap(s.ChunkOverlap))
	pipeline := ingest.NewPipeline(docStore, extractors, chunks, gateway, index, content, ingest.PipelineConfig{
		BatchSize:   s.EmbedBatchSize,
		Parallelism: s.EmbedParallelism,
		Retry:       retryCfg,
	})

	jobs := job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.Job, config.BufferLimit),
		DispatcherChannel: make(chan bool, 1),
		JobStore:          jobStore,
	})

	documents := ingest.NewService(docStore, index, pipeline, jobs, content, ingest.ServiceConfig{
		MaxUploadBytes: s.MaxUploadBytes(),
		Retry:          retryCfg,
	})

	ret := retriever.New(gateway, index, docStore, retriever.Options{
		TopKRetrieval:      s.TopKRetrieval,
		TopKContext:        s.TopKContext,
		RelevanceThreshold: s.RelevanceThreshold,
	}, retryCfg)

	ragService := rag.NewService(rag.Dependencies{
		Retriever:     ret,
		Assembler:     assembler.New(tokens.Default()),
		Generator:     answer.NewGenerator(p.LLM, retryCfg),
		Pipeline:      pipeline,
		Conversations: convStore,
		Budget: assembler.Budget{
			MaxContextTokens: s.MaxContextTokens,
			HistoryTokens:    s.HistoryTokenBudget,
			MaxHistoryTurns:  s.MaxHistoryTurns,
		},
	})

	logger.Info("Services ready", "embeddingSpace", gateway.Space(), "llm", p.LLM.Model(),
		"vectorBackend", s.VectorBackend, "storeBackend", s.StoreBackend)

	return &App{
		Settings:    s,
		Jobs:        jobs,
		Documents:   documents,
		Rag:         ragService,
		DocStore:    docStore,
		Index:       index,
		Probes:      probes(jobStore, index),
		WorkerStop:  make(chan bool, 1),
		WorkerGroup: &sync.WaitGroup{},
	}, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// probes collects the backends that can be pinged. In-memory ones have nothing to check.
func probes(jobStore jobModel.JobStore, index vectorDB.Index) map[string]func(ctx context.Context) error {
	out := make(map[string]func(ctx context.Context) error)
	if p, ok := jobStore.(pinger); ok {
		out["redis"] = p.Ping
	}
	if p, ok := index.(pinger); ok {
		out["vector_index"] = p.Ping
	}
	return out
}

// StartWorkers starts the worker pool that drains the job channel. Calling it twice is a no-op.
func (a *App) StartWorkers() {
	a.startOnce.Do(func() {
		worker.InitServices(a.Jobs, a.Rag)
		worker.InitWorkerPool(a.WorkerStop, a.WorkerGroup)
	})
}

// StopWorkers closes the pool and waits for running jobs.
func (a *App) StopWorkers() {
	close(a.WorkerStop)
	a.WorkerGroup.Wait()
}

func RetryConfig(s config.Settings) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = s.RetryMaxAttempts
	cfg.InitialDelay = s.RetryInitialDelay
	cfg.MaxDelay = config.RetryMaxDelay
	cfg.AttemptTimeout = s.CallTimeout
	return cfg
}

func EmbeddingProvider(ctx context.Context, s config.Settings) (embedding.Provider, error) {
	switch strings.ToLower(s.EmbeddingProvider) {
	case "google", "gemini":
		if s.GoogleAPIKey == "" {
			return nil, ragErrors.New(ragErrors.KindConfiguration, "google_api_key is required for the google embedding provider")
		}
		p := googleEmbedding.GetGoogleEmbeddingClient(ctx, s.EmbeddingModel, s.GoogleAPIKey, s.EmbeddingDimensions)
		if p == nil {
			return nil, ragErrors.New(ragErrors.KindConfiguration, "google embedding client could not be created")
		}
		return p, nil
	case "openai":
		if s.OpenAIAPIKey == "" && s.OpenAIBaseURL == "" {
			return nil, ragErrors.New(ragErrors.KindConfiguration, "openai_api_key is required for the openai embedding provider")
		}
		return openaiEmbedding.NewOpenAIEmbedder(s.OpenAIAPIKey, s.OpenAIBaseURL, s.EmbeddingModel, s.EmbeddingDimensions), nil
	default:
		return nil, ragErrors.New(ragErrors.KindConfiguration, fmt.Sprintf("unknown embedding provider %q", s.EmbeddingProvider))
	}
}

func LLMProvider(ctx context.Context, s config.Settings) (llm.Provider, error) {
	switch strings.ToLower(s.LLMProvider) {
	case "google", "gemini":
		if s.GoogleAPIKey == "" {
			return nil, ragErrors.New(ragErrors.KindConfiguration, "google_api_key is required for the google llm provider")
		}
		p := gemini.GetGeminiClient(ctx, gemini.Options{
			APIKey:          s.GoogleAPIKey,
			ModelName:       s.LLMModel,
			Temperature:     s.LLMTemperature,
			MaxOutputTokens: s.LLMMaxOutputTokens,
		})
		if p == nil {
			return nil, ragErrors.New(ragErrors.KindConfiguration, "gemini client could not be created")
		}
		return p, nil
	case "openai":
		if s.OpenAIAPIKey == "" && s.OpenAIBaseURL == "" {
			return nil, ragErrors.New(ragErrors.KindConfiguration, "openai_api_key is required for the openai llm provider")
		}
		model := s.LLMModel
		if model == config.GeminiModelName {
			model = config.OpenAIModelName
		}
		return openaiLLM.NewOpenAIClient(openaiLLM.Options{
			APIKey:          s.OpenAIAPIKey,
			BaseURL:         s.OpenAIBaseURL,
			ModelName:       model,
			Temperature:     s.LLMTemperature,
			MaxOutputTokens: s.LLMMaxOutputTokens,
		}), nil
	default:
		return nil, ragErrors.New(ragErrors.KindConfiguration, fmt.Sprintf("unknown llm provider %q", s.LLMProvider))
	}
}

// Index returns the vector index for an embedding space. The memory backend does not survive a restart.
func Index(ctx context.Context, s config.Settings, space string, dimensions int) (vectorDB.Index, error) {
	switch strings.ToLower(s.VectorBackend) {
	case "memory":
		logger.Warn("Using the in-memory vector index, vectors are lost on restart")
		return memoryDB.NewStorage(dimensions), nil
	case "qdrant", "":
		holder := qdrantDB.GetQuadrantClient(ctx, qdrantDB.Options{
			Host:             s.QdrantHost,
			Port:             s.QdrantPort,
			APIKey:           s.QdrantAPIKey,
			UseTLS:           s.QdrantUseTLS,
			PoolSize:         config.QdrantPoolSize,
			CollectionPrefix: s.QdrantCollection,
			Space:            space,
			Dimensions:       dimensions,
		})
		if holder == nil {
			return nil, ragErrors.New(ragErrors.KindConfiguration, "qdrant client could not be created")
		}
		return holder, nil
	default:
		return nil, ragErrors.New(ragErrors.KindConfiguration, fmt.Sprintf("unknown vector backend %q", s.VectorBackend))
	}
}

// Stores returns redis backed stores, or in-memory ones for the memory backend and when
// redis is offline.
func Stores(ctx context.Context, s config.Settings) (jobModel.JobStore, commonModels.DocumentStore, chatModel.ConversationStore) {
	if !strings.EqualFold(s.StoreBackend, "memory") {
		opts := redisStore.Options{Addr: s.RedisAddr, Password: s.RedisPassword}
		jobs := store.GetRedisJobStore(ctx, opts)
		docs := store.GetRedisDocumentStore(ctx, opts)
		convs := store.GetRedisConversationStore(ctx, opts)
		if jobs != nil && docs != nil && convs != nil {
			return jobs, docs, convs
		}
		logger.Error("Redis stores are offline")
	}
	logger.Warn("Using in-memory stores")
	return store.InitInMemoryJobStore(), store.InitInMemoryDocumentStore(), store.InitConversationStore()
}
