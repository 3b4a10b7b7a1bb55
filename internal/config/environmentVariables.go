package config

import (
	"log/slog"
	"time"
)

const (
	LOG_LEVEL_PROD                  = slog.LevelInfo
	FALLBACK_REDIS_TO_INTERNALSTORE = true //if redis init fails, it falls back to an internals in-memory store
	TRACE_ID_KEY                    = "traceId"
	TRACE_ID_HEADER                 = "X-Trace-Id"
	RATE_LIMIT_PER_SECOND           = 2
	BURST_RATE_LIMIT_PER_SECOND     = 5
	RateLimiterIdleTTL              = 10 * time.Minute

	RequestsPerNewWorkerCount int64 = 10
	MaxWorkerCount            int64 = 10
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 1 * time.Minute

	//per job hard limits, the pipeline has its own per call timeouts below these
	IngestJobTimeout = 10 * time.Minute
	QueryJobTimeout  = 90 * time.Second

	//serverTimeouts
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 120 * time.Second //streaming answers hold the connection
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second
	HealthProbeTimeout     = 2 * time.Second

	//server listening port
	ServerListenAddr = ":3000"

	//job requests buffer limit
	BufferLimit = 100

	//vectorDB
	QdrantConnectionTimeout = 30 * time.Second
	QdrantHost              = "localhost"
	QdrantGrpcPort          = 6334
	QdrantUseTLS            = false
	QdrantPoolSize          = 1 //2-5 is preferred for prod according to documentation
	QdrantCollectionPrefix  = "research_chunks"

	//embeddings
	GoogleEmbeddingModel          = "text-embedding-004"
	EmbeddingOutputDimensionality = 768
	EmbeddingBatchSize            = 100
	EmbeddingParallelism          = 4

	//llm
	GeminiModelName          = "gemini-2.0-flash"
	OpenAIModelName          = "gpt-4o-mini"
	ModelTemperature float32 = 0.7
	ModelMaxOutputTokens     = 8192

	//chunking and retrieval
	ChunkSize          = 800
	ChunkOverlap       = 100
	TopKRetrieval      = 10
	TopKContext        = 5
	// RetrievalMaxCandidates bounds how far the retriever widens a query past vectors of
	// documents that are not completed.
	RetrievalMaxCandidates = 1000
	RelevanceThreshold = 0.3
	MaxContextTokens   = 6000
	HistoryTokenBudget = 1500
	MaxHistoryTurns    = 5

	//external call policy
	RetryMaxAttempts   = 3
	RetryInitialDelay  = 500 * time.Millisecond
	RetryMaxDelay      = 8 * time.Second
	CallTimeout        = 30 * time.Second
	RollbackTimeout    = 30 * time.Second
	DeleteAwaitTimeout = 15 * time.Second
	PdfPageTimeout     = 10 * time.Second

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second

	//uploads
	MaxUploadSizeMB    = 50
	TemporaryUploadDir = "temporary_data"

	//redis
	redisHost = "127.0.0.1"
	redisPort = "6379"
	RedisAddr = redisHost + ":" + redisPort

	//redis has 16 DB we can use
	RedisJobStore          = 0
	RedisConversationStore = 1
	RedisDocumentStore     = 2

	RedisPingTimeout = 3 * time.Second
	RedisIOTimeout   = 30 * time.Second

	//redis timeouts
	RedisJobStoreTTL          = 24 * time.Hour
	RedisConversationStoreTTL = 7 * 24 * time.Hour
	RedisTombstoneTTL         = 24 * time.Hour
)
