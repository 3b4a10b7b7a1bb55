package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is everything that can be changed without a rebuild. Keys are read from
// config.yaml (optional) and the environment, e.g. CHUNK_SIZE or QDRANT_HOST.
type Settings struct {
	Env          string `mapstructure:"app_env"`
	LogLevel     string `mapstructure:"log_level"`
	ListenAddr   string `mapstructure:"listen_addr"`
	AuthToken    string `mapstructure:"auth_token"`
	NoAuthBypass bool   `mapstructure:"no_auth_bypass"`

	StoreBackend  string `mapstructure:"store_backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	VectorBackend    string `mapstructure:"vector_backend"`
	QdrantHost       string `mapstructure:"qdrant_host"`
	QdrantPort       int    `mapstructure:"qdrant_port"`
	QdrantAPIKey     string `mapstructure:"qdrant_api_key"`
	QdrantUseTLS     bool   `mapstructure:"qdrant_use_tls"`
	QdrantCollection string `mapstructure:"qdrant_collection"`

	EmbeddingProvider   string `mapstructure:"embedding_provider"`
	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
	EmbedBatchSize      int    `mapstructure:"embed_batch_size"`
	EmbedParallelism    int    `mapstructure:"embed_parallelism"`

	LLMProvider        string  `mapstructure:"llm_provider"`
	LLMModel           string  `mapstructure:"llm_model"`
	LLMTemperature     float32 `mapstructure:"llm_temperature"`
	LLMMaxOutputTokens int     `mapstructure:"llm_max_output_tokens"`

	GoogleAPIKey  string `mapstructure:"google_api_key"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	ChunkSize          int     `mapstructure:"chunk_size"`
	ChunkOverlap       int     `mapstructure:"chunk_overlap"`
	TopKRetrieval      int     `mapstructure:"top_k_retrieval"`
	TopKContext        int     `mapstructure:"top_k_context"`
	RelevanceThreshold float32 `mapstructure:"relevance_threshold"`
	MaxContextTokens   int     `mapstructure:"max_context_tokens"`
	HistoryTokenBudget int     `mapstructure:"history_token_budget"`
	MaxHistoryTurns    int     `mapstructure:"max_history_turns"`

	RetryMaxAttempts  int           `mapstructure:"retry_max_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`

	MaxUploadSizeMB int64  `mapstructure:"max_upload_size_mb"`
	ContentDir      string `mapstructure:"content_dir"`
}

func (s Settings) IsProd() bool {
	return strings.EqualFold(s.Env, "prod") || strings.EqualFold(s.Env, "production")
}

// EmbeddingSpace identifies the vector space documents were indexed in.
// Changing model or dimensions means a new space and a reindex.
func (s Settings) EmbeddingSpace() string {
	return fmt.Sprintf("%s@%d", s.EmbeddingModel, s.EmbeddingDimensions)
}

func (s Settings) MaxUploadBytes() int64 {
	return s.MaxUploadSizeMB << 20
}

// Load reads settings from the optional config file at path (or ./config.yaml) and the environment.
func Load(path string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && path != "" {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return s, s.Validate()
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	_ = v.Unmarshal(&s)
	return s
}

func (s Settings) Validate() error {
	switch {
	case s.ChunkSize <= 0:
		return errors.New("chunk_size must be positive")
	case s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize:
		return errors.New("chunk_overlap must be in [0, chunk_size)")
	case s.TopKRetrieval <= 0 || s.TopKContext <= 0:
		return errors.New("top_k_retrieval and top_k_context must be positive")
	case s.TopKContext > s.TopKRetrieval:
		return errors.New("top_k_context must not exceed top_k_retrieval")
	case s.EmbeddingDimensions <= 0:
		return errors.New("embedding_dimensions must be positive")
	case s.RetryMaxAttempts < 1:
		return errors.New("retry_max_attempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "dev")
	v.SetDefault("log_level", "debug")
	v.SetDefault("listen_addr", ServerListenAddr)
	v.SetDefault("auth_token", "")
	v.SetDefault("no_auth_bypass", false)

	v.SetDefault("store_backend", "redis")
	v.SetDefault("redis_addr", RedisAddr)
	v.SetDefault("redis_password", "")

	v.SetDefault("vector_backend", "qdrant")
	v.SetDefault("qdrant_host", QdrantHost)
	v.SetDefault("qdrant_port", QdrantGrpcPort)
	v.SetDefault("qdrant_api_key", "")
	v.SetDefault("qdrant_use_tls", QdrantUseTLS)
	v.SetDefault("qdrant_collection", QdrantCollectionPrefix)

	v.SetDefault("embedding_provider", "google")
	v.SetDefault("embedding_model", GoogleEmbeddingModel)
	v.SetDefault("embedding_dimensions", EmbeddingOutputDimensionality)
	v.SetDefault("embed_batch_size", EmbeddingBatchSize)
	v.SetDefault("embed_parallelism", EmbeddingParallelism)

	v.SetDefault("llm_provider", "google")
	v.SetDefault("llm_model", GeminiModelName)
	v.SetDefault("llm_temperature", ModelTemperature)
	v.SetDefault("llm_max_output_tokens", ModelMaxOutputTokens)

	v.SetDefault("google_api_key", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")

	v.SetDefault("chunk_size", ChunkSize)
	v.SetDefault("chunk_overlap", ChunkOverlap)
	v.SetDefault("top_k_retrieval", TopKRetrieval)
	v.SetDefault("top_k_context", TopKContext)
	v.SetDefault("relevance_threshold", RelevanceThreshold)
	v.SetDefault("max_context_tokens", MaxContextTokens)
	v.SetDefault("history_token_budget", HistoryTokenBudget)
	v.SetDefault("max_history_turns", MaxHistoryTurns)

	v.SetDefault("retry_max_attempts", RetryMaxAttempts)
	v.SetDefault("retry_initial_delay", RetryInitialDelay)
	v.SetDefault("call_timeout", CallTimeout)

	v.SetDefault("max_upload_size_mb", MaxUploadSizeMB)
	v.SetDefault("content_dir", TemporaryUploadDir)
}
