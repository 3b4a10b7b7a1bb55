package openaiEmbedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// the embeddings endpoint accepts up to 2048 inputs per request
const maxBatchSize = 2048

type client struct {
	api        openai.Client
	model      string
	dimensions int
	logger     *logger_i.Logger
}

// NewOpenAIEmbedder builds a provider for text-embedding-3-* style models.
// baseURL may point at any OpenAI compatible server.
func NewOpenAIEmbedder(apiKey string, baseURL string, model string, dimensions int) embedding.Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &client{
		api:        openai.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
		logger:     logger_i.NewLogger("openai_embedding"),
	}
}

func (c *client) Model() string { return c.model }

func (c *client) Dimensions() int { return c.dimensions }

func (c *client) MaxBatchSize() int { return maxBatchSize }

// EmbedBatch ignores the task type, OpenAI models use one space for queries and documents.
func (c *client) EmbedBatch(ctx context.Context, texts []string, _ embedding.TaskType) ([][]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: openai.Int(int64(c.dimensions)),
	})
	if err != nil {
		c.logger.WithContext(ctx).Warn("Error getting Embeddings from OpenAI", "error", err, "size", len(texts))
		return nil, embedding.ClassifyError(err, transient, "openai embeddings")
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, embedding.ClassifyError(fmt.Errorf("embedding index %d out of range", d.Index), transient, "openai embeddings")
		}
		vector := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vector[i] = float32(v)
		}
		out[d.Index] = vector
	}
	return out, nil
}

func transient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retry.TransientHTTPStatus(apiErr.StatusCode)
	}
	return false
}
