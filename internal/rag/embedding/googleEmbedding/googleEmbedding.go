package googleEmbedding

import (
	"context"
	"errors"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"google.golang.org/genai"
)

// the Gemini API caps batchEmbedContents at 100 inputs
const maxBatchSize = 100

var logger *logger_i.Logger
var once sync.Once
var embeddingClient *client

type client struct {
	genAi      *genai.Client
	model      string
	dimensions int32
}

func newGoogleEmbedder(ctx context.Context, modelName string, apikey string, dimensions int) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apikey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		logger.Error("Error creating Google Embedding client:", "error", err)
	}
	if c != nil {
		embeddingClient = &client{
			genAi:      c,
			model:      modelName,
			dimensions: int32(dimensions),
		}
		logger.Debug("Google Embedding model name: " + modelName)
		logger.Info("Google Embedding client created")
		go closeClient(ctx, embeddingClient)
	}
}

func closeClient(ctx context.Context, embeddingClient *client) {
	<-ctx.Done()
	logger.Info("Closing Google Embedding client")
}

// GetGoogleEmbeddingClient returns nil when the client could not be created.
func GetGoogleEmbeddingClient(ctx context.Context, modelName string, apikey string, dimensions int) embedding.Provider {
	once.Do(func() {
		logger = logger_i.NewLogger("google_embedding")
		newGoogleEmbedder(ctx, modelName, apikey, dimensions)
	})

	//if init still fails
	if embeddingClient == nil {
		return nil
	}
	return embeddingClient
}

func (c *client) Model() string { return c.model }

func (c *client) Dimensions() int { return int(c.dimensions) }

func (c *client) MaxBatchSize() int { return maxBatchSize }

func (c *client) EmbedBatch(ctx context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	log := logger.WithContext(ctx)
	res, err := c.genAi.Models.EmbedContent(ctx, c.model, getContent(texts), &genai.EmbedContentConfig{
		OutputDimensionality: &c.dimensions,
		TaskType:             string(task),
	})
	if err != nil {
		log.Warn("Error getting Embeddings from Google", "error", err, "size", len(texts))
		return nil, embedding.ClassifyError(err, transient, "google embed content")
	}
	if res == nil {
		return nil, embedding.ClassifyError(errors.New("empty embedding response"), transient, "google embed content")
	}

	embeddingResults := make([][]float32, 0, len(res.Embeddings))
	for _, r := range res.Embeddings {
		embeddingResults = append(embeddingResults, r.Values)
	}
	return embeddingResults, nil
}

func getContent(chunks []string) []*genai.Content {
	contentsToSend := make([]*genai.Content, 0, len(chunks))

	for _, chunk := range chunks {
		contentsToSend = append(contentsToSend, &genai.Content{
			Parts: []*genai.Part{{Text: chunk}},
		})
	}
	return contentsToSend
}

// transient treats rate limits and server side failures as retryable.
func transient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retry.TransientHTTPStatus(apiErr.Code)
	}
	return false
}
