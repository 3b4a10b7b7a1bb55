package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

type GatewayConfig struct {
	BatchSize int
	Retry     retry.Config
}

// Gateway batches texts for a Provider, retries transient failures and checks that
// every response has the right shape.
type Gateway struct {
	provider  Provider
	batchSize int
	retry     retry.Config
	logger    *logger_i.Logger
}

func NewGateway(provider Provider, cfg GatewayConfig) *Gateway {
	batchSize := cfg.BatchSize
	if limit := provider.MaxBatchSize(); batchSize <= 0 || (limit > 0 && batchSize > limit) {
		batchSize = provider.MaxBatchSize()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	logger := logger_i.NewLogger("embedding_gateway").With("model", provider.Model())
	r := cfg.Retry
	r.Logger = logger
	r.OnRetry = func(attempt int, err error) { metrics.IncrementRetry("embedding") }
	return &Gateway{provider: provider, batchSize: batchSize, retry: r, logger: logger}
}

func (g *Gateway) Space() string {
	return Space(g.provider.Model(), g.provider.Dimensions())
}

func (g *Gateway) Dimensions() int {
	return g.provider.Dimensions()
}

// Embed returns one vector per text in order. Blank texts are rejected.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ragErrors.New(ragErrors.KindValidation, fmt.Sprintf("text %d is empty", i))
		}
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		vectors, err := g.embedBatch(ctx, texts[start:end], TaskDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (g *Gateway) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragErrors.New(ragErrors.KindValidation, "query is empty")
	}
	vectors, err := g.embedBatch(ctx, []string{query}, TaskQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Gateway) embedBatch(ctx context.Context, batch []string, task TaskType) ([][]float32, error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("embedding", time.Since(start)) }()

	log := g.logger.WithContext(ctx)
	vectors, err := retry.DoWithResult(ctx, g.retry, func(ctx context.Context) ([][]float32, error) {
		return g.provider.EmbedBatch(ctx, batch, task)
	})
	if err != nil {
		log.Error("Embedding batch failed", "size", len(batch), "error", err)
		return nil, ragErrors.Wrap(ragErrors.KindEmbedding, err, "embed batch")
	}
	if len(vectors) != len(batch) {
		return nil, ragErrors.New(ragErrors.KindEmbedding,
			fmt.Sprintf("provider returned %d vectors for %d inputs", len(vectors), len(batch)))
	}
	for i, v := range vectors {
		if len(v) != g.provider.Dimensions() {
			return nil, ragErrors.New(ragErrors.KindConfiguration,
				fmt.Sprintf("vector %d has %d dimensions, space %s expects %d", i, len(v), g.Space(), g.provider.Dimensions()))
		}
	}
	return vectors, nil
}
