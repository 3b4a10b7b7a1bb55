package embedding

import (
	"context"
	"fmt"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

type TaskType string

const (
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskQuery    TaskType = "RETRIEVAL_QUERY"
)

// Provider is one remote embedding model. EmbedBatch must return one vector per
// input, in input order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
	Model() string
	Dimensions() int
	MaxBatchSize() int
}

// Embedder is what ingestion and retrieval depend on. Both sides must use the
// same Space, otherwise scores are meaningless.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Space() string
	Dimensions() int
}

func Space(model string, dimensions int) string {
	return fmt.Sprintf("%s@%d", model, dimensions)
}

// ClassifyError tags a provider error as a transient or terminal embedding error.
// Errors that already carry a kind pass through.
func ClassifyError(err error, transient func(error) bool, message string) error {
	if err == nil {
		return nil
	}
	if ragErrors.KindOf(err) != ragErrors.KindUnknown {
		return err
	}
	if transient(err) || retry.TransientGRPC(err) || retry.TransientNetwork(err) {
		return ragErrors.Transient(ragErrors.KindEmbedding, err, message)
	}
	return ragErrors.Terminal(ragErrors.KindEmbedding, err, message)
}
