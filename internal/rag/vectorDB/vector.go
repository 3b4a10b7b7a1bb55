package vectorDB

import (
	"context"

	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
)

// Point is one chunk and its embedding.
type Point struct {
	Chunk  commonModels.Chunk
	Vector []float32
}

// Hit is a query result; higher Score means more similar.
type Hit struct {
	Chunk commonModels.Chunk
	Score float32
}

// Index is the nearest neighbour store. Upsert is idempotent on chunk id and only
// returns once the points are durable.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, chunkIds []string) error
	DeleteByDocument(ctx context.Context, documentId string) error
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
}
