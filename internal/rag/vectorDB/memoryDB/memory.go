// Package memoryDB is a brute force cosine index kept in process. It backs tests, the
// CLI and deployments without qdrant.
package memoryDB

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
)

type Storage struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]vectorDB.Point
}

func NewStorage(dimension int) *Storage {
	return &Storage{dimension: dimension, points: make(map[string]vectorDB.Point)}
}

func (s *Storage) EnsureCollection(ctx context.Context) error {
	if s.dimension <= 0 {
		return ragErrors.New(ragErrors.KindConfiguration, "invalid dimension")
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, points []vectorDB.Point) error {
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return ragErrors.New(ragErrors.KindIndexing,
				fmt.Sprintf("vector dimension mismatch: got %d want %d", len(p.Vector), s.dimension))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.Chunk.Id] = vectorDB.Point{Chunk: p.Chunk, Vector: append([]float32(nil), p.Vector...)}
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, chunkIds []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range chunkIds {
		delete(s.points, id)
	}
	return nil
}

func (s *Storage) DeleteByDocument(ctx context.Context, documentId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.Chunk.DocumentId == documentId {
			delete(s.points, id)
		}
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float32, k int) ([]vectorDB.Hit, error) {
	if len(vector) != s.dimension {
		return nil, ragErrors.New(ragErrors.KindRetrieval, "query vector dimension mismatch")
	}
	s.mu.RLock()
	hits := make([]vectorDB.Hit, 0, len(s.points))
	for _, p := range s.points {
		hits = append(hits, vectorDB.Hit{Chunk: p.Chunk, Score: cosine(p.Vector, vector)})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Id < hits[j].Chunk.Id
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Count is the number of stored points for a document, or all points when documentId is empty.
func (s *Storage) Count(documentId string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if documentId == "" {
		return len(s.points)
	}
	n := 0
	for _, p := range s.points {
		if p.Chunk.DocumentId == documentId {
			n++
		}
	}
	return n
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
