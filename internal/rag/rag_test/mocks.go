package rag_test

import (
	"context"
	"iter"

	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
)

const dims = 4

// MockEmbeddingProvider implements embedding.Provider. Documents embed to {len, 1, 0, 0}.
type MockEmbeddingProvider struct {
	OnEmbedBatch func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	if m.OnEmbedBatch != nil {
		return m.OnEmbedBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0, 0}
	}
	return out, nil
}

func (m *MockEmbeddingProvider) Model() string     { return "mock-embed" }
func (m *MockEmbeddingProvider) Dimensions() int   { return dims }
func (m *MockEmbeddingProvider) MaxBatchSize() int { return 100 }

// MockQueryEmbedder implements retriever.QueryEmbedder
type MockQueryEmbedder struct {
	OnEmbedQuery func(ctx context.Context, query string) ([]float32, error)
}

func (m *MockQueryEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if m.OnEmbedQuery != nil {
		return m.OnEmbedQuery(ctx, query)
	}
	return []float32{1, 0.01, 0, 0}, nil
}

// MockLLM implements llm.Provider
type MockLLM struct {
	OnGenerate func(ctx context.Context, prompt llm.Prompt) (string, error)
	OnStream   func(ctx context.Context, prompt llm.Prompt) iter.Seq2[string, error]
}

func (m *MockLLM) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	if m.OnGenerate != nil {
		return m.OnGenerate(ctx, prompt)
	}
	return "mocked llm response", nil
}

func (m *MockLLM) Stream(ctx context.Context, prompt llm.Prompt) iter.Seq2[string, error] {
	if m.OnStream != nil {
		return m.OnStream(ctx, prompt)
	}
	return func(yield func(string, error) bool) {
		yield("mocked llm response", nil)
	}
}

func (m *MockLLM) Model() string { return "mock-llm" }

type MockQueue struct {
	ids []string
}

func (q *MockQueue) EnqueueIngest(ctx context.Context, documentId string) error {
	q.ids = append(q.ids, documentId)
	return nil
}

func fragments(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}
