package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	dims     int
	maxBatch int
	calls    [][]string
	tasks    []TaskType
	OnEmbed  func(call int, texts []string) ([][]float32, error)
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	f.tasks = append(f.tasks, task)
	call := len(f.calls)
	f.mu.Unlock()
	if f.OnEmbed != nil {
		return f.OnEmbed(call, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) Model() string     { return "fake-embed" }
func (f *fakeProvider) Dimensions() int   { return f.dims }
func (f *fakeProvider) MaxBatchSize() int { return f.maxBatch }

func testRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestGateway_BatchesAndPreservesOrder(t *testing.T) {
	p := &fakeProvider{dims: 4, maxBatch: 2}
	g := NewGateway(p, GatewayConfig{BatchSize: 10, Retry: testRetry()})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := g.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
	assert.Len(t, p.calls, 3, "batch size should be capped by the provider")
	assert.Equal(t, TaskDocument, p.tasks[0])
	assert.Equal(t, "fake-embed@4", g.Space())
}

func TestGateway_RetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{dims: 2, maxBatch: 10}
	p.OnEmbed = func(call int, texts []string) ([][]float32, error) {
		if call <= 2 {
			return nil, ragErrors.Transient(ragErrors.KindEmbedding, errors.New("503"), "embed")
		}
		return [][]float32{{1, 2}}, nil
	}
	g := NewGateway(p, GatewayConfig{Retry: testRetry()})

	vectors, err := g.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Len(t, p.calls, 3)
}

func TestGateway_TerminalFailureNotRetried(t *testing.T) {
	p := &fakeProvider{dims: 2, maxBatch: 10}
	p.OnEmbed = func(call int, texts []string) ([][]float32, error) {
		return nil, ragErrors.Terminal(ragErrors.KindEmbedding, errors.New("401"), "auth")
	}
	g := NewGateway(p, GatewayConfig{Retry: testRetry()})

	_, err := g.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Equal(t, ragErrors.KindEmbedding, ragErrors.KindOf(err))
	assert.False(t, ragErrors.IsRetryable(err))
	assert.Len(t, p.calls, 1)
}

func TestGateway_ShapeChecks(t *testing.T) {
	t.Run("count mismatch", func(t *testing.T) {
		p := &fakeProvider{dims: 2, maxBatch: 10}
		p.OnEmbed = func(call int, texts []string) ([][]float32, error) { return [][]float32{{1, 2}}, nil }
		_, err := NewGateway(p, GatewayConfig{Retry: testRetry()}).Embed(context.Background(), []string{"a", "b"})
		assert.Equal(t, ragErrors.KindEmbedding, ragErrors.KindOf(err))
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		p := &fakeProvider{dims: 3, maxBatch: 10}
		p.OnEmbed = func(call int, texts []string) ([][]float32, error) { return [][]float32{{1, 2}}, nil }
		_, err := NewGateway(p, GatewayConfig{Retry: testRetry()}).Embed(context.Background(), []string{"a"})
		assert.Equal(t, ragErrors.KindConfiguration, ragErrors.KindOf(err))
	})
	t.Run("blank input", func(t *testing.T) {
		p := &fakeProvider{dims: 2, maxBatch: 10}
		_, err := NewGateway(p, GatewayConfig{Retry: testRetry()}).Embed(context.Background(), []string{"ok", "  "})
		assert.Equal(t, ragErrors.KindValidation, ragErrors.KindOf(err))
		assert.Empty(t, p.calls)
	})
}

func TestGateway_EmbedQueryUsesQueryTask(t *testing.T) {
	p := &fakeProvider{dims: 2, maxBatch: 10}
	g := NewGateway(p, GatewayConfig{Retry: testRetry()})
	v, err := g.EmbedQuery(context.Background(), "what is rag")
	require.NoError(t, err)
	assert.Len(t, v, 2)
	assert.Equal(t, TaskQuery, p.tasks[0])
}

func TestClassifyError(t *testing.T) {
	never := func(error) bool { return false }
	always := func(error) bool { return true }

	err := ClassifyError(errors.New("boom"), always, "call")
	assert.True(t, ragErrors.IsRetryable(err))

	err = ClassifyError(errors.New("bad key"), never, "call")
	assert.False(t, ragErrors.IsRetryable(err))
	assert.Equal(t, ragErrors.KindEmbedding, ragErrors.KindOf(err))

	tagged := ragErrors.New(ragErrors.KindValidation, "x")
	assert.Same(t, tagged, ClassifyError(tagged, always, "call"))
}
