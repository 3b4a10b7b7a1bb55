package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/data/store"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/rag/chunker"
	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/extract"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dims = 4

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	OnEmbed func(call int, texts []string) ([][]float32, error)
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.OnEmbed != nil {
		if out, err := f.OnEmbed(call, texts); out != nil || err != nil {
			return out, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0, 0}
	}
	return out, nil
}

func (f *fakeProvider) Model() string     { return "fake-embed" }
func (f *fakeProvider) Dimensions() int   { return dims }
func (f *fakeProvider) MaxBatchSize() int { return 100 }

type fakeExtractor struct {
	OnExtract func(ctx context.Context, src extract.Source) (extract.Result, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, src extract.Source) (extract.Result, error) {
	return f.OnExtract(ctx, src)
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) EnqueueIngest(ctx context.Context, documentId string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, documentId)
	return nil
}

type fixture struct {
	docs     *store.InMemoryDocumentStore
	index    *memoryDB.Storage
	provider *fakeProvider
	queue    *fakeQueue
	content  *ContentStore
	pipeline *Pipeline
	service  Service
}

func testRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newFixture(t *testing.T, extractor Extractor) *fixture {
	t.Helper()
	content, err := NewContentStore(t.TempDir())
	require.NoError(t, err)
	if extractor == nil {
		extractor = extract.NewRegistry().Register(commonModels.SourceText, extract.Text{})
	}
	f := &fixture{
		docs:     store.InitInMemoryDocumentStore(),
		index:    memoryDB.NewStorage(dims),
		provider: &fakeProvider{},
		queue:    &fakeQueue{},
		content:  content,
	}
	gateway := embedding.NewGateway(f.provider, embedding.GatewayConfig{BatchSize: 2, Retry: testRetry()})
	f.pipeline = NewPipeline(f.docs, extractor, chunker.New(chunker.WithChunkSize(80), chunker.WithOverlap(10)),
		gateway, f.index, content, PipelineConfig{BatchSize: 2, Parallelism: 2, Retry: testRetry()})
	f.service = NewService(f.docs, f.index, f.pipeline, f.queue, content, ServiceConfig{Retry: testRetry()})
	return f
}

const article = "Retrieval augmented generation grounds answers in documents.\n\n" +
	"Chunks are embedded and stored in a vector index. Queries are embedded the same way.\n\n" +
	"The nearest chunks become the context a language model answers from, with citations."

func TestPipeline_IngestsTextDocument(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article, Title: "RAG notes"})
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocPending, doc.Status)
	require.Equal(t, []string{doc.Id}, f.queue.ids)

	require.NoError(t, f.pipeline.Process(ctx, doc.Id))

	got, err := f.service.Get(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocCompleted, got.Status)
	assert.Greater(t, got.ChunkCount, 1)
	assert.Equal(t, got.ChunkCount, f.index.Count(doc.Id))
	assert.Equal(t, "fake-embed@4", got.EmbeddingSpace)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Error)

	_, statErr := os.Stat(doc.ContentRef)
	assert.True(t, os.IsNotExist(statErr), "content is removed once indexed")

	hits, err := f.index.Query(ctx, []float32{1, 1, 0, 0}, 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "RAG notes", h.Chunk.Title)
		assert.Equal(t, commonModels.ChunkId(doc.Id, h.Chunk.Ordinal), h.Chunk.Id)
	}

	require.NoError(t, f.pipeline.Process(ctx, doc.Id), "redelivered job is skipped")
	assert.Equal(t, got.ChunkCount, f.index.Count(doc.Id))
}

func TestPipeline_TransientEmbeddingFailuresRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.OnEmbed = func(call int, texts []string) ([][]float32, error) {
		if call <= 2 {
			return nil, ragErrors.Transient(ragErrors.KindEmbedding, errors.New("503 unavailable"), "embed")
		}
		return nil, nil
	}
	ctx := context.Background()

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Process(ctx, doc.Id))

	got, err := f.docs.Get(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocCompleted, got.Status)
	assert.Equal(t, got.ChunkCount, f.index.Count(doc.Id), "no duplicate points after retries")
}

func TestPipeline_EmbeddingFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.OnEmbed = func(call int, texts []string) ([][]float32, error) {
		if call > 1 {
			return nil, ragErrors.Terminal(ragErrors.KindEmbedding, errors.New("400 bad request"), "embed")
		}
		return nil, nil
	}
	ctx := context.Background()

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.NoError(t, err)
	err = f.pipeline.Process(ctx, doc.Id)
	require.Error(t, err)
	assert.True(t, ragErrors.Is(err, ragErrors.KindEmbedding))

	got, err := f.docs.Get(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, string(ragErrors.KindEmbedding), got.Error.Kind)
	assert.False(t, got.Error.Retryable)
	assert.Zero(t, f.index.Count(doc.Id), "partially indexed chunks are rolled back")
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	f := newFixture(t, &fakeExtractor{OnExtract: func(ctx context.Context, src extract.Source) (extract.Result, error) {
		return extract.Result{}, ragErrors.Terminal(ragErrors.KindExtraction, errors.New("encrypted pdf"), "read pdf")
	}})
	ctx := context.Background()

	doc, err := f.service.Upload(ctx, UploadRequest{FileName: "paper.pdf", Body: strings.NewReader("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, "paper", doc.Title)
	assert.Equal(t, commonModels.SourcePDF, doc.SourceType)

	require.Error(t, f.pipeline.Process(ctx, doc.Id))
	got, err := f.docs.Get(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocFailed, got.Status)
	assert.Equal(t, string(ragErrors.KindExtraction), got.Error.Kind)
	assert.Contains(t, got.Error.Message, "encrypted pdf")
}

func TestPipeline_SkipsDocumentsNotPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.NoError(t, f.pipeline.Process(ctx, "unknown"))

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.NoError(t, err)
	_, err = f.docs.Transition(ctx, doc.Id, commonModels.DocProcessing, nil)
	require.NoError(t, err)

	assert.NoError(t, f.pipeline.Process(ctx, doc.Id))
	assert.Zero(t, f.provider.calls, "a document another worker holds is not embedded again")
}

func TestService_DeleteDuringProcessing(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, &fakeExtractor{OnExtract: func(ctx context.Context, src extract.Source) (extract.Result, error) {
		close(started)
		<-ctx.Done()
		return extract.Result{}, ctx.Err()
	}})
	ctx := context.Background()

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.pipeline.Process(ctx, doc.Id) }()
	<-started

	require.NoError(t, f.service.Delete(ctx, doc.Id))
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after delete")
	}

	assert.False(t, f.pipeline.inflight.active(doc.Id))
	assert.Zero(t, f.index.Count(doc.Id))
	_, err = f.service.Get(ctx, doc.Id)
	assert.True(t, ragErrors.Is(err, ragErrors.KindNotFound))
	docs, err := f.service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_DeleteCompletedDocument(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Process(ctx, doc.Id))
	require.NotZero(t, f.index.Count(doc.Id))

	require.NoError(t, f.service.Delete(ctx, doc.Id))
	assert.Zero(t, f.index.Count(doc.Id))
	assert.True(t, ragErrors.Is(f.service.Delete(ctx, doc.Id), ragErrors.KindNotFound))
}

func TestService_Retry(t *testing.T) {
	fail := true
	var mu sync.Mutex
	f := newFixture(t, &fakeExtractor{OnExtract: func(ctx context.Context, src extract.Source) (extract.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return extract.Result{}, ragErrors.Transient(ragErrors.KindExtraction, errors.New("timeout"), "fetch")
		}
		return extract.Text{}.Extract(ctx, src)
	}})
	ctx := context.Background()

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article, Title: "Notes"})
	require.NoError(t, err)

	_, err = f.service.Retry(ctx, doc.Id)
	assert.True(t, ragErrors.Is(err, ragErrors.KindInvalidState), "pending documents cannot be retried")

	require.Error(t, f.pipeline.Process(ctx, doc.Id))
	failed, err := f.docs.Get(ctx, doc.Id)
	require.NoError(t, err)
	assert.True(t, failed.Error.Retryable)

	mu.Lock()
	fail = false
	mu.Unlock()

	retried, err := f.service.Retry(ctx, doc.Id)
	require.NoError(t, err)
	assert.NotEqual(t, doc.Id, retried.Id)
	assert.Equal(t, doc.Id, retried.RetryOf)
	assert.Equal(t, "Notes", retried.Title)
	assert.Equal(t, []string{doc.Id, retried.Id}, f.queue.ids)

	require.NoError(t, f.pipeline.Process(ctx, retried.Id))
	got, err := f.docs.Get(ctx, retried.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocCompleted, got.Status)

	old, err := f.docs.Get(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocFailed, old.Status, "the failed record stays for reference")
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"empty text", CreateRequest{SourceType: commonModels.SourceText, Content: "   "}},
		{"bad url scheme", CreateRequest{SourceType: commonModels.SourceURL, URL: "ftp://example.com/a"}},
		{"private url", CreateRequest{SourceType: commonModels.SourceURL, URL: "http://10.0.0.1/admin"}},
		{"bad youtube", CreateRequest{SourceType: commonModels.SourceYoutube, URL: "https://example.com/watch"}},
		{"pdf by body", CreateRequest{SourceType: commonModels.SourcePDF, Content: "x"}},
		{"unknown type", CreateRequest{SourceType: "audio"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Create(ctx, tt.req)
			assert.True(t, ragErrors.Is(err, ragErrors.KindValidation), "got %v", err)
		})
	}
	assert.Empty(t, f.queue.ids)

	doc, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceYoutube, URL: "https://youtu.be/dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", doc.ContentRef)
}

func TestService_Upload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Upload(ctx, UploadRequest{FileName: "song.mp3", Body: strings.NewReader("id3")})
	assert.True(t, ragErrors.Is(err, ragErrors.KindValidation))

	doc, err := f.service.Upload(ctx, UploadRequest{FileName: "Notes.MD", Body: strings.NewReader(article), Author: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, commonModels.SourceText, doc.SourceType)
	assert.Equal(t, "Notes", doc.Title)
	assert.True(t, f.content.Owns(doc.ContentRef))

	small := NewService(f.docs, f.index, f.pipeline, f.queue, f.content, ServiceConfig{MaxUploadBytes: 8})
	_, err = small.Upload(ctx, UploadRequest{FileName: "big.txt", Body: strings.NewReader(article)})
	assert.True(t, ragErrors.Is(err, ragErrors.KindValidation))
}

func TestService_EnqueueFailureRemovesDocument(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.err = ragErrors.New(ragErrors.KindUnknown, "queue full")
	ctx := context.Background()

	_, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.Error(t, err)
	docs, err := f.service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_RecoverSettlesInterruptedDocuments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stuck, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.NoError(t, err)
	_, err = f.docs.Transition(ctx, stuck.Id, commonModels.DocProcessing, nil)
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(ctx, []vectorDB.Point{{
		Chunk:  commonModels.Chunk{Id: commonModels.ChunkId(stuck.Id, 0), DocumentId: stuck.Id, Text: "partial"},
		Vector: []float32{1, 0, 0, 0},
	}}))

	waiting, err := f.service.Create(ctx, CreateRequest{SourceType: commonModels.SourceText, Content: article})
	require.NoError(t, err)
	f.queue.ids = nil

	rec, err := f.service.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, Recovery{Failed: 1, Requeued: 1}, rec)

	got, err := f.service.Get(ctx, stuck.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.True(t, got.Error.Retryable)
	assert.Zero(t, f.index.Count(stuck.Id))
	assert.Equal(t, []string{waiting.Id}, f.queue.ids)

	_, err = f.service.Retry(ctx, stuck.Id)
	assert.NoError(t, err, "an interrupted document can be retried")

	require.NoError(t, f.pipeline.Process(ctx, waiting.Id))
	got, err = f.service.Get(ctx, waiting.Id)
	require.NoError(t, err)
	assert.Equal(t, commonModels.DocCompleted, got.Status)
}

func TestInflight_CancelAndWait(t *testing.T) {
	f := newInflight()
	ctx, cancel := context.WithCancel(context.Background())
	r := f.start("d1", cancel)
	assert.True(t, f.active("d1"))

	go func() {
		<-ctx.Done()
		f.finish("d1", r)
	}()
	assert.True(t, f.cancelAndWait(context.Background(), "d1"))
	assert.False(t, f.active("d1"))
	assert.True(t, f.cancelAndWait(context.Background(), "unknown"))

	_, stuckCancel := context.WithCancel(context.Background())
	f.start("d2", stuckCancel)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer waitCancel()
	assert.False(t, f.cancelAndWait(waitCtx, "d2"))
}
