package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/data/store"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return f.vector, f.err
}

type failingIndex struct {
	vectorDB.Index
	calls int
}

func (f *failingIndex) Query(ctx context.Context, vector []float32, k int) ([]vectorDB.Hit, error) {
	f.calls++
	return nil, ragErrors.Transient(ragErrors.KindIndexing, errors.New("connection refused"), "query")
}

func testRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func addDoc(t *testing.T, docs *store.InMemoryDocumentStore, id string, status commonModels.DocStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, docs.Create(ctx, commonModels.Document{Id: id, Status: commonModels.DocPending}))
	if status == commonModels.DocPending {
		return
	}
	_, err := docs.Transition(ctx, id, commonModels.DocProcessing, nil)
	require.NoError(t, err)
	if status != commonModels.DocProcessing {
		_, err = docs.Transition(ctx, id, status, nil)
		require.NoError(t, err)
	}
}

func point(doc string, ordinal int, v ...float32) vectorDB.Point {
	return vectorDB.Point{
		Chunk:  commonModels.Chunk{Id: commonModels.ChunkId(doc, ordinal), DocumentId: doc, Ordinal: ordinal, Text: "text"},
		Vector: v,
	}
}

func setup(t *testing.T) (*store.InMemoryDocumentStore, *memoryDB.Storage) {
	t.Helper()
	docs := store.InitInMemoryDocumentStore()
	index := memoryDB.NewStorage(2)
	addDoc(t, docs, "a", commonModels.DocCompleted)
	addDoc(t, docs, "b", commonModels.DocCompleted)
	addDoc(t, docs, "busy", commonModels.DocProcessing)
	require.NoError(t, index.Upsert(context.Background(), []vectorDB.Point{
		point("a", 0, 1, 0),
		point("b", 1, 1, 0),
		point("b", 0, 1, 0),
		point("a", 1, 0.8, 0.6),
		point("a", 2, 0, 1),
		point("busy", 0, 1, 0),
	}))
	return docs, index
}

func TestRetrieve_FiltersSortsAndTruncates(t *testing.T) {
	docs, index := setup(t)
	r := New(fakeEmbedder{vector: []float32{1, 0}}, index, docs,
		Options{TopKRetrieval: 10, TopKContext: 3, RelevanceThreshold: 0.5}, testRetry())

	got, err := r.Retrieve(context.Background(), "what is attention")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "a", got[0].Chunk.DocumentId, "ties break on document id")
	assert.Equal(t, 0, got[0].Chunk.Ordinal)
	assert.Equal(t, "b", got[1].Chunk.DocumentId)
	assert.Equal(t, 0, got[1].Chunk.Ordinal, "then on ordinal")
	assert.Equal(t, "b", got[2].Chunk.DocumentId)
	assert.Equal(t, 1, got[2].Chunk.Ordinal)

	for i, c := range got {
		assert.NotEqual(t, "busy", c.Chunk.DocumentId, "documents still processing are never returned")
		assert.GreaterOrEqual(t, c.Score, float32(0.5))
		if i > 0 {
			assert.LessOrEqual(t, c.Score, got[i-1].Score)
		}
	}
}

func TestRetrieve_ThresholdIsInclusive(t *testing.T) {
	docs, index := setup(t)
	r := New(fakeEmbedder{vector: []float32{1, 0}}, index, docs,
		Options{TopKRetrieval: 10, TopKContext: 10, RelevanceThreshold: 1}, testRetry())

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got, 3, "scores equal to the threshold are kept")
	for _, c := range got {
		assert.Equal(t, float32(1), c.Score)
	}
}

func TestRetrieve_NothingRelevantIsEmptyNotError(t *testing.T) {
	docs, index := setup(t)
	r := New(fakeEmbedder{vector: []float32{-1, 0}}, index, docs,
		Options{TopKRetrieval: 10, TopKContext: 5, RelevanceThreshold: 0.3}, testRetry())

	got, err := r.Retrieve(context.Background(), "cooking recipes")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_DeletedDocumentsNeverReturned(t *testing.T) {
	docs, index := setup(t)
	require.NoError(t, docs.MarkDeleted(context.Background(), "a"))
	r := New(fakeEmbedder{vector: []float32{1, 0}}, index, docs, Options{RelevanceThreshold: 0.1}, testRetry())

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	for _, c := range got {
		assert.NotEqual(t, "a", c.Chunk.DocumentId)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	docs, _ := setup(t)

	r := New(fakeEmbedder{vector: []float32{1, 0}}, &failingIndex{}, docs, Options{}, testRetry())
	_, err := r.Retrieve(context.Background(), "q")
	assert.True(t, ragErrors.Is(err, ragErrors.KindRetrieval), "index outage is a retrieval error, got %v", err)
	assert.True(t, ragErrors.IsRetryable(err))

	embedErr := ragErrors.Terminal(ragErrors.KindEmbedding, errors.New("bad key"), "embed")
	r = New(fakeEmbedder{err: embedErr}, memoryDB.NewStorage(2), docs, Options{}, testRetry())
	_, err = r.Retrieve(context.Background(), "q")
	assert.True(t, ragErrors.Is(err, ragErrors.KindEmbedding))

	_, err = r.Retrieve(context.Background(), "  ")
	assert.True(t, ragErrors.Is(err, ragErrors.KindValidation))
}

func TestRetrieve_RetriesIndexQuery(t *testing.T) {
	docs, _ := setup(t)
	idx := &failingIndex{}
	r := New(fakeEmbedder{vector: []float32{1, 0}}, idx, docs, Options{}, testRetry())
	_, _ = r.Retrieve(context.Background(), "q")
	assert.Equal(t, 2, idx.calls)
}

func TestOptionsClampContextToRetrieval(t *testing.T) {
	o := Options{TopKRetrieval: 3, TopKContext: 8}.normalize(DefaultOptions())
	assert.Equal(t, 3, o.TopKContext)

	o = Options{}.normalize(DefaultOptions())
	assert.Equal(t, DefaultOptions().TopKRetrieval, o.TopKRetrieval)
}

type countingIndex struct {
	vectorDB.Index
	ks []int
}

func (c *countingIndex) Query(ctx context.Context, vector []float32, k int) ([]vectorDB.Hit, error) {
	c.ks = append(c.ks, k)
	return c.Index.Query(ctx, vector, k)
}

func TestRetrieve_WidensPastDocumentsInFlight(t *testing.T) {
	docs := store.InitInMemoryDocumentStore()
	memory := memoryDB.NewStorage(2)
	addDoc(t, docs, "busy", commonModels.DocProcessing)
	addDoc(t, docs, "done", commonModels.DocCompleted)
	points := []vectorDB.Point{point("done", 0, 0.8, 0.6)}
	for i := range 10 {
		points = append(points, point("busy", i, 1, 0))
	}
	require.NoError(t, memory.Upsert(context.Background(), points))

	index := &countingIndex{Index: memory}
	r := New(fakeEmbedder{vector: []float32{1, 0}}, index, docs,
		Options{TopKRetrieval: 10, TopKContext: 5, RelevanceThreshold: 0.3}, testRetry())

	got, err := r.Retrieve(context.Background(), "what is done")
	require.NoError(t, err)
	require.Len(t, got, 1, "the completed chunk is found behind the in-flight ones")
	assert.Equal(t, "done", got[0].Chunk.DocumentId)
	assert.InDelta(t, 0.8, got[0].Score, 1e-5)
	assert.Equal(t, []int{10, 20}, index.ks, "the query widens once and stops when the index runs out")
}

func TestRetrieve_StopsWideningBelowThreshold(t *testing.T) {
	docs := store.InitInMemoryDocumentStore()
	memory := memoryDB.NewStorage(2)
	addDoc(t, docs, "busy", commonModels.DocProcessing)
	addDoc(t, docs, "done", commonModels.DocCompleted)
	points := []vectorDB.Point{point("done", 0, 0, 1)}
	for i := range 10 {
		points = append(points, point("busy", i, 1, 0))
	}
	for i := range 10 {
		points = append(points, point("busy", 10+i, 0.1, 1))
	}
	require.NoError(t, memory.Upsert(context.Background(), points))

	index := &countingIndex{Index: memory}
	r := New(fakeEmbedder{vector: []float32{1, 0}}, index, docs,
		Options{TopKRetrieval: 10, TopKContext: 5, RelevanceThreshold: 0.5}, testRetry())

	got, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []int{10, 20}, index.ks, "hits under the threshold end the search")
}
