package retriever

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

type RankedChunk struct {
	Chunk commonModels.Chunk
	Score float32
}

type Options struct {
	TopKRetrieval      int
	TopKContext        int
	RelevanceThreshold float32
}

func DefaultOptions() Options {
	return Options{
		TopKRetrieval:      config.TopKRetrieval,
		TopKContext:        config.TopKContext,
		RelevanceThreshold: config.RelevanceThreshold,
	}
}

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// StatusReader is the document store view retrieval needs.
type StatusReader interface {
	StatusOf(ctx context.Context, ids []string) (map[string]commonModels.DocStatus, error)
}

type Retriever struct {
	embedder QueryEmbedder
	index    vectorDB.Index
	docs     StatusReader
	opts     Options
	retry    retry.Config
	logger   *logger_i.Logger
}

func New(embedder QueryEmbedder, index vectorDB.Index, docs StatusReader, opts Options, retryCfg retry.Config) *Retriever {
	r := retryCfg
	r.OnRetry = func(attempt int, err error) { metrics.IncrementRetry("vector_query") }
	return &Retriever{
		embedder: embedder,
		index:    index,
		docs:     docs,
		opts:     opts.normalize(DefaultOptions()),
		retry:    r,
		logger:   logger_i.NewLogger("Retriever"),
	}
}

func (o Options) normalize(fallback Options) Options {
	if o.TopKRetrieval <= 0 {
		o.TopKRetrieval = fallback.TopKRetrieval
	}
	if o.TopKContext <= 0 {
		o.TopKContext = fallback.TopKContext
	}
	if o.TopKContext > o.TopKRetrieval {
		o.TopKContext = o.TopKRetrieval
	}
	if o.RelevanceThreshold < 0 {
		o.RelevanceThreshold = 0
	}
	return o
}

func (r *Retriever) Options() Options {
	return r.opts
}

// Retrieve uses the retriever's configured options.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]RankedChunk, error) {
	return r.RetrieveWith(ctx, query, r.opts)
}

// RetrieveWith returns at most TopKContext chunks of completed documents scoring at least
// RelevanceThreshold, best first. An empty result means nothing relevant was found.
// Zero top-k values in opts fall back to the retriever's options.
func (r *Retriever) RetrieveWith(ctx context.Context, query string, opts Options) ([]RankedChunk, error) {
	log := r.logger.WithContext(ctx)
	if strings.TrimSpace(query) == "" {
		return nil, ragErrors.New(ragErrors.KindValidation, "query is empty")
	}
	opts = opts.normalize(r.opts)

	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("retrieval", time.Since(start)) }()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// Vectors of documents that are still processing, failed or deleted share the index with
	// completed ones. The query widens until enough eligible hits are found, the index runs
	// out, or hits fall below the threshold.
	statuses := make(map[string]commonModels.DocStatus)
	checked := make(map[string]bool)
	k := opts.TopKRetrieval
	var (
		hits   []vectorDB.Hit
		ranked []RankedChunk
	)
	for {
		hits, err = retry.DoWithResult(ctx, r.retry, func(ctx context.Context) ([]vectorDB.Hit, error) {
			return r.index.Query(ctx, vector, k)
		})
		if err != nil {
			log.Error("Vector query failed", "error", err, "k", k)
			return nil, ragErrors.Transient(ragErrors.KindRetrieval, err, "vector index query failed")
		}
		if err := r.lookupStatuses(ctx, hits, statuses, checked); err != nil {
			log.Error("Document status lookup failed", "error", err)
			return nil, ragErrors.Transient(ragErrors.KindRetrieval, err, "document status lookup failed")
		}
		ranked = eligible(hits, statuses, opts.RelevanceThreshold)
		if len(ranked) >= opts.TopKContext || len(hits) < k || k >= config.RetrievalMaxCandidates ||
			lowestScore(hits) < opts.RelevanceThreshold {
			break
		}
		k = min(2*k, config.RetrievalMaxCandidates)
		log.Debug("Widening vector query", "k", k, "eligible", len(ranked))
	}
	Sort(ranked)
	if len(ranked) > opts.TopKContext {
		ranked = ranked[:opts.TopKContext]
	}

	metrics.CaptureRetrievalResults(len(ranked))
	log.Debug("Retrieved chunks", "hits", len(hits), "kept", len(ranked))
	return ranked, nil
}

// Sort orders by score descending, then document id and ordinal ascending.
func Sort(chunks []RankedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.DocumentId != b.Chunk.DocumentId {
			return a.Chunk.DocumentId < b.Chunk.DocumentId
		}
		return a.Chunk.Ordinal < b.Chunk.Ordinal
	})
}

// lookupStatuses fills statuses for documents not checked yet. Unknown and deleted
// documents stay absent.
func (r *Retriever) lookupStatuses(ctx context.Context, hits []vectorDB.Hit,
	statuses map[string]commonModels.DocStatus, checked map[string]bool) error {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if checked[h.Chunk.DocumentId] {
			continue
		}
		checked[h.Chunk.DocumentId] = true
		ids = append(ids, h.Chunk.DocumentId)
	}
	if len(ids) == 0 {
		return nil
	}
	found, err := r.docs.StatusOf(ctx, ids)
	if err != nil {
		for _, id := range ids {
			delete(checked, id)
		}
		return err
	}
	for id, status := range found {
		statuses[id] = status
	}
	return nil
}

func eligible(hits []vectorDB.Hit, statuses map[string]commonModels.DocStatus, threshold float32) []RankedChunk {
	ranked := make([]RankedChunk, 0, len(hits))
	for _, h := range hits {
		if statuses[h.Chunk.DocumentId] != commonModels.DocCompleted || h.Score < threshold {
			continue
		}
		ranked = append(ranked, RankedChunk{Chunk: h.Chunk, Score: h.Score})
	}
	return ranked
}

func lowestScore(hits []vectorDB.Hit) float32 {
	if len(hits) == 0 {
		return 0
	}
	lowest := hits[0].Score
	for _, h := range hits[1:] {
		lowest = min(lowest, h.Score)
	}
	return lowest
}
