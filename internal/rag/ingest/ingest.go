package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/chunker"
	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/extract"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"golang.org/x/sync/errgroup"
)

type Extractor interface {
	Extract(ctx context.Context, src extract.Source) (extract.Result, error)
}

type PipelineConfig struct {
	BatchSize       int
	Parallelism     int
	Retry           retry.Config
	RollbackTimeout time.Duration
}

// Pipeline drives one document through pending -> processing -> completed | failed.
type Pipeline struct {
	docs      commonModels.DocumentStore
	extractor Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     vectorDB.Index
	content   *ContentStore
	inflight  *inflight
	cfg       PipelineConfig
	logger    *logger_i.Logger
}

func NewPipeline(docs commonModels.DocumentStore, extractor Extractor, chunker *chunker.Chunker,
	embedder embedding.Embedder, index vectorDB.Index, content *ContentStore, cfg PipelineConfig) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.EmbeddingBatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = config.RollbackTimeout
	}
	cfg.Retry.OnRetry = func(attempt int, err error) { metrics.IncrementRetry("vector_index") }
	return &Pipeline{
		docs:      docs,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		content:   content,
		inflight:  newInflight(),
		cfg:       cfg,
		logger:    logger_i.NewLogger("Document Ingestion"),
	}
}

// Process ingests a pending document. Documents that are gone, tombstoned or already
// past pending are skipped without error so a redelivered job is harmless.
func (p *Pipeline) Process(ctx context.Context, documentId string) error {
	log := p.logger.WithContext(ctx).With("documentId", documentId)

	doc, err := p.docs.Get(ctx, documentId)
	if errors.Is(err, ragErrors.ErrNotFound) {
		log.Info("Document no longer exists, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	if deleted, err := p.docs.IsDeleted(ctx, documentId); err != nil {
		return err
	} else if deleted {
		log.Info("Document is being deleted, skipping")
		return nil
	}
	if doc.Status != commonModels.DocPending {
		log.Info("Document is not pending, skipping", "status", doc.Status)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := p.inflight.start(documentId, cancel)
	defer p.inflight.finish(documentId, r)

	started := time.Now()
	doc, err = p.docs.Transition(runCtx, documentId, commonModels.DocProcessing, func(d *commonModels.Document) {
		d.ProcessingStartedAt = &started
	})
	if errors.Is(err, ragErrors.ErrDeleted) || errors.Is(err, ragErrors.ErrConflict) || errors.Is(err, ragErrors.ErrInvalidTransition) {
		log.Info("Lost the race to start processing, skipping", "reason", err)
		return nil
	}
	if err != nil {
		return err
	}
	metrics.CaptureDocumentTransition(string(commonModels.DocProcessing))
	log.Debug("Processing document", "sourceType", doc.SourceType, "ref", doc.ContentRef)

	res, count, err := p.run(runCtx, doc)
	if err == nil {
		err = p.checkAlive(runCtx, documentId)
	}
	if err == nil {
		completed := time.Now()
		_, err = p.docs.Transition(runCtx, documentId, commonModels.DocCompleted, func(d *commonModels.Document) {
			d.ChunkCount = count
			d.CompletedAt = &completed
			d.EmbeddingSpace = p.embedder.Space()
			d.Error = nil
			if d.Title == "" {
				d.Title = res.Title
			}
			if d.Author == "" {
				d.Author = res.Author
			}
		})
	}
	if err != nil {
		return p.fail(runCtx, doc, err)
	}

	metrics.CaptureDocumentTransition(string(commonModels.DocCompleted))
	metrics.CaptureExecutionMetrics("document_ingestion", time.Since(started))
	p.content.Remove(doc.ContentRef)
	log.Info("Document ingested", "chunks", count, "elapsed", time.Since(started))
	return nil
}

func (p *Pipeline) run(ctx context.Context, doc commonModels.Document) (extract.Result, int, error) {
	res, err := p.extractor.Extract(ctx, extract.SourceOf(doc, ""))
	if err != nil {
		return res, 0, err
	}

	chunks := p.chunker.ChunkDocument(res.Text, res.Locators)
	if len(chunks) == 0 {
		return res, 0, ragErrors.New(ragErrors.KindChunking, "document produced no chunks")
	}
	title := doc.Title
	if title == "" {
		title = res.Title
	}
	author := doc.Author
	if author == "" {
		author = res.Author
	}
	for i := range chunks {
		chunks[i].Id = commonModels.ChunkId(doc.Id, chunks[i].Ordinal)
		chunks[i].DocumentId = doc.Id
		chunks[i].Title = title
		chunks[i].Author = author
		chunks[i].SourceType = doc.SourceType
	}
	p.logger.WithContext(ctx).Debug("Chunked document", "documentId", doc.Id, "chunks", len(chunks))

	// batches run concurrently, the barrier below is what ordering depends on
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism)
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		batch := chunks[start:min(start+p.cfg.BatchSize, len(chunks))]
		g.Go(func() error {
			return p.indexBatch(gctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return res, 0, err
	}
	return res, len(chunks), nil
}

func (p *Pipeline) indexBatch(ctx context.Context, batch []commonModels.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	points := make([]vectorDB.Point, len(batch))
	for i, c := range batch {
		points[i] = vectorDB.Point{Chunk: c, Vector: vectors[i]}
	}

	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("vector_upsert", time.Since(start)) }()
	err = retry.Do(ctx, p.cfg.Retry, func(ctx context.Context) error {
		return p.index.Upsert(ctx, points)
	})
	if err != nil {
		return ragErrors.Wrap(ragErrors.KindIndexing, err, "upsert batch")
	}
	metrics.AddChunksIndexed(len(points))
	return nil
}

func (p *Pipeline) checkAlive(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deleted, err := p.docs.IsDeleted(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		return ragErrors.Terminal(ragErrors.KindDeleted, ragErrors.ErrDeleted, "document deleted during ingestion")
	}
	return nil
}

// fail removes whatever was indexed and records the failure. It runs on a context that
// survives the cancellation that may have caused the failure.
func (p *Pipeline) fail(ctx context.Context, doc commonModels.Document, cause error) error {
	log := p.logger.WithContext(ctx).With("documentId", doc.Id)
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.RollbackTimeout)
	defer cancel()

	err := retry.Do(rbCtx, p.cfg.Retry, func(ctx context.Context) error {
		return p.index.DeleteByDocument(ctx, doc.Id)
	})
	if err != nil {
		log.Error("Rollback of indexed chunks failed", "error", err)
	}

	kind := ragErrors.KindOf(cause)
	if kind == ragErrors.KindUnknown && ctx.Err() != nil {
		if deleted, _ := p.docs.IsDeleted(rbCtx, doc.Id); deleted {
			kind = ragErrors.KindDeleted
		}
		cause = ragErrors.Transient(kind, cause, "ingestion interrupted")
	}
	metrics.CaptureIngestFailure(string(kind))
	log.Error("Ingestion failed", "kind", kind, "error", cause)

	_, err = p.docs.Transition(rbCtx, doc.Id, commonModels.DocFailed, func(d *commonModels.Document) {
		d.Error = &commonModels.DocumentError{
			Kind:      string(kind),
			Message:   cause.Error(),
			Retryable: ragErrors.IsRetryable(cause),
		}
	})
	switch {
	case errors.Is(err, ragErrors.ErrDeleted):
		log.Info("Document deleted while failing, record left to the delete")
	case err != nil:
		log.Error("Could not record failure", "error", err)
	default:
		metrics.CaptureDocumentTransition(string(commonModels.DocFailed))
	}
	return fmt.Errorf("ingest %s: %w", doc.Id, cause)
}
