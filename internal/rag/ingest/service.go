package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/extract"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"github.com/google/uuid"
)

// Queue hands a document id to whatever runs Pipeline.Process.
type Queue interface {
	EnqueueIngest(ctx context.Context, documentId string) error
}

type CreateRequest struct {
	SourceType commonModels.SourceType
	// Content is pasted text, URL a web page or video
	Content string
	URL     string
	Title   string
	Author  string
}

type UploadRequest struct {
	FileName string
	Body     io.Reader
	Title    string
	Author   string
}

// Service is the document lifecycle as the API and CLI see it.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (commonModels.Document, error)
	Upload(ctx context.Context, req UploadRequest) (commonModels.Document, error)
	Get(ctx context.Context, id string) (commonModels.Document, error)
	List(ctx context.Context) ([]commonModels.Document, error)
	Delete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) (commonModels.Document, error)
	Recover(ctx context.Context) (Recovery, error)
}

// Recovery counts what a startup sweep settled.
type Recovery struct {
	Failed   int
	Requeued int
}

type ServiceConfig struct {
	MaxUploadBytes     int64
	DeleteAwaitTimeout time.Duration
	Retry              retry.Config
}

type service struct {
	docs     commonModels.DocumentStore
	index    vectorDB.Index
	pipeline *Pipeline
	queue    Queue
	content  *ContentStore
	cfg      ServiceConfig
	logger   *logger_i.Logger
}

var uploadTypes = map[string]commonModels.SourceType{
	".pdf":  commonModels.SourcePDF,
	".txt":  commonModels.SourceText,
	".md":   commonModels.SourceText,
	".docx": commonModels.SourceText,
	".odt":  commonModels.SourceText,
	".rtf":  commonModels.SourceText,
}

func NewService(docs commonModels.DocumentStore, index vectorDB.Index, pipeline *Pipeline, queue Queue,
	content *ContentStore, cfg ServiceConfig) Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.MaxUploadSizeMB << 20
	}
	if cfg.DeleteAwaitTimeout <= 0 {
		cfg.DeleteAwaitTimeout = config.DeleteAwaitTimeout
	}
	return &service{
		docs:     docs,
		index:    index,
		pipeline: pipeline,
		queue:    queue,
		content:  content,
		cfg:      cfg,
		logger:   logger_i.NewLogger("Document Service"),
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (commonModels.Document, error) {
	id := uuid.New().String()
	doc := commonModels.Document{Id: id, SourceType: req.SourceType, Title: req.Title, Author: req.Author}

	switch req.SourceType {
	case commonModels.SourceText:
		if len(strings.TrimSpace(req.Content)) == 0 {
			return doc, ragErrors.New(ragErrors.KindValidation, "content is required for text documents")
		}
		ref, err := s.content.Save(id, ".txt", strings.NewReader(req.Content), s.cfg.MaxUploadBytes)
		if err != nil {
			return doc, ragErrors.Wrap(ragErrors.KindValidation, err, "could not store text")
		}
		doc.ContentRef = ref
	case commonModels.SourceURL:
		if err := extract.ValidateURL(req.URL); err != nil {
			return doc, err
		}
		doc.ContentRef = req.URL
	case commonModels.SourceYoutube:
		if _, ok := extract.VideoId(req.URL); !ok {
			return doc, ragErrors.New(ragErrors.KindValidation, "invalid youtube url")
		}
		doc.ContentRef = req.URL
	case commonModels.SourcePDF:
		return doc, ragErrors.New(ragErrors.KindValidation, "pdf documents are uploaded as files")
	default:
		return doc, ragErrors.New(ragErrors.KindValidation, fmt.Sprintf("unsupported source type %q", req.SourceType))
	}
	return s.admit(ctx, doc)
}

func (s *service) Upload(ctx context.Context, req UploadRequest) (commonModels.Document, error) {
	ext := strings.ToLower(filepath.Ext(req.FileName))
	sourceType, ok := uploadTypes[ext]
	if !ok {
		return commonModels.Document{}, ragErrors.New(ragErrors.KindValidation, fmt.Sprintf("unsupported file type %q", ext))
	}
	id := uuid.New().String()
	ref, err := s.content.Save(id, ext, req.Body, s.cfg.MaxUploadBytes)
	if err != nil {
		return commonModels.Document{}, ragErrors.Wrap(ragErrors.KindValidation, err, "could not store upload")
	}
	title := req.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	}
	return s.admit(ctx, commonModels.Document{
		Id: id, SourceType: sourceType, Title: title, Author: req.Author, ContentRef: ref,
	})
}

// admit stores a new pending document and queues it.
func (s *service) admit(ctx context.Context, doc commonModels.Document) (commonModels.Document, error) {
	log := s.logger.WithContext(ctx).With("documentId", doc.Id)
	now := time.Now()
	doc.Status = commonModels.DocPending
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.docs.Create(ctx, doc); err != nil {
		s.content.Remove(doc.ContentRef)
		return doc, err
	}
	if err := s.queue.EnqueueIngest(ctx, doc.Id); err != nil {
		log.Error("Could not queue document, removing it", "error", err)
		_ = s.docs.Delete(ctx, doc.Id)
		s.content.Remove(doc.ContentRef)
		return doc, err
	}
	log.Info("Document queued", "sourceType", doc.SourceType)
	return doc, nil
}

func (s *service) Get(ctx context.Context, id string) (commonModels.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return doc, err
	}
	if deleted, err := s.docs.IsDeleted(ctx, id); err == nil && deleted {
		return commonModels.Document{}, ragErrors.Terminal(ragErrors.KindNotFound, ragErrors.ErrDeleted, "document is being deleted")
	}
	return doc, nil
}

// List is newest first.
func (s *service) List(ctx context.Context) ([]commonModels.Document, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

// Delete tombstones first so nothing new starts, then stops in-flight work before removing
// vectors and the record. A failed vector delete leaves the tombstone, which keeps the
// document out of retrieval until the delete is repeated.
func (s *service) Delete(ctx context.Context, id string) error {
	log := s.logger.WithContext(ctx).With("documentId", id)
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.MarkDeleted(ctx, id); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.DeleteAwaitTimeout)
	stopped := s.pipeline.inflight.cancelAndWait(waitCtx, id)
	cancel()
	if !stopped {
		log.Warn("In-flight ingestion did not stop in time, it will observe the tombstone")
	}

	err = retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		return s.index.DeleteByDocument(ctx, id)
	})
	if err != nil {
		log.Error("Could not delete vectors", "error", err)
		return ragErrors.Wrap(ragErrors.KindIndexing, err, "delete document vectors")
	}
	s.content.Remove(doc.ContentRef)
	if err := s.docs.Delete(ctx, id); err != nil && !errors.Is(err, ragErrors.ErrNotFound) {
		return err
	}
	log.Info("Document deleted")
	return nil
}

// Retry re-ingests a failed document under a new id. The failed record stays for reference.
func (s *service) Retry(ctx context.Context, id string) (commonModels.Document, error) {
	old, err := s.Get(ctx, id)
	if err != nil {
		return old, err
	}
	if old.Status != commonModels.DocFailed {
		return old, ragErrors.Terminal(ragErrors.KindInvalidState, ragErrors.ErrInvalidTransition,
			fmt.Sprintf("only failed documents can be retried, document is %s", old.Status))
	}

	err = retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		return s.index.DeleteByDocument(ctx, old.Id)
	})
	if err != nil {
		return old, ragErrors.Wrap(ragErrors.KindIndexing, err, "clean up failed document vectors")
	}

	newId := uuid.New().String()
	ref, err := s.content.Copy(old.ContentRef, newId)
	if err != nil {
		return old, ragErrors.Wrap(ragErrors.KindExtraction, err, "source content of the failed document is gone")
	}
	s.logger.WithContext(ctx).Info("Retrying document", "documentId", old.Id, "newDocumentId", newId)
	return s.admit(ctx, commonModels.Document{
		Id:         newId,
		SourceType: old.SourceType,
		Title:      old.Title,
		Author:     old.Author,
		ContentRef: ref,
		RetryOf:    old.Id,
	})
}

// Recover settles what a previous run left behind. A processing document no worker of this
// process holds can never finish, so it is failed as retryable after its partial vectors are
// removed. Pending documents are queued again; a duplicate delivery loses the start race.
func (s *service) Recover(ctx context.Context) (Recovery, error) {
	var out Recovery
	docs, err := s.docs.List(ctx)
	if err != nil {
		return out, err
	}
	for _, doc := range docs {
		log := s.logger.WithContext(ctx).With("documentId", doc.Id)
		switch doc.Status {
		case commonModels.DocProcessing:
			if s.pipeline.inflight.active(doc.Id) {
				continue
			}
			err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
				return s.index.DeleteByDocument(ctx, doc.Id)
			})
			if err != nil {
				log.Warn("Could not remove partial vectors of interrupted document", "error", err)
			}
			cause := ragErrors.Transient(ragErrors.KindIndexing, ragErrors.ErrInterrupted, "ingestion did not finish")
			_, err = s.docs.Transition(ctx, doc.Id, commonModels.DocFailed, func(d *commonModels.Document) {
				d.Error = &commonModels.DocumentError{
					Kind:      string(ragErrors.KindIndexing),
					Message:   cause.Error(),
					Retryable: true,
				}
			})
			if err != nil {
				log.Info("Interrupted document moved on before it could be failed", "reason", err)
				continue
			}
			metrics.CaptureDocumentTransition(string(commonModels.DocFailed))
			log.Info("Failed document interrupted by a restart")
			out.Failed++
		case commonModels.DocPending:
			if err := s.queue.EnqueueIngest(ctx, doc.Id); err != nil {
				return out, err
			}
			log.Info("Queued pending document again")
			out.Requeued++
		}
	}
	return out, nil
}
