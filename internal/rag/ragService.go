package rag

import (
	"context"
	"errors"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/answer"
	"github.com/akolanti/ResearchAssistant/internal/rag/assembler"
	"github.com/akolanti/ResearchAssistant/internal/rag/ingest"
	"github.com/akolanti/ResearchAssistant/internal/rag/retriever"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/google/uuid"
)

/*
Service is the public contract the worker pool, the HTTP handlers, the CLI and the MCP
tools call. service holds the retriever, assembler, generator and stores and stays private
so callers cannot reach around it. Tests build it from mocks through NewService.
*/
type Service interface {
	// ProcessRequest answers the question of a query job and records the outcome on the job.
	ProcessRequest(ctx context.Context, job jobModel.Job) jobModel.Job
	// IngestDocument runs the pipeline for the document of an ingest job.
	IngestDocument(ctx context.Context, job jobModel.Job) jobModel.Job

	Ask(ctx context.Context, req AskRequest) (AskResult, error)
	AskStream(ctx context.Context, req AskRequest) (StreamSession, error)
	Search(ctx context.Context, query string, topK int) ([]retriever.RankedChunk, error)

	Conversation(ctx context.Context, id string) (chatModel.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// AskRequest starts a new conversation when ConversationId is empty.
type AskRequest struct {
	ConversationId string
	Question       string
}

type AskResult struct {
	ConversationId string
	Answer         string
	Citations      []chatModel.Citation
	Grounded       bool
}

// StreamSession delivers answer events. The final event is sent only after the turn was
// stored, so a consumer that sees Done can rely on the conversation holding the answer.
type StreamSession struct {
	ConversationId string
	Events         <-chan answer.StreamEvent
}

type Dependencies struct {
	Retriever     *retriever.Retriever
	Assembler     *assembler.Assembler
	Generator     *answer.Generator
	Pipeline      *ingest.Pipeline
	Conversations chatModel.ConversationStore
	Budget        assembler.Budget
}

type service struct {
	retriever     *retriever.Retriever
	assembler     *assembler.Assembler
	generator     *answer.Generator
	pipeline      *ingest.Pipeline
	conversations chatModel.ConversationStore
	budget        assembler.Budget
	locks         *keyedMutex
	logger        *logger_i.Logger
}

func NewService(deps Dependencies) Service {
	budget := deps.Budget
	if budget.MaxContextTokens <= 0 {
		budget = assembler.DefaultBudget()
	}
	return &service{
		retriever:     deps.Retriever,
		assembler:     deps.Assembler,
		generator:     deps.Generator,
		pipeline:      deps.Pipeline,
		conversations: deps.Conversations,
		budget:        budget,
		locks:         newKeyedMutex(),
		logger:        logger_i.NewLogger("RAG Service"),
	}
}

func (s *service) ProcessRequest(ctx context.Context, job jobModel.Job) jobModel.Job {
	log := s.logger.WithContext(ctx).With("JobId", job.Id)
	res, err := s.ask(ctx, AskRequest{ConversationId: job.ChatId, Question: job.JobPayload.Question}, &job, log)
	if err != nil {
		return s.jobError(job, err, "query failed")
	}
	job.ChatId = res.ConversationId
	return returnOutput(job, res)
}

func (s *service) IngestDocument(ctx context.Context, job jobModel.Job) jobModel.Job {
	log := s.logger.WithContext(ctx).With("JobId", job.Id, "documentId", job.JobPayload.DocumentId)
	job = logOutput(job, jobModel.IngestProcessing, log)

	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("ingest_job", time.Since(start)) }()

	if err := s.pipeline.Process(ctx, job.JobPayload.DocumentId); err != nil {
		return s.jobError(job, err, "ingestion failed")
	}
	job.CurrentStep = jobModel.Complete
	return job
}

func (s *service) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	job := jobModel.Job{ChatId: req.ConversationId, CurrentStep: jobModel.UserQueryInit}
	return s.ask(ctx, req, &job, s.logger.WithContext(ctx))
}

// ask holds the conversation lock from the history read until the turn is written.
func (s *service) ask(ctx context.Context, req AskRequest, job *jobModel.Job, log *logger_i.Logger) (AskResult, error) {
	convId, isNew, err := s.resolveConversation(ctx, req)
	if err != nil {
		return AskResult{}, err
	}
	unlock := s.locks.Lock(convId)
	defer unlock()
	log = log.With("chatId", convId)

	history, err := s.executeHistoryStep(ctx, log, job, convId, isNew)
	if err != nil {
		return AskResult{}, err
	}
	chunks, err := s.executeRetrievalStep(ctx, log, job, req.Question)
	if err != nil {
		return AskResult{}, err
	}
	assembled := s.executeAssembleStep(log, job, chunks, history)
	res, err := s.executeLLMStep(ctx, log, job, req.Question, assembled)
	if err != nil {
		return AskResult{}, err
	}
	if err := s.executeConversationWriteStep(ctx, log, job, convId, isNew, req.Question, res); err != nil {
		return AskResult{}, err
	}
	return AskResult{ConversationId: convId, Answer: res.Answer, Citations: res.Citations, Grounded: res.Grounded}, nil
}

func (s *service) AskStream(ctx context.Context, req AskRequest) (StreamSession, error) {
	log := s.logger.WithContext(ctx)
	convId, isNew, err := s.resolveConversation(ctx, req)
	if err != nil {
		return StreamSession{}, err
	}
	unlock := s.locks.Lock(convId)
	log = log.With("chatId", convId)
	job := jobModel.Job{ChatId: convId, CurrentStep: jobModel.UserQueryInit}

	history, err := s.executeHistoryStep(ctx, log, &job, convId, isNew)
	if err != nil {
		unlock()
		return StreamSession{}, err
	}
	chunks, err := s.executeRetrievalStep(ctx, log, &job, req.Question)
	if err != nil {
		unlock()
		return StreamSession{}, err
	}
	assembled := s.executeAssembleStep(log, &job, chunks, history)
	job = logOutput(job, jobModel.LLMCall, log)
	upstream, err := s.generator.GenerateStream(ctx, req.Question, assembled)
	if err != nil {
		unlock()
		return StreamSession{}, err
	}

	events := make(chan answer.StreamEvent, 16)
	go func() {
		defer close(events)
		defer unlock()
		for ev := range upstream {
			if ev.Done && ev.Err == nil && ev.Result != nil {
				if err := s.executeConversationWriteStep(ctx, log, &job, convId, isNew, req.Question, *ev.Result); err != nil {
					ev = answer.StreamEvent{Done: true, Err: err}
				}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return StreamSession{ConversationId: convId, Events: events}, nil
}

func (s *service) Search(ctx context.Context, query string, topK int) ([]retriever.RankedChunk, error) {
	opts := s.retriever.Options()
	if topK > 0 {
		opts.TopKContext = topK
		opts.TopKRetrieval = max(opts.TopKRetrieval, topK)
	}
	return s.retriever.RetrieveWith(ctx, query, opts)
}

func (s *service) Conversation(ctx context.Context, id string) (chatModel.Conversation, error) {
	return s.conversations.Get(ctx, id)
}

func (s *service) DeleteConversation(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.conversations.Delete(ctx, id)
}

// resolveConversation hands out a fresh id for new conversations, they are stored with their first turn.
func (s *service) resolveConversation(ctx context.Context, req AskRequest) (string, bool, error) {
	if req.Question == "" {
		return "", false, ragErrors.New(ragErrors.KindValidation, "question is required")
	}
	if req.ConversationId == "" {
		return uuid.New().String(), true, nil
	}
	ok, err := s.conversations.Exists(ctx, req.ConversationId)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, ragErrors.Terminal(ragErrors.KindNotFound, ragErrors.ErrNotFound, "conversation not found")
	}
	return req.ConversationId, false, nil
}

// IsConversationMissing reports errors that mean the conversation id is unknown.
func IsConversationMissing(err error) bool {
	return errors.Is(err, ragErrors.ErrNotFound)
}
