package rag

import (
	"context"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/answer"
	"github.com/akolanti/ResearchAssistant/internal/rag/assembler"
	"github.com/akolanti/ResearchAssistant/internal/rag/retriever"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
)

func returnOutput(job jobModel.Job, res AskResult) jobModel.Job {
	job.JobPayload.Answer = res.Answer
	job.JobPayload.Citations = res.Citations
	job.JobPayload.Grounded = res.Grounded
	job.CurrentStep = jobModel.Complete
	return job
}

func logOutput(job jobModel.Job, status jobModel.InternalStatus, log *logger_i.Logger) jobModel.Job {
	job.CurrentStep = status
	log.Debug("ProcessRequest", "Current Status", job.CurrentStep)
	return job
}

func (s *service) jobError(job jobModel.Job, err error, message string) jobModel.Job {
	s.logger.Error(message, "jobId", job.Id, "step", job.CurrentStep, "error", err)

	job.Error = jobModel.JobError{
		Code:    ragErrors.HTTPStatus(err),
		Kind:    string(ragErrors.KindOf(err)),
		Message: err.Error(),
		Retry:   ragErrors.IsRetryable(err),
	}
	job.Status = jobModel.JobStatusError
	return job
}

// executeHistoryStep returns no turns for a conversation that is created with this question.
func (s *service) executeHistoryStep(ctx context.Context, log *logger_i.Logger, job *jobModel.Job, convId string, isNew bool) ([]chatModel.Turn, error) {
	*job = logOutput(*job, jobModel.HistoryCall, log)
	if isNew {
		return nil, nil
	}

	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("history_lookup", time.Since(start)) }()

	turns := s.budget.MaxHistoryTurns
	if turns <= 0 {
		turns = config.MaxHistoryTurns
	}
	return s.conversations.RecentTurns(ctx, convId, turns)
}

func (s *service) executeRetrievalStep(ctx context.Context, log *logger_i.Logger, job *jobModel.Job, question string) ([]retriever.RankedChunk, error) {
	*job = logOutput(*job, jobModel.RetrievalCall, log)
	return s.retriever.Retrieve(ctx, question)
}

func (s *service) executeAssembleStep(log *logger_i.Logger, job *jobModel.Job, chunks []retriever.RankedChunk, history []chatModel.Turn) assembler.Context {
	*job = logOutput(*job, jobModel.AssembleContext, log)

	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("context_assembly", time.Since(start)) }()

	c := s.assembler.Assemble(chunks, history, s.budget)
	log.Debug("Assembled context", "sources", len(c.Citations), "dropped", c.Dropped, "tokens", c.Tokens)
	return c
}

func (s *service) executeLLMStep(ctx context.Context, log *logger_i.Logger, job *jobModel.Job, question string, c assembler.Context) (answer.Result, error) {
	*job = logOutput(*job, jobModel.LLMCall, log)
	return s.generator.Generate(ctx, question, c)
}

func (s *service) executeConversationWriteStep(ctx context.Context, log *logger_i.Logger, job *jobModel.Job,
	convId string, isNew bool, question string, res answer.Result) error {
	*job = logOutput(*job, jobModel.ConversationWrite, log)

	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("conversation_write", time.Since(start)) }()

	if isNew {
		if _, err := s.conversations.Create(ctx, convId, chatModel.TitleFromQuestion(question)); err != nil {
			return err
		}
	}
	turn := chatModel.Turn{
		Question:  question,
		Answer:    res.Answer,
		Citations: res.Citations,
		Grounded:  res.Grounded,
		CreatedAt: time.Now(),
	}
	return s.conversations.AppendTurn(ctx, convId, turn)
}
