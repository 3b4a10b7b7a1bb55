package job

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/google/uuid"
)

type Service struct {
	JobChannel        chan jobModel.Job
	RequestCount      int64
	DispatcherChannel chan bool
	JobStore          jobModel.JobStore
	logger            *logger_i.Logger
}

type ServiceConfig struct {
	JobChannel        chan jobModel.Job
	RequestCount      int64
	DispatcherChannel chan bool
	JobStore          jobModel.JobStore
}

func InitJobService(cfg ServiceConfig) *Service {
	return &Service{
		JobChannel:        cfg.JobChannel,
		RequestCount:      cfg.RequestCount,
		DispatcherChannel: cfg.DispatcherChannel,
		JobStore:          cfg.JobStore,
		logger:            logger_i.NewLogger("JobService"),
	}
}

// EnqueueQuery queues a question. An empty chatId starts a new conversation when the job runs.
func (s *Service) EnqueueQuery(ctx context.Context, chatId string, question string) (jobModel.Job, error) {
	job := s.newJob(ctx, jobModel.JobTypeQuery)
	job.ChatId = chatId
	job.CurrentStep = jobModel.UserQueryInit
	job.JobPayload.Question = question
	return job, s.Enqueue(ctx, job)
}

// EnqueueIngest queues the ingestion of a pending document.
func (s *Service) EnqueueIngest(ctx context.Context, documentId string) error {
	job := s.newJob(ctx, jobModel.JobTypeIngest)
	job.CurrentStep = jobModel.IngestInit
	job.JobPayload.DocumentId = documentId
	return s.Enqueue(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, id string) (jobModel.Job, bool) {
	return s.JobStore.GetJob(ctx, id)
}

func (s *Service) newJob(ctx context.Context, jobType jobModel.JobType) jobModel.Job {
	return jobModel.Job{
		Id:          uuid.New().String(),
		TraceId:     logger_i.TraceId(ctx),
		JobType:     jobType,
		CreatedTime: time.Now(),
		Status:      jobModel.JobStatusQueued,
	}
}

// Enqueue records the job and blocks until the channel accepts it, which keeps a burst of
// requests from outrunning the workers.
func (s *Service) Enqueue(ctx context.Context, job jobModel.Job) error {
	log := s.logger.WithContext(ctx).With("job id", job.Id, "type", job.JobType)
	if err := s.JobStore.SaveJob(ctx, job); err != nil {
		log.Error("Failed to save queued job", "error", err)
		return ragErrors.Transient(ragErrors.KindUnknown, err, "could not record job")
	}

	metrics.IncrementJobsInQueue()
	select {
	case s.JobChannel <- job:
	case <-ctx.Done():
		metrics.DecrementJobsInQueue()
		return ragErrors.Transient(ragErrors.KindUnknown, ctx.Err(), fmt.Sprintf("job %s was not queued", job.Id))
	}
	log.Info("Created new job")

	// a new worker every RequestsPerNewWorkerCount requests, and for every ingestion since
	// those hold a worker for a long time. Idle workers retire on their own.
	accurateCount := atomic.AddInt64(&s.RequestCount, 1)
	if accurateCount%config.RequestsPerNewWorkerCount == 0 || job.JobType == jobModel.JobTypeIngest {
		s.signalDispatcher(log)
	}
	return nil
}

func (s *Service) signalDispatcher(log *logger_i.Logger) {
	if s.DispatcherChannel == nil {
		return
	}
	select {
	case s.DispatcherChannel <- true:
		metrics.StartDispatcherSignalCount()
		log.Debug("Signalled dispatcher")
	default:
		// a signal is already pending
	}
}
