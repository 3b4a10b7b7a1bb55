package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/job"
	"github.com/akolanti/ResearchAssistant/internal/rag"
	"github.com/akolanti/ResearchAssistant/internal/rag/ingest"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
)

var (
	handlerInstance *JobHandler //private singleton
	once            sync.Once
	logJH           = logger_i.NewLogger("JobHandler")
)

type JobHandler struct {
	jobs           *job.Service
	rag            rag.Service
	documents      ingest.Service
	maxUploadBytes int64
	probes         map[string]Probe
}

type Services struct {
	Jobs           *job.Service
	Rag            rag.Service
	Documents      ingest.Service
	MaxUploadBytes int64
	Probes         map[string]Probe
}

func InitJobHandler(services Services) {
	once.Do(func() {
		handlerInstance = newJobHandler(services)
		logJH = logger_i.NewLogger("JobHandler")
		logRH = logger_i.NewLogger("RequestHandler")
		logJH.Info("Starting job handler")
	})
}

func newJobHandler(services Services) *JobHandler {
	return &JobHandler{
		jobs:           services.Jobs,
		rag:            services.Rag,
		documents:      services.Documents,
		maxUploadBytes: services.MaxUploadBytes,
		probes:         services.Probes,
	}
}

// CreateQueryJob validates the request and queues it. The job answers with the chat id it ran under.
func CreateQueryJob(ctx context.Context, chatReq api.ChatRequest) (jobModel.Job, error) {
	if err := ValidateChatRequest(ctx, chatReq); err != nil {
		return jobModel.Job{}, err
	}
	logJH.WithContext(ctx).Info("To create new job", "chatId", chatReq.ChatID)
	return handlerInstance.jobs.EnqueueQuery(ctx, chatReq.ChatID, chatReq.Message)
}

func GetJobStatus(ctx context.Context, id string) (result jobModel.Job, isFound bool) {
	if handlerInstance != nil {
		return handlerInstance.jobs.GetJob(ctx, id)
	}
	return result, false
}

func ValidateChatRequest(ctx context.Context, chatReq api.ChatRequest) error {
	if handlerInstance == nil {
		return ragErrors.New(ragErrors.KindConfiguration, "job handler is not initialised")
	}
	logJH.WithContext(ctx).Debug("Validating chat id", "chatId", chatReq.ChatID)
	if strings.TrimSpace(chatReq.Message) == "" {
		return ragErrors.New(ragErrors.KindValidation, "message is required")
	}
	if chatReq.ChatID == "" {
		return nil
	}
	_, err := handlerInstance.rag.Conversation(ctx, chatReq.ChatID)
	return err
}
