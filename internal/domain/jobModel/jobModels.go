package jobModel

import (
	"context"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
)

type JobStatus string
type InternalStatus string

type JobType string

const (
	JobStatusQueued   JobStatus = "QUEUED"
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusError    JobStatus = "Error"

	UserQueryInit     InternalStatus = "Init"
	HistoryCall       InternalStatus = "History"
	RetrievalCall     InternalStatus = "Retrieval"
	AssembleContext   InternalStatus = "AssembleContext"
	LLMCall           InternalStatus = "LLM"
	ConversationWrite InternalStatus = "ConversationWrite"

	IngestInit       InternalStatus = "IngestInit"
	IngestProcessing InternalStatus = "IngestProcessing"
	Error            InternalStatus = "Error"

	Complete InternalStatus = "Complete"

	JobTypeQuery  JobType = "Query"
	JobTypeIngest JobType = "Ingest"
)

// IsTerminal reports whether a job in this status can still change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

type Job struct {
	Id          string         `json:"id"`
	ChatId      string         `json:"chat_id"`
	TraceId     string         `json:"trace_id"`
	JobType     JobType        `json:"job_type"`
	JobPayload  JobPayload     `json:"job_payload"`
	Error       JobError       `json:"error,omitempty"`
	CreatedTime time.Time      `json:"created_time"`
	EndTime     time.Time      `json:"end_time,omitempty"`
	Status      JobStatus      `json:"status"`
	CurrentStep InternalStatus `json:"current_step"`
}

type JobError struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

type JobPayload struct {
	Question  string               `json:"question,omitempty"`
	Answer    string               `json:"answer,omitempty"`
	Citations []chatModel.Citation `json:"citations,omitempty"`
	Grounded  bool                 `json:"grounded,omitempty"`

	DocumentId string `json:"document_id,omitempty"`
}

// JobStore keeps job snapshots for pollers. SaveJob refuses to overwrite a terminal job
// and wraps ragErrors.ErrConflict when it does. Jobs expire after config.RedisJobStoreTTL.
type JobStore interface {
	GetJob(ctx context.Context, jobId string) (Job, bool)
	SaveJob(ctx context.Context, job Job) error
}
