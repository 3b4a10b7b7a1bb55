package api

import "time"

type JobExternalStatus string

const (
	JobStatusError JobExternalStatus = "Error"
)

type JobResponse struct {
	Id        string            `json:"id" example:"job_cz109"`
	ChatId    string            `json:"chat_id" example:"chat_550"`
	Result    Result            `json:"result"`
	Error     *JobOutgoingError `json:"error,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
}

type JobOutgoingError struct {
	Code    int    `json:"code" example:"400"`
	Kind    string `json:"kind,omitempty" example:"GENERATION"`
	Message string `json:"message" example:"Job not found"`
	Retry   bool   `json:"can_retry" example:"false"`
}

type RAGResponse struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Grounded  bool       `json:"grounded"`
}

type Citation struct {
	Marker     int     `json:"marker" example:"1"`
	DocumentId string  `json:"document_id"`
	ChunkId    string  `json:"chunk_id"`
	Title      string  `json:"title,omitempty" example:"Attention Is All You Need"`
	Author     string  `json:"author,omitempty"`
	Location   string  `json:"location,omitempty" example:"Page 5"`
	Score      float32 `json:"score" example:"0.82"`
	Display    string  `json:"display" example:"Attention Is All You Need, Page 5"`
}

type Result struct {
	Status              string       `json:"status" example:"RUNNING"`
	Type                string       `json:"type,omitempty" example:"Query"`
	Step                string       `json:"step,omitempty" example:"Retrieval"`
	DocumentId          string       `json:"document_id,omitempty"`
	RAGExternalResponse *RAGResponse `json:"rag_response,omitempty"`
}

type InitJobResponse struct {
	Id        string `json:"id"`
	ChatId    string `json:"chat_id,omitempty"`
	StatusURL string `json:"status_url"`
}

// HealthResponse lists one entry per probed backend, "up" or the failure.
type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ErrorResponse is what the synchronous endpoints answer with on failure.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Kind      string `json:"kind" example:"NOT_FOUND"`
	Message   string `json:"message" example:"document not found"`
	Retryable bool   `json:"retryable" example:"false"`
}

type DocumentResponse struct {
	Id             string                 `json:"id"`
	SourceType     string                 `json:"source_type" example:"pdf"`
	Title          string                 `json:"title"`
	Author         string                 `json:"author,omitempty"`
	Status         string                 `json:"status" example:"processing"`
	ChunkCount     int                    `json:"chunk_count"`
	EmbeddingSpace string                 `json:"embedding_space,omitempty" example:"text-embedding-004@768"`
	RetryOf        string                 `json:"retry_of,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Error          *DocumentErrorResponse `json:"error,omitempty"`
}

type DocumentErrorResponse struct {
	Kind      string `json:"kind" example:"EXTRACTION"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type ConversationResponse struct {
	Id        string         `json:"id"`
	Title     string         `json:"title"`
	Turns     []TurnResponse `json:"turns"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type TurnResponse struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Grounded  bool       `json:"grounded"`
	CreatedAt time.Time  `json:"created_at"`
}

// StreamDone is the payload of the final "done" server sent event.
type StreamDone struct {
	ChatId string `json:"chat_id"`
	RAGResponse
}

type StreamDelta struct {
	Text string `json:"text"`
}

// requests---------------------

type ChatRequest struct {
	Message string `json:"message" validate:"required" `
	ChatID  string `json:"chatID,omitempty" `
}

type CreateDocumentRequest struct {
	SourceType string `json:"source_type" validate:"required" example:"url"`
	Content    string `json:"content,omitempty"`
	URL        string `json:"url,omitempty" example:"https://example.com/article"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
}
