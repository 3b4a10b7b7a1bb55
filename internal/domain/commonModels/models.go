package commonModels

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourceText    SourceType = "text"
	SourceURL     SourceType = "url"
	SourcePDF     SourceType = "pdf"
	SourceYoutube SourceType = "youtube"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceText, SourceURL, SourcePDF, SourceYoutube:
		return true
	}
	return false
}

type DocStatus string

const (
	DocPending    DocStatus = "pending"
	DocProcessing DocStatus = "processing"
	DocCompleted  DocStatus = "completed"
	DocFailed     DocStatus = "failed"
)

// transitions is the whole ingestion state machine. Terminal states have no entry.
var transitions = map[DocStatus][]DocStatus{
	DocPending:    {DocProcessing},
	DocProcessing: {DocCompleted, DocFailed},
}

func CanTransition(from, to DocStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s DocStatus) Terminal() bool {
	return s == DocCompleted || s == DocFailed
}

type Document struct {
	Id                  string         `json:"id"`
	SourceType          SourceType     `json:"source_type"`
	Title               string         `json:"title"`
	Author              string         `json:"author,omitempty"`
	ContentRef          string         `json:"content_ref"`
	Status              DocStatus      `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	ProcessingStartedAt *time.Time     `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	ChunkCount          int            `json:"chunk_count"`
	EmbeddingSpace      string         `json:"embedding_space,omitempty"`
	RetryOf             string         `json:"retry_of,omitempty"`
	Error               *DocumentError `json:"error,omitempty"`
}

// DocumentError is what pollers see for a failed document.
type DocumentError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Chunk offsets are rune offsets into the normalized document text, EndOffset exclusive.
type Chunk struct {
	Id          string     `json:"chunk_id"`
	DocumentId  string     `json:"document_id"`
	Ordinal     int        `json:"ordinal"`
	Text        string     `json:"content"`
	StartOffset int        `json:"start_offset"`
	EndOffset   int        `json:"end_offset"`
	Section     string     `json:"section,omitempty"`
	Location    string     `json:"location,omitempty"`
	Title       string     `json:"title,omitempty"`
	Author      string     `json:"author,omitempty"`
	SourceType  SourceType `json:"source_type,omitempty"`
}

// Locator marks where a page or transcript segment begins in the normalized text.
type Locator struct {
	Offset int    `json:"offset"`
	Label  string `json:"label"`
}

// ChunkId is stable for a (document, ordinal) pair so re-ingesting the same text
// overwrites instead of duplicating.
func ChunkId(documentId string, ordinal int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(documentId+"#"+strconv.Itoa(ordinal))).String()
}

// DocumentStore holds document records and their deletion tombstones. Transition is a
// compare-and-set on the current status and fails with ragErrors.ErrDeleted once the
// document has been tombstoned.
type DocumentStore interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context) ([]Document, error)
	Transition(ctx context.Context, id string, to DocStatus, mutate func(*Document)) (Document, error)
	StatusOf(ctx context.Context, ids []string) (map[string]DocStatus, error)
	MarkDeleted(ctx context.Context, id string) error
	IsDeleted(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}
