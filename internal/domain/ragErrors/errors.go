// Package ragErrors is the error taxonomy shared by the pipeline. Every error that leaves a
// component carries a Kind and whether retrying the same call can help.
package ragErrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindExtraction    Kind = "EXTRACTION"
	KindChunking      Kind = "CHUNKING"
	KindEmbedding     Kind = "EMBEDDING"
	KindIndexing      Kind = "INDEXING"
	KindRetrieval     Kind = "RETRIEVAL"
	KindGeneration    Kind = "GENERATION"
	KindCitation      Kind = "CITATION"
	KindValidation    Kind = "VALIDATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindInvalidState  Kind = "INVALID_STATE"
	KindDeleted       Kind = "DELETED"
	KindConfiguration Kind = "CONFIGURATION"
	KindUnknown       Kind = "UNKNOWN"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDeleted           = errors.New("deleted")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("concurrent modification")
	ErrInterrupted       = errors.New("interrupted by a restart")
)

type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags err with kind. Retryability is inherited from err when it already carries one.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: IsRetryable(err), Err: err}
}

func Transient(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: true, Err: err}
}

func Terminal(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: false, Err: err}
}

// KindOf returns the outermost kind in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDeleted):
		return KindDeleted
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return KindInvalidState
	}
	return KindUnknown
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindChunking:
		return http.StatusBadRequest
	case KindNotFound, KindDeleted:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusConflict
	case KindRetrieval, KindIndexing, KindEmbedding:
		return http.StatusServiceUnavailable
	case KindGeneration, KindExtraction:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
