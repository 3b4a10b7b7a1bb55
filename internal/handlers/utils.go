package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/akolanti/ResearchAssistant/internal/adapter"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
)

const maxJsonBody = 1 << 20

func writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are gone, nothing left but logging
		logRH.Error("Error encoding response", "error", err)
	}
}

func validateId(ctx context.Context, id string) (result jobModel.Job, isFound bool) {
	if id == "" {
		logRH.Warn("Empty Job ID")
		return jobModel.Job{}, false
	}
	return GetJobStatus(ctx, id)
}

func validateContext(ctx context.Context) bool {
	log := logRH.WithContext(ctx)
	if ctx.Err() != nil {
		log.Warn("context error", "error", ctx.Err())
		return false
	}
	return true
}

// WriteErrorResponse answers in the job response shape the async endpoints use.
func WriteErrorResponse(w http.ResponseWriter, httpCode int, id string, error string) {
	writeJsonResponse(w, httpCode, adapter.BadRequest(id, error, httpCode))
}

// writeError answers with the status code mapped from the error kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := ragErrors.HTTPStatus(err)
	log := logRH.WithContext(r.Context()).With("path", r.URL.Path, "status", status)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
	} else {
		log.Debug("Request rejected", "error", err)
	}
	writeJsonResponse(w, status, adapter.ToErrorResponse(err))
}

func decodeJson(w http.ResponseWriter, r *http.Request, into any) error {
	body := http.MaxBytesReader(w, r.Body, maxJsonBody)
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logRH.Error("Couldn't close the request body", "error", err)
		}
	}(body)
	if err := json.NewDecoder(body).Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ragErrors.New(ragErrors.KindValidation, "request body too large")
		}
		return ragErrors.Wrap(ragErrors.KindValidation, err, "malformed request body")
	}
	return nil
}

