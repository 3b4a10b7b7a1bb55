package adapter

import (
	"fmt"
	"net/http"

	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
)

func ToInitJobResponse(job jobModel.Job) api.InitJobResponse {
	return api.InitJobResponse{
		Id:        job.Id,
		ChatId:    job.ChatId,
		StatusURL: fmt.Sprintf("status/%s", job.Id),
	}
}

func ToAPIResponse(job jobModel.Job) api.JobResponse {

	var errorPtr *api.JobOutgoingError
	if job.Error.Message != "" || job.Error.Code != 0 {
		errorPtr = &api.JobOutgoingError{
			Code:    job.Error.Code,
			Kind:    job.Error.Kind,
			Message: job.Error.Message,
			Retry:   job.Error.Retry,
		}
	}

	result := api.Result{
		Status:              string(job.Status),
		Type:                string(job.JobType),
		Step:                string(job.CurrentStep),
		DocumentId:          job.JobPayload.DocumentId,
		RAGExternalResponse: ToRAGExternalStatus(job.JobPayload),
	}

	return api.JobResponse{
		Id:        job.Id,
		ChatId:    job.ChatId,
		StartTime: job.CreatedTime,
		EndTime:   job.EndTime,
		Error:     errorPtr,
		Result:    result,
	}
}

func ToRAGExternalStatus(ragData jobModel.JobPayload) *api.RAGResponse {
	if ragData.Answer == "" {
		return nil
	}
	return &api.RAGResponse{
		Question:  ragData.Question,
		Answer:    ragData.Answer,
		Citations: ToCitations(ragData.Citations),
		Grounded:  ragData.Grounded,
	}
}

func ToCitations(citations []chatModel.Citation) []api.Citation {
	out := make([]api.Citation, 0, len(citations))
	for _, c := range citations {
		out = append(out, api.Citation{
			Marker:     c.Marker,
			DocumentId: c.DocumentId,
			ChunkId:    c.ChunkId,
			Title:      c.Title,
			Author:     c.Author,
			Location:   c.Location,
			Score:      c.Score,
			Display:    c.Display(),
		})
	}
	return out
}

// BadRequest is the job shaped rejection; retry is advertised for throttled requests only.
func BadRequest(id string, message string, code int) api.JobResponse {
	return api.JobResponse{
		Id:     id,
		Result: api.Result{Status: string(api.JobStatusError)},
		Error: &api.JobOutgoingError{
			Code:    code,
			Kind:    kindForStatus(code),
			Message: message,
			Retry:   code == http.StatusTooManyRequests,
		},
	}
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusNotFound:
		return string(ragErrors.KindNotFound)
	case http.StatusBadRequest:
		return string(ragErrors.KindValidation)
	}
	return ""
}
