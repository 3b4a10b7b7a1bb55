package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/akolanti/ResearchAssistant/internal/adapter"
	"github.com/akolanti/ResearchAssistant/internal/adapter/utils"
	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/rag"
	"github.com/akolanti/ResearchAssistant/internal/rag/answer"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
)

var logRH = logger_i.NewLogger("RequestHandler")

// ChatHandler godoc
// @Summary      Start a new chat job
// @Description  Accepts a message, initializes a background processing job, and returns a job ID to track status.
// @Tags         Messaging
// @Accept       json
// @Produce      json
// @Param        request  body      api.ChatRequest      true  "Chat Message and optional Chat ID"
// @Success      202      {object}  api.InitJobResponse  "Job successfully created"
// @Failure      400      {object}  api.JobResponse      "Invalid request data"
// @Failure      404      {object}  api.JobResponse      "Unknown chat ID"
// @Router       /chat [post]
func ChatHandler(w http.ResponseWriter, request *http.Request) {
	if !validateContext(request.Context()) {
		logRH.Warn("Invalid Context by request", "remote", request.RemoteAddr)
		return
	}

	var requestData api.ChatRequest
	if err := decodeJson(w, request, &requestData); err != nil {
		logRH.Warn("Bad Chat Request", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, requestData.ChatID, "Bad Request")
		return
	}
	newJob, err := CreateQueryJob(request.Context(), requestData)
	if err != nil {
		status := ragErrors.HTTPStatus(err)
		WriteErrorResponse(w, status, requestData.ChatID, errorMessage(err, status))
		return
	}
	writeJsonResponse(w, http.StatusAccepted, adapter.ToInitJobResponse(newJob))
}

// GetStatusHandler godoc
// @Summary      Get job status
// @Description  Retrieves the current status of a specific job using its ID.
// @Tags         Job Status
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Job ID "
// @Success      200  {object}  api.JobResponse   "Successful retrieval of job status"
// @Failure      404  {object}  api.JobResponse   "Job not found (returns Error object within JobResponse)"
// @Router       /status/{id} [get]
func GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	idString := utils.GetChiURLParam(r, "id")
	result, isFound := validateId(r.Context(), idString)

	logRH.Debug("Get Status Request", "URL path", r.URL.Path)
	if !isFound {
		WriteErrorResponse(w, http.StatusNotFound, idString, "Job not found")
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToAPIResponse(result))
}

// ChatStreamHandler godoc
// @Summary      Ask a question and stream the answer
// @Description  Answers synchronously as server sent events: "meta" with the chat id, "delta" text fragments, then "done" with citations or "error".
// @Tags         Messaging
// @Accept       json
// @Produce      text/event-stream
// @Param        request  body      api.ChatRequest  true  "Chat Message and optional Chat ID"
// @Success      200      {object}  api.StreamDone   "Final event payload"
// @Failure      400      {object}  api.ErrorResponse
// @Failure      404      {object}  api.ErrorResponse
// @Router       /chat/stream [post]
func ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, ragErrors.New(ragErrors.KindConfiguration, "streaming unsupported"))
		return
	}

	var requestData api.ChatRequest
	if err := decodeJson(w, r, &requestData); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := handlerInstance.rag.AskStream(r.Context(), rag.AskRequest{ConversationId: requestData.ChatID, Question: requestData.Message})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	log := logRH.WithContext(r.Context()).With("chatId", session.ConversationId)
	writeEvent(w, flusher, "meta", map[string]string{"chat_id": session.ConversationId})
	for ev := range session.Events {
		switch {
		case ev.Err != nil:
			log.Warn("Stream ended with error", "error", ev.Err)
			writeEvent(w, flusher, "error", adapter.ToErrorResponse(ev.Err).Error)
		case ev.Done && ev.Result != nil:
			writeEvent(w, flusher, "done", toStreamDone(session.ConversationId, requestData.Message, *ev.Result))
		case ev.Delta != "":
			writeEvent(w, flusher, "delta", api.StreamDelta{Text: ev.Delta})
		}
	}
}

func toStreamDone(chatId string, question string, res answer.Result) api.StreamDone {
	return api.StreamDone{
		ChatId: chatId,
		RAGResponse: api.RAGResponse{
			Question:  question,
			Answer:    res.Answer,
			Citations: adapter.ToCitations(res.Citations),
			Grounded:  res.Grounded,
		},
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		logRH.Error("Error encoding event", "event", event, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		logRH.Debug("Client went away", "error", err)
		return
	}
	flusher.Flush()
}

// errorMessage keeps internal causes out of client responses.
func errorMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}
