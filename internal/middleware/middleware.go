package middleware

import (
	"net/http"
	"strconv"

	"github.com/akolanti/ResearchAssistant/internal/handlers"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
}

var ChatHandler = Wrap(handlers.ChatHandler)
var ChatStreamHandler = Wrap(handlers.ChatStreamHandler)
var GetStatusHandler = Wrap(handlers.GetStatusHandler)

var CreateDocumentHandler = Wrap(handlers.CreateDocumentHandler)
var UploadDocumentHandler = Wrap(handlers.UploadDocumentHandler)
var ListDocumentsHandler = Wrap(handlers.ListDocumentsHandler)
var GetDocumentHandler = Wrap(handlers.GetDocumentHandler)
var DeleteDocumentHandler = Wrap(handlers.DeleteDocumentHandler)
var RetryDocumentHandler = Wrap(handlers.RetryDocumentHandler)

var GetConversationHandler = Wrap(handlers.GetConversationHandler)
var DeleteConversationHandler = Wrap(handlers.DeleteConversationHandler)

// WrapHandler applies the same chain to handlers that are not plain funcs, such as the MCP endpoint.
func WrapHandler(next http.Handler) http.Handler {
	return Wrap(next.ServeHTTP)
}

func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200} //metrics
		re := processRequest(requestResponseStruct{req: r, writer: rec})
		if re.badRequest.isBadRequest {
			handleBadRequest(re)
			recordRequest(re.req, rec.Status)
			return
		}
		next(rec, re.req)
		recordRequest(re.req, rec.Status)
	}
}

// recordRequest labels by route pattern so ids in paths do not explode the series.
func recordRequest(r *http.Request, status int) {
	path := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		path = rctx.RoutePattern()
	}
	metrics.HttpRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func processRequest(re requestResponseStruct) requestResponseStruct {
	re.logger = logger_i.NewLogger("middleware")
	re = injectTrace(re)
	if re.badRequest.isBadRequest {
		return re
	}
	re.logger.Debug("New request received", "method", re.req.Method, "path", re.req.URL.Path)
	re = rateLimiter(re)
	if re.badRequest.isBadRequest {
		return re
	}
	return authenticate(re)
}
