package server

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/handlers"
	"github.com/akolanti/ResearchAssistant/internal/middleware"
	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
	"github.com/akolanti/ResearchAssistant/internal/wiring"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const token = "test-token"

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string, _ embedding.TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0, 0}
	}
	return out, nil
}
func (fakeEmbedder) Model() string     { return "fake-embed" }
func (fakeEmbedder) Dimensions() int   { return 4 }
func (fakeEmbedder) MaxBatchSize() int { return 16 }

type fakeLLM struct{}

func (fakeLLM) Generate(context.Context, llm.Prompt) (string, error) {
	return "Attention relates every token to every other token [1].", nil
}
func (fakeLLM) Stream(context.Context, llm.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if yield("Attention relates tokens ", nil) {
			yield("[1].", nil)
		}
	}
}
func (fakeLLM) Model() string { return "fake-llm" }

var router *chi.Mux

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "server-test")
	if err != nil {
		panic(err)
	}
	s := config.Defaults()
	s.StoreBackend = "memory"
	s.VectorBackend = "memory"
	s.EmbeddingDimensions = 4
	s.ContentDir = dir

	app, err := wiring.BuildWith(context.Background(), s, wiring.Providers{Embedding: fakeEmbedder{}, LLM: fakeLLM{}})
	if err != nil {
		panic(err)
	}
	handlers.InitJobHandler(handlers.Services{Jobs: app.Jobs, Rag: app.Rag, Documents: app.Documents, MaxUploadBytes: s.MaxUploadBytes()})
	middleware.Configure(token, false)
	middleware.SetLimit(rate.Inf, 0)
	app.StartWorkers()

	router = chi.NewRouter()
	Routes(router, nil)

	code := m.Run()
	app.StopWorkers()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// tryDecode is decode for Eventually conditions, which must not stop the test goroutine.
func tryDecode[T any](rec *httptest.ResponseRecorder) (T, bool) {
	var out T
	err := json.Unmarshal(rec.Body.Bytes(), &out)
	return out, err == nil
}

// ingestText adds a text document and waits until it is indexed.
func ingestText(t *testing.T, title, content string) api.DocumentResponse {
	t.Helper()
	rec := do(t, http.MethodPost, "/documents", api.CreateDocumentRequest{SourceType: "text", Content: content, Title: title})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	doc := decode[api.DocumentResponse](t, rec)
	assert.Equal(t, "pending", doc.Status)

	require.Eventually(t, func() bool {
		got, ok := tryDecode[api.DocumentResponse](do(t, http.MethodGet, "/documents/"+doc.Id, nil))
		doc = got
		return ok && doc.Status == "completed"
	}, 5*time.Second, 10*time.Millisecond)
	return doc
}

const attentionNotes = "Self attention relates every token to every other token in the sequence.\n\n" +
	"Multi head attention runs several attention functions in parallel."

func TestAuthentication(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(config.TRACE_ID_HEADER))

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTraceIdIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(config.TRACE_ID_HEADER, "trace-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-123", rec.Header().Get(config.TRACE_ID_HEADER))
}

func TestDocumentLifecycle(t *testing.T) {
	doc := ingestText(t, "Attention notes", attentionNotes)
	assert.Positive(t, doc.ChunkCount)
	assert.Equal(t, "fake-embed@4", doc.EmbeddingSpace)

	list := decode[api.DocumentListResponse](t, do(t, http.MethodGet, "/documents", nil))
	ids := make([]string, 0, len(list.Documents))
	for _, d := range list.Documents {
		ids = append(ids, d.Id)
	}
	assert.Contains(t, ids, doc.Id)

	rec := do(t, http.MethodPost, "/documents/"+doc.Id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", decode[api.ErrorResponse](t, rec).Error.Kind)

	rec = do(t, http.MethodDelete, "/documents/"+doc.Id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, http.MethodGet, "/documents/"+doc.Id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDocument_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"empty text", api.CreateDocumentRequest{SourceType: "text"}},
		{"private url", api.CreateDocumentRequest{SourceType: "url", URL: "http://127.0.0.1/admin"}},
		{"unknown type", api.CreateDocumentRequest{SourceType: "fax"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodPost, "/documents", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "VALIDATION", decode[api.ErrorResponse](t, rec).Error.Kind)
		})
	}
}

func TestUploadDocument(t *testing.T) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("document", "notes.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("# Notes\n\nPositional encodings give the model token order."))
	require.NoError(t, err)
	require.NoError(t, form.WriteField("title", "Uploaded notes"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	doc := decode[api.DocumentResponse](t, rec)
	assert.Equal(t, "Uploaded notes", doc.Title)

	req = httptest.NewRequest(http.MethodPost, "/documents/upload", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatJob(t *testing.T) {
	ingestText(t, "Attention notes", attentionNotes)

	rec := do(t, http.MethodPost, "/chat", api.ChatRequest{Message: "What does attention do?"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	queued := decode[api.InitJobResponse](t, rec)
	assert.Equal(t, "status/"+queued.Id, queued.StatusURL)

	var status api.JobResponse
	require.Eventually(t, func() bool {
		got, ok := tryDecode[api.JobResponse](do(t, http.MethodGet, "/"+queued.StatusURL, nil))
		status = got
		return ok && status.Result.Status == "COMPLETE"
	}, 5*time.Second, 10*time.Millisecond)

	require.NotNil(t, status.Result.RAGExternalResponse)
	assert.True(t, status.Result.RAGExternalResponse.Grounded)
	assert.Contains(t, status.Result.RAGExternalResponse.Answer, "[1]")
	require.NotEmpty(t, status.Result.RAGExternalResponse.Citations)
	assert.NotEmpty(t, status.Result.RAGExternalResponse.Citations[0].DocumentId)
	require.NotEmpty(t, status.ChatId)

	conv := decode[api.ConversationResponse](t, do(t, http.MethodGet, "/conversations/"+status.ChatId, nil))
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "What does attention do?", conv.Turns[0].Question)

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, "/conversations/"+status.ChatId, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, "/conversations/"+status.ChatId, nil).Code)
}

func TestChatJob_Rejections(t *testing.T) {
	rec := do(t, http.MethodPost, "/chat", api.ChatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, http.MethodPost, "/chat", api.ChatRequest{Message: "hi", ChatID: "no-such-chat"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, http.MethodGet, "/status/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatStream(t *testing.T) {
	ingestText(t, "Attention notes", attentionNotes)

	rec := do(t, http.MethodPost, "/chat/stream", api.ChatRequest{Message: "Explain attention"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: meta\n")
	assert.Contains(t, body, "event: delta\n")
	assert.Contains(t, body, "event: done\n")
	assert.NotContains(t, body, "event: error\n")
	assert.Less(t, strings.Index(body, "event: meta"), strings.Index(body, "event: done"))

	var done api.StreamDone
	for _, block := range strings.Split(body, "\n\n") {
		if strings.HasPrefix(block, "event: done\n") {
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "event: done\ndata: ")), &done))
		}
	}
	assert.Equal(t, "Attention relates tokens [1].", done.Answer)
	assert.NotEmpty(t, done.ChatId)

	rec = do(t, http.MethodPost, "/chat/stream", api.ChatRequest{Message: "again", ChatID: "no-such-chat"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
