package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/adapter/utils"
	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/handlers"
	"github.com/akolanti/ResearchAssistant/internal/middleware"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

var (
	server  *http.Server
	_logger *logger_i.Logger
)

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	WorkerStop       chan bool
	Group            *sync.WaitGroup
	CloseServices    context.CancelFunc
}

// Routes registers the api on r. mcpHandler may be nil.
func Routes(r chi.Router, mcpHandler http.Handler) {
	r.Get("/health", handlers.HealthHandler)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", middleware.CreateDocumentHandler)
		r.Get("/", middleware.ListDocumentsHandler)
		r.Post("/upload", middleware.UploadDocumentHandler)
		r.Get("/{id}", middleware.GetDocumentHandler)
		r.Delete("/{id}", middleware.DeleteDocumentHandler)
		r.Post("/{id}/retry", middleware.RetryDocumentHandler)
	})

	r.Post("/chat", middleware.ChatHandler)
	r.Post("/chat/stream", middleware.ChatStreamHandler)
	r.Get("/status/{id}", middleware.GetStatusHandler)

	r.Get("/conversations/{id}", middleware.GetConversationHandler)
	r.Delete("/conversations/{id}", middleware.DeleteConversationHandler)

	if mcpHandler != nil {
		r.Handle("/mcp", middleware.WrapHandler(mcpHandler))
		r.Handle("/mcp/*", middleware.WrapHandler(mcpHandler))
	}
}

func CreateServer(listenAddr string, mcpHandler http.Handler) {
	_logger = logger_i.NewLogger("Server")

	r := utils.GetRouter()
	Routes(r, mcpHandler)

	server = &http.Server{
		Addr:         listenAddr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	_logger.Info("Server is listening at", "address", listenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_logger.Error("Server crashed", "error", err.Error(), "addr", listenAddr)
	}
}

func ShutDownHandler(shutdownParams ShutdownParams) {
	state := <-shutdownParams.GracefulShutdown
	_logger.Info("Server is shutting down", "signal", state.String())

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		if server != nil {
			server.SetKeepAlivesEnabled(false)
			if err := server.Shutdown(ctx); err != nil {
				_logger.Error("Could not shutdown gracefully", "error", err)
			}
		}

		//close workers
		close(shutdownParams.WorkerStop)
		shutdownParams.Group.Wait()
		shutdownParams.CloseServices()
		close(shutdownParams.StopExecution)
		close(done)
	}()

	select {
	case <-done:
		_logger.Info("Gracefully shut down")
	case <-ctx.Done():
		_logger.Info("Force Shut down")
		os.Exit(1)
	}
}
