// @title           Research Assistant API
// @version         1.0
// @description     Ingests documents and answers questions about them with citations
// @termsOfService  http://swagger.io/terms/

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the token.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/handlers"
	"github.com/akolanti/ResearchAssistant/internal/mcpserver"
	"github.com/akolanti/ResearchAssistant/internal/middleware"
	"github.com/akolanti/ResearchAssistant/internal/server"
	"github.com/akolanti/ResearchAssistant/internal/wiring"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/joho/godotenv"
)

var (
	listenAddr string
	configPath string
)

func main() {
	_ = godotenv.Load()

	//config
	flag.StringVar(&listenAddr, "listen-addr", "", "server listen address, overrides LISTEN_ADDR")
	flag.StringVar(&configPath, "config", "", "path to a config file")
	flag.Parse()

	settings, err := config.Load(configPath)
	if err != nil {
		logger_i.Init(false, "info")
		logger_i.NewLogger("main").Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if listenAddr != "" {
		settings.ListenAddr = listenAddr
	}

	logger_i.Init(settings.IsProd(), settings.LogLevel)
	var logger = logger_i.NewLogger("main")

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	logger.Info("Starting services")
	app, err := wiring.Build(serviceContext, settings)
	if err != nil {
		logger.Error("One or more services failed to initialize. Shutting down.", "error", err)
		return
	}

	middleware.Configure(settings.AuthToken, settings.NoAuthBypass)
	handlers.InitJobHandler(handlers.Services{
		Jobs:           app.Jobs,
		Rag:            app.Rag,
		Documents:      app.Documents,
		MaxUploadBytes: settings.MaxUploadBytes(),
		Probes:         app.Probes,
	})

	//init worker pool
	app.StartWorkers()

	//settle documents the last run left unfinished
	if rec, err := app.Documents.Recover(serviceContext); err != nil {
		logger.Error("Startup document sweep failed", "error", err)
	} else if rec.Failed+rec.Requeued > 0 {
		logger.Info("Startup document sweep", "failed", rec.Failed, "requeued", rec.Requeued)
	}

	mcp := mcpserver.New(app.Rag, app.Documents)

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       app.WorkerStop,
		Group:            app.WorkerGroup,
		CloseServices:    closeExternalServices,
	}
	go server.ShutDownHandler(shutdownParams)
	go server.CreateServer(settings.ListenAddr, mcp.Handler())

	<-stopExecution
	logger.Info("Server stopped")
}
