// Package mcpserver exposes ask, search and document status as MCP tools so agents can
// use the research assistant directly.
package mcpserver

import (
	"context"
	"net/http"

	"github.com/akolanti/ResearchAssistant/internal/rag"
	"github.com/akolanti/ResearchAssistant/internal/rag/ingest"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "research-assistant"
	serverVersion = "1.0.0"
	maxTopK       = 20
)

type Server struct {
	server    *mcp.Server
	handler   http.Handler
	rag       rag.Service
	documents ingest.Service
	logger    *logger_i.Logger
}

func New(ragService rag.Service, documents ingest.Service) *Server {
	s := &Server{
		server:    mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
		rag:       ragService,
		documents: documents,
		logger:    logger_i.NewLogger("MCP Server"),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ask",
		Description: "Answer a question from the ingested documents with numbered citations. " +
			"Pass conversation_id from an earlier answer to ask a follow up.",
	}, s.askTool)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_sources",
		Description: "Find the document passages most relevant to a query without generating an answer.",
	}, s.searchSourcesTool)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_status",
		Description: "Report the ingestion status of a document: pending, processing, completed or failed.",
	}, s.documentStatusTool)

	s.handler = mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
	return s
}

// Handler serves the tools over SSE.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RunStdio serves the tools on stdin and stdout until ctx is done or the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
