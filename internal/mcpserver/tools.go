package mcpserver

import (
	"context"
	"errors"
	"strings"

	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/rag"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type AskInput struct {
	Question       string `json:"question" jsonschema:"The question to answer (required)"`
	ConversationId string `json:"conversation_id,omitempty" jsonschema:"Conversation to continue, leave empty to start a new one"`
}

type AskOutput struct {
	ConversationId string           `json:"conversation_id" jsonschema:"Pass this back to ask a follow up"`
	Answer         string           `json:"answer" jsonschema:"Answer text with [n] citation markers"`
	Citations      []CitationOutput `json:"citations" jsonschema:"Sources the markers point at"`
	Grounded       bool             `json:"grounded" jsonschema:"False when no document supported the answer"`
}

type CitationOutput struct {
	Marker     int     `json:"marker"`
	DocumentId string  `json:"document_id"`
	ChunkId    string  `json:"chunk_id"`
	Source     string  `json:"source" jsonschema:"Title, author and location for display"`
	Score      float32 `json:"score"`
}

type SearchInput struct {
	Query string `json:"query" jsonschema:"What to look for, in natural language (required)"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Number of passages to return, defaults to the configured context size, at most 20"`
}

type SearchOutput struct {
	Results []SearchResult `json:"results"`
}

type SearchResult struct {
	DocumentId string  `json:"document_id"`
	ChunkId    string  `json:"chunk_id"`
	Title      string  `json:"title,omitempty"`
	Author     string  `json:"author,omitempty"`
	Location   string  `json:"location,omitempty"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
}

type DocumentStatusInput struct {
	DocumentId string `json:"document_id" jsonschema:"Id returned when the document was added (required)"`
}

type DocumentStatusOutput struct {
	DocumentId string `json:"document_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

func (s *Server) askTool(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, errors.New("question is required")
	}
	res, err := s.rag.Ask(ctx, rag.AskRequest{ConversationId: input.ConversationId, Question: input.Question})
	if err != nil {
		s.logger.WithContext(ctx).Warn("ask tool failed", "error", err)
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		ConversationId: res.ConversationId,
		Answer:         res.Answer,
		Citations:      toCitations(res.Citations),
		Grounded:       res.Grounded,
	}, nil
}

func (s *Server) searchSourcesTool(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	out := SearchOutput{Results: []SearchResult{}}
	if strings.TrimSpace(input.Query) == "" {
		return nil, out, errors.New("query is required")
	}
	topK := min(input.TopK, maxTopK)
	chunks, err := s.rag.Search(ctx, input.Query, topK)
	if err != nil {
		return nil, out, err
	}
	for _, c := range chunks {
		out.Results = append(out.Results, SearchResult{
			DocumentId: c.Chunk.DocumentId,
			ChunkId:    c.Chunk.Id,
			Title:      c.Chunk.Title,
			Author:     c.Chunk.Author,
			Location:   c.Chunk.Location,
			Score:      c.Score,
			Text:       c.Chunk.Text,
		})
	}
	return nil, out, nil
}

func (s *Server) documentStatusTool(ctx context.Context, _ *mcp.CallToolRequest, input DocumentStatusInput) (*mcp.CallToolResult, DocumentStatusOutput, error) {
	if input.DocumentId == "" {
		return nil, DocumentStatusOutput{}, errors.New("document_id is required")
	}
	doc, err := s.documents.Get(ctx, input.DocumentId)
	if err != nil {
		return nil, DocumentStatusOutput{}, err
	}
	out := DocumentStatusOutput{
		DocumentId: doc.Id,
		Title:      doc.Title,
		Status:     string(doc.Status),
		ChunkCount: doc.ChunkCount,
	}
	if doc.Error != nil {
		out.ErrorKind = doc.Error.Kind
		out.Error = doc.Error.Message
		out.Retryable = doc.Error.Retryable
	}
	return nil, out, nil
}

func toCitations(citations []chatModel.Citation) []CitationOutput {
	out := make([]CitationOutput, 0, len(citations))
	for _, c := range citations {
		out = append(out, CitationOutput{
			Marker:     c.Marker,
			DocumentId: c.DocumentId,
			ChunkId:    c.ChunkId,
			Source:     c.Display(),
			Score:      c.Score,
		})
	}
	return out
}
