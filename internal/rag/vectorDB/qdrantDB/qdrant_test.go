package qdrantDB

import (
	"errors"
	"testing"

	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		prefix, space, want string
	}{
		{"research_chunks", "text-embedding-004@768", "research_chunks_text_embedding_004_768"},
		{"research_chunks", "", "research_chunks"},
		{"c", "models/gemini-embedding-001@1536", "c_models_gemini_embedding_001_1536"},
	}
	for _, tt := range tests {
		if got := CollectionName(tt.prefix, tt.space); got != tt.want {
			t.Errorf("CollectionName(%q, %q) = %q, want %q", tt.prefix, tt.space, got, tt.want)
		}
	}
}

func TestPayloadKeepsCitationFields(t *testing.T) {
	chunk := commonModels.Chunk{
		Id: "c1", DocumentId: "d1", Ordinal: 4, Text: "body", StartOffset: 10, EndOffset: 14,
		Section: "Intro", Location: "Page 2", Title: "Paper", Author: "Ada", SourceType: commonModels.SourcePDF,
	}
	got := fromPayload(qdrant.NewValueMap(toPayload(chunk)))
	if got != chunk {
		t.Errorf("payload mapping lost fields: got %+v", got)
	}
}

func TestClassify(t *testing.T) {
	err := classify(ragErrors.KindIndexing, status.Error(codes.Unavailable, "down"), "upsert")
	if !ragErrors.IsRetryable(err) || ragErrors.KindOf(err) != ragErrors.KindIndexing {
		t.Errorf("unavailable should be a transient indexing error, got %v", err)
	}
	err = classify(ragErrors.KindRetrieval, errors.New("bad request"), "query")
	if ragErrors.IsRetryable(err) {
		t.Errorf("plain errors are terminal, got %v", err)
	}
}
