package main

import (
	"bytes"
	"context"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/rag/embedding"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
	"github.com/akolanti/ResearchAssistant/internal/wiring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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
	return "Overlap keeps context across chunk borders [1].", nil
}
func (fakeLLM) Stream(context.Context, llm.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if yield("Overlap keeps context ", nil) {
			yield("[1].", nil)
		}
	}
}
func (fakeLLM) Model() string { return "fake-llm" }

// useMemoryApp makes every command in the test share one in-memory service graph.
func useMemoryApp(t *testing.T) {
	t.Helper()
	s := config.Defaults()
	s.StoreBackend = "memory"
	s.VectorBackend = "memory"
	s.EmbeddingDimensions = 4
	s.ContentDir = t.TempDir()
	shared, err := wiring.BuildWith(context.Background(), s, wiring.Providers{Embedding: fakeEmbedder{}, LLM: fakeLLM{}})
	require.NoError(t, err)

	previous := buildApp
	buildApp = func(context.Context, config.Settings) (*wiring.App, error) { return shared, nil }
	pollInterval = 5 * time.Millisecond
	t.Cleanup(func() { buildApp = previous })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	ingestText, ingestNoWait, outputJSON, askStream = false, false, false, false
	ingestTitle, ingestAuthor, askChatId = "", "", ""
	topK = 0
}

func TestIngestAskSearch(t *testing.T) {
	useMemoryApp(t)
	t.Cleanup(resetFlags)

	out, err := run(t, "ingest", "--text", "--title", "Chunking notes",
		"Documents are split into chunks.\n\nOverlap keeps context across chunk borders so answers stay grounded.")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Chunking notes")
	resetFlags()

	out, err = run(t, "ask", "Why", "do", "chunks", "overlap?")
	require.NoError(t, err)
	assert.Contains(t, out, "Overlap keeps context across chunk borders [1].")
	assert.Contains(t, out, "[1] Chunking notes")
	assert.Contains(t, out, "conversation: ")
	resetFlags()

	out, err = run(t, "ask", "--stream", "And again?")
	require.NoError(t, err)
	assert.Contains(t, out, "Overlap keeps context [1].")
	resetFlags()

	out, err = run(t, "search", "-n", "1", "overlap")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Chunking notes")
	assert.NotContains(t, out, "2. ")
	resetFlags()

	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestStatus_UnknownDocument(t *testing.T) {
	useMemoryApp(t)
	_, err := run(t, "status", "does-not-exist")
	assert.Error(t, err)
}

func TestCommands_Args(t *testing.T) {
	useMemoryApp(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"ingest"}, "accepts 1 arg(s)"},
		{[]string{"delete"}, "accepts 1 arg(s)"},
		{[]string{"ask"}, "requires at least 1 arg(s)"},
		{[]string{"mcp", "extra"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b", snippet("a\n\n b", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}
