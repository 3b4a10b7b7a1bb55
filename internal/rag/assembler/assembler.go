// Package assembler turns ranked chunks and conversation history into the text a model
// answers from, within a token budget.
package assembler

import (
	"sort"
	"strconv"
	"strings"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/retriever"
	"github.com/akolanti/ResearchAssistant/internal/rag/tokens"
)

const (
	sourcesHeader = "CONTEXT FROM SOURCES:\n\n"
	historyHeader = "CONVERSATION HISTORY:\n"
	untitled      = "Untitled"
)

type Budget struct {
	MaxContextTokens int
	HistoryTokens    int
	MaxHistoryTurns  int
}

func DefaultBudget() Budget {
	return Budget{
		MaxContextTokens: config.MaxContextTokens,
		HistoryTokens:    config.HistoryTokenBudget,
		MaxHistoryTurns:  config.MaxHistoryTurns,
	}
}

// Entry is what a marker in the context points at.
type Entry struct {
	Marker int
	Chunk  commonModels.Chunk
	Score  float32
}

// CitationMap is keyed by marker number, 1-based.
type CitationMap map[int]Entry

type Context struct {
	Sources   string
	History   string
	Citations CitationMap
	// Dropped counts chunks left out to fit the budget.
	Dropped int
	Tokens  int
}

// Grounded is false when no source made it into the context.
func (c Context) Grounded() bool {
	return len(c.Citations) > 0
}

type Assembler struct {
	counter tokens.Counter
}

func New(counter tokens.Counter) *Assembler {
	if counter == nil {
		counter = tokens.Estimate{}
	}
	return &Assembler{counter: counter}
}

// Assemble keeps the best scoring chunks that fit MaxContextTokens whole, numbering them
// [1], [2]... in score order. history is oldest first.
func (a *Assembler) Assemble(chunks []retriever.RankedChunk, history []chatModel.Turn, budget Budget) Context {
	ranked := append([]retriever.RankedChunk(nil), chunks...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	kept := len(ranked)
	sources := renderSources(ranked[:kept])
	sourceTokens := a.counter.Count(sources)
	for kept > 0 && sourceTokens > budget.MaxContextTokens {
		kept--
		sources = renderSources(ranked[:kept])
		sourceTokens = a.counter.Count(sources)
	}
	dropped := len(ranked) - kept
	if dropped > 0 {
		metrics.AddContextDrops(dropped)
	}

	citations := make(CitationMap, kept)
	for i, c := range ranked[:kept] {
		citations[i+1] = Entry{Marker: i + 1, Chunk: c.Chunk, Score: c.Score}
	}

	historyText := a.renderHistory(history, budget)
	return Context{
		Sources:   sources,
		History:   historyText,
		Citations: citations,
		Dropped:   dropped,
		Tokens:    sourceTokens + a.counter.Count(historyText),
	}
}

func renderSources(chunks []retriever.RankedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(sourcesHeader)
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[" + strconv.Itoa(i+1) + "] " + label(c.Chunk) + "\n")
		b.WriteString(c.Chunk.Text)
	}
	return b.String()
}

func label(c commonModels.Chunk) string {
	title := c.Title
	if title == "" {
		title = untitled
	}
	if c.Location != "" {
		return title + " (" + c.Location + ")"
	}
	return title
}

// renderHistory picks turns newest first until the budget or turn cap is hit and renders
// them in chronological order.
func (a *Assembler) renderHistory(history []chatModel.Turn, budget Budget) string {
	if len(history) == 0 || budget.HistoryTokens <= 0 || budget.MaxHistoryTurns <= 0 {
		return ""
	}
	used := a.counter.Count(historyHeader)
	var picked []string
	for i := len(history) - 1; i >= 0 && len(picked) < budget.MaxHistoryTurns; i-- {
		block := renderTurn(history[i])
		cost := a.counter.Count(block)
		if used+cost > budget.HistoryTokens {
			break
		}
		used += cost
		picked = append(picked, block)
	}
	if len(picked) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(historyHeader)
	for i := len(picked) - 1; i >= 0; i-- {
		b.WriteString(picked[i])
	}
	return b.String()
}

func renderTurn(t chatModel.Turn) string {
	return "User: " + t.Question + "\nAssistant: " + t.Answer + "\n"
}
