package answer

import (
	"strings"

	"github.com/akolanti/ResearchAssistant/internal/rag/assembler"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
)

// NoContextCaveat opens every answer produced without sources.
const NoContextCaveat = "I don't have enough information in the provided sources to answer this question. Please add relevant documents first."

const groundedSystemPrompt = `You are a helpful research assistant. Answer questions based ONLY on the numbered sources in the context.

GUIDELINES:
1. Cite every claim with the number of the source it comes from, for example [1] or [1, 3].
2. Only use numbers that appear in the context. Never invent a source.
3. If the sources do not contain enough information, say so plainly.
4. Be concise but comprehensive and use direct quotes when they help.
5. Do not use knowledge outside the provided context.`

const noContextSystemPrompt = `You are a helpful research assistant. No source material relevant to the question was found.

GUIDELINES:
1. Do not answer from general knowledge and do not cite anything.
2. Explain briefly what kind of documents would help answer the question.
3. Keep the reply to a few sentences.`

func buildPrompt(question string, c assembler.Context) llm.Prompt {
	var b strings.Builder
	system := noContextSystemPrompt
	if c.Grounded() {
		system = groundedSystemPrompt
		b.WriteString(c.Sources)
		b.WriteString("\n\n")
	}
	if c.History != "" {
		b.WriteString(c.History)
		b.WriteString("\n")
	}
	b.WriteString("QUESTION: ")
	b.WriteString(question)
	return llm.Prompt{System: system, User: b.String()}
}
