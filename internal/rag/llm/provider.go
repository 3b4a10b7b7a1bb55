package llm

import (
	"context"
	"iter"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

// Prompt is a fully assembled request: System carries the grounding rules,
// User the sources, history and question.
type Prompt struct {
	System string
	User   string
}

type Provider interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	// Stream yields text fragments in order. A non nil error ends the sequence.
	Stream(ctx context.Context, prompt Prompt) iter.Seq2[string, error]
	Model() string
}

// ClassifyError tags a provider error as a Generation error, transient when retrying can help.
func ClassifyError(err error, transient func(error) bool, message string) error {
	if err == nil {
		return nil
	}
	if ragErrors.KindOf(err) != ragErrors.KindUnknown {
		return err
	}
	if (transient != nil && transient(err)) || retry.TransientGRPC(err) || retry.TransientNetwork(err) {
		return ragErrors.Transient(ragErrors.KindGeneration, err, message)
	}
	return ragErrors.Terminal(ragErrors.KindGeneration, err, message)
}
