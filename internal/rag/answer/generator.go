// Package answer runs the generative model over an assembled context and makes sure every
// citation in the answer points at a chunk that was actually in that context.
package answer

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
	"unicode"

	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/assembler"
	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

type Result struct {
	Answer    string
	Citations []chatModel.Citation
	Grounded  bool
	// Dropped counts markers removed because they matched no source.
	Dropped int
	Model   string
}

// StreamEvent carries either a text delta, a terminal error, or the final result with Done set.
type StreamEvent struct {
	Delta  string
	Done   bool
	Result *Result
	Err    error
}

type Generator struct {
	provider llm.Provider
	retry    retry.Config
	logger   *logger_i.Logger
}

func NewGenerator(provider llm.Provider, retryCfg retry.Config) *Generator {
	logger := logger_i.NewLogger("Answer Generator").With("model", provider.Model())
	r := retryCfg
	r.Logger = logger
	r.OnRetry = func(attempt int, err error) { metrics.IncrementRetry("generation") }
	return &Generator{provider: provider, retry: r, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, question string, c assembler.Context) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ragErrors.New(ragErrors.KindValidation, "question is empty")
	}
	log := g.logger.WithContext(ctx)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("llm_generation", time.Since(start)) }()

	raw, err := retry.DoWithResult(ctx, g.retry, func(ctx context.Context) (string, error) {
		return g.provider.Generate(ctx, buildPrompt(question, c))
	})
	if err != nil {
		log.Error("Generation failed", "error", err)
		return Result{}, llm.ClassifyError(err, nil, "generation failed")
	}

	text, citations, dropped := Reconcile(raw, c.Citations, log)
	return g.finish(c, text, citations, dropped)
}

// finish trims the reconciled text the same way for both paths. Citation positions move
// with the trimmed leading space.
func (g *Generator) finish(c assembler.Context, text string, citations []chatModel.Citation, dropped int) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}, ragErrors.Terminal(ragErrors.KindGeneration, errors.New("empty answer"), "model returned no usable text")
	}
	lead := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	for i := range citations {
		citations[i].Position -= lead
	}
	res := Result{Answer: trimmed, Citations: citations, Grounded: c.Grounded(), Dropped: dropped, Model: g.provider.Model()}
	if !res.Grounded {
		res.Answer = NoContextCaveat + "\n\n" + trimmed
		res.Citations = []chatModel.Citation{}
	}
	if res.Citations == nil {
		res.Citations = []chatModel.Citation{}
	}
	return res, nil
}

// GenerateStream delivers reconciled text as it arrives. Failures before the first fragment
// are retried like Generate, later ones end the stream with an error event. The channel is
// closed after the final event.
func (g *Generator) GenerateStream(ctx context.Context, question string, c assembler.Context) (<-chan StreamEvent, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ragErrors.New(ragErrors.KindValidation, "question is empty")
	}
	events := make(chan StreamEvent, 16)
	go g.produce(ctx, question, c, events)
	return events, nil
}

func (g *Generator) produce(ctx context.Context, question string, c assembler.Context, events chan<- StreamEvent) {
	defer close(events)
	log := g.logger.WithContext(ctx)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("llm_generation_stream", time.Since(start)) }()

	send := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		log.Error("Streaming generation failed", "error", err)
		send(StreamEvent{Err: llm.ClassifyError(err, nil, "generation failed"), Done: true})
	}

	var (
		next  func() (string, error, bool)
		stop  func()
		first string
	)
	// the stream outlives a single attempt, so it runs on ctx rather than the attempt context
	err := retry.Do(ctx, g.retry, func(context.Context) error {
		n, s := iter.Pull2(g.provider.Stream(ctx, buildPrompt(question, c)))
		fragment, err, ok := n()
		if !ok {
			s()
			return ragErrors.Terminal(ragErrors.KindGeneration, errors.New("empty stream"), "model returned no text")
		}
		if err != nil {
			s()
			return err
		}
		next, stop, first = n, s, fragment
		return nil
	})
	if err != nil {
		fail(err)
		return
	}
	defer stop()

	r := NewReconciler(c.Citations, log)
	var answer strings.Builder
	emit := func(text string) bool {
		if text == "" {
			return true
		}
		answer.WriteString(text)
		return send(StreamEvent{Delta: text})
	}

	if !c.Grounded() {
		if !send(StreamEvent{Delta: NoContextCaveat + "\n\n"}) {
			return
		}
	}
	if !emit(r.Feed(first)) {
		return
	}
	for {
		fragment, err, ok := next()
		if !ok {
			break
		}
		if err != nil {
			fail(err)
			return
		}
		if !emit(r.Feed(fragment)) {
			return
		}
	}
	if !emit(r.Flush()) {
		return
	}

	res, err := g.finish(c, answer.String(), r.Citations(), r.Dropped())
	if err != nil {
		fail(err)
		return
	}
	send(StreamEvent{Done: true, Result: &res})
}
