package gemini

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"google.golang.org/genai"
)

type llmClient struct {
	client          *genai.Client
	modelName       string
	temperature     float32
	maxOutputTokens int32
}

type Options struct {
	APIKey          string
	ModelName       string
	Temperature     float32
	MaxOutputTokens int
}

var logger *logger_i.Logger
var geminiClient *llmClient
var once sync.Once

// GetGeminiClient returns nil when the client could not be created.
func GetGeminiClient(ctx context.Context, opts Options) llm.Provider {
	once.Do(func() {
		logger = logger_i.NewLogger("llm_gemini")
		newGeminiClient(ctx, opts)
	})

	if geminiClient == nil {
		return nil
	}
	return geminiClient
}

func newGeminiClient(ctx context.Context, opts Options) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		logger.Error("Error creating Gemini client:", "error", err)
	}
	if c != nil {
		geminiClient = &llmClient{
			client:          c,
			modelName:       opts.ModelName,
			temperature:     opts.Temperature,
			maxOutputTokens: int32(opts.MaxOutputTokens),
		}
		logger.Debug("Gemini client created", "model", opts.ModelName)
		logger.Info("Gemini client created")
		go closeClient(ctx)
	}
}

func (c *llmClient) Model() string { return c.modelName }

func (c *llmClient) config(prompt llm.Prompt) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}},
		Temperature:       &c.temperature,
		MaxOutputTokens:   c.maxOutputTokens,
	}
}

func (c *llmClient) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	log := logger.WithContext(ctx)
	result, err := c.client.Models.GenerateContent(ctx, c.modelName, genai.Text(prompt.User), c.config(prompt))
	if err != nil {
		log.Warn("Gemini generation failed", "error", err)
		return "", llm.ClassifyError(err, transient, "gemini generate")
	}
	text := result.Text()
	if text == "" {
		return "", llm.ClassifyError(errors.New("empty completion"), nil, "gemini generate")
	}
	return text, nil
}

func (c *llmClient) Stream(ctx context.Context, prompt llm.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.modelName, genai.Text(prompt.User), c.config(prompt)) {
			if err != nil {
				logger.WithContext(ctx).Warn("Gemini stream failed", "error", err)
				yield("", llm.ClassifyError(err, transient, "gemini stream"))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func transient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retry.TransientHTTPStatus(apiErr.Code)
	}
	return false
}

func closeClient(ctx context.Context) {
	<-ctx.Done()
	logger.Info("Closing Gemini client")
}
