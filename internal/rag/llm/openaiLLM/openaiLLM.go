package openaiLLM

import (
	"context"
	"errors"
	"iter"

	"github.com/akolanti/ResearchAssistant/internal/rag/llm"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Options struct {
	APIKey          string
	BaseURL         string
	ModelName       string
	Temperature     float32
	MaxOutputTokens int
}

type client struct {
	api    openai.Client
	opts   Options
	logger *logger_i.Logger
}

// NewOpenAIClient talks to the chat completions API or any compatible server at BaseURL.
func NewOpenAIClient(opts Options) llm.Provider {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &client{
		api:    openai.NewClient(reqOpts...),
		opts:   opts,
		logger: logger_i.NewLogger("llm_openai"),
	}
}

func (c *client) Model() string { return c.opts.ModelName }

func (c *client) params(prompt llm.Prompt) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Model:       openai.ChatModel(c.opts.ModelName),
		Temperature: openai.Float(float64(c.opts.Temperature)),
	}
	if c.opts.MaxOutputTokens > 0 {
		p.MaxCompletionTokens = openai.Int(int64(c.opts.MaxOutputTokens))
	}
	return p
}

func (c *client) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, c.params(prompt))
	if err != nil {
		c.logger.WithContext(ctx).Warn("OpenAI completion failed", "error", err)
		return "", llm.ClassifyError(err, transient, "openai completion")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", llm.ClassifyError(errors.New("empty completion"), nil, "openai completion")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *client) Stream(ctx context.Context, prompt llm.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := c.api.Chat.Completions.NewStreaming(ctx, c.params(prompt))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			c.logger.WithContext(ctx).Warn("OpenAI stream failed", "error", err)
			yield("", llm.ClassifyError(err, transient, "openai stream"))
		}
	}
}

func transient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retry.TransientHTTPStatus(apiErr.StatusCode)
	}
	return false
}
