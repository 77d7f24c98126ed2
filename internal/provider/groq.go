package provider

import (
	"context"
	"errors"
	"io"
	"time"

	"erek/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// Groq is the fallback backend, spoken to over the OpenAI chat-completions
// wire. One client is built at startup and shared read-only.
type Groq struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	temperature float32
	maxTokens   int
}

// NewGroq builds the fallback adapter. A missing API key is a fatal
// configuration error, not something to discover mid-turn.
func NewGroq(cfg config.GroqConfig) (*Groq, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Setting: "providers.groq.api_key"}
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Groq{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		timeout:     timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *Groq) Name() string { return "fallback" }

func (g *Groq) request(msgs []ChatMessage, opts Options, stream bool) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = g.model
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = g.temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	converted := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		converted = append(converted, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    converted,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

func (g *Groq) budget(opts Options) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return g.timeout
}

// Complete issues a single non-streaming chat completion.
func (g *Groq) Complete(ctx context.Context, msgs []ChatMessage, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.budget(opts))
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, g.request(msgs, opts, false))
	if err != nil {
		return "", g.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamComplete issues a streaming chat completion. The returned stream
// carries the timeout budget for its whole lifetime; Close releases it.
func (g *Groq) StreamComplete(ctx context.Context, msgs []ChatMessage, opts Options) (*Stream, error) {
	streamCtx, cancel := context.WithTimeout(ctx, g.budget(opts))

	upstream, err := g.client.CreateChatCompletionStream(streamCtx, g.request(msgs, opts, true))
	if err != nil {
		cancel()
		return nil, g.classify(streamCtx, err)
	}

	return &Stream{
		recv: func() (string, error) {
			for {
				resp, err := upstream.Recv()
				if err != nil {
					// io.EOF passes through to end the stream; everything
					// else is classified, a dropped connection mid-stream
					// included.
					if errors.Is(err, io.EOF) {
						return "", err
					}
					return "", g.classify(streamCtx, err)
				}
				if len(resp.Choices) == 0 {
					continue
				}
				return resp.Choices[0].Delta.Content, nil
			}
		},
		close: func() error {
			cancel()
			return upstream.Close()
		},
	}, nil
}

// classify maps go-openai errors onto the provider taxonomy.
func (g *Groq) classify(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{Provider: g.Name(), Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &HTTPError{Provider: g.Name(), Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return classifyTransport(ctx, err)
}
