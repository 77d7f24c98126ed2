package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"erek/internal/config"
)

const maxErrorBodyBytes = 500

// Webhook is the primary backend: a generate-style endpoint reached with a
// single JSON POST carrying a flat prompt. It is built once from static
// config and shared across requests.
type Webhook struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewWebhook builds the primary adapter, or nil when no base URL is
// configured so the turn service skips the primary attempt entirely.
func NewWebhook(cfg config.WebhookConfig) *Webhook {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Webhook{
		baseURL: base,
		model:   cfg.Model,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (w *Webhook) Name() string { return "primary" }

type webhookRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type webhookResponse struct {
	Response string `json:"response"`
}

// Complete sends the latest user message as the prompt and returns the
// reply text. Failures map onto the provider taxonomy; no retries.
func (w *Webhook) Complete(ctx context.Context, msgs []ChatMessage, opts Options) (string, error) {
	prompt := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			prompt = msgs[i].Content
			break
		}
	}
	if prompt == "" && len(msgs) > 0 {
		prompt = msgs[len(msgs)-1].Content
	}

	model := opts.Model
	if model == "" {
		model = w.model
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = w.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(webhookRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("encode webhook request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &HTTPError{Provider: w.Name(), Status: resp.StatusCode, Body: string(detail)}
	}

	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode webhook response: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyReply
	}
	return out.Response, nil
}
