package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"erek/internal/config"
)

func TestWebhookNilWhenUnconfigured(t *testing.T) {
	if w := NewWebhook(config.WebhookConfig{}); w != nil {
		t.Fatalf("expected nil adapter for empty base_url")
	}
}

func TestWebhookComplete(t *testing.T) {
	var gotBody webhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "hello back"})
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{BaseURL: srv.URL, Model: "local-model"})
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: "system prompt"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "hello there"},
	}
	reply, err := w.Complete(context.Background(), msgs, Options{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "hello back" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if gotBody.Prompt != "hello there" {
		t.Fatalf("prompt must be the latest user message, got %q", gotBody.Prompt)
	}
	if gotBody.Model != "local-model" || gotBody.Stream {
		t.Fatalf("unexpected request %+v", gotBody)
	}
}

func TestWebhookHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{BaseURL: srv.URL})
	_, err := w.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Options{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", httpErr.Status)
	}
	if !strings.Contains(httpErr.Body, "model exploded") {
		t.Fatalf("body not captured: %q", httpErr.Body)
	}
	if Code(err) != "upstream_http_error" || !Retryable(err) {
		t.Fatalf("wrong classification: code=%s retryable=%v", Code(err), Retryable(err))
	}
}

func TestWebhookErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{BaseURL: srv.URL})
	_, err := w.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Options{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if len(httpErr.Body) != maxErrorBodyBytes {
		t.Fatalf("expected body capped at %d bytes, got %d", maxErrorBodyBytes, len(httpErr.Body))
	}
}

func TestWebhookEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "   "})
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{BaseURL: srv.URL})
	_, err := w.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Options{})
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestWebhookTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	w := NewWebhook(config.WebhookConfig{BaseURL: srv.URL, TimeoutMS: 50})
	start := time.Now()
	_, err := w.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Options{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took too long")
	}
}

func TestWebhookUnavailable(t *testing.T) {
	// connect to a closed port
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	w := NewWebhook(config.WebhookConfig{BaseURL: url})
	_, err := w.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if Code(err) != "unavailable" {
		t.Fatalf("unexpected code %s", Code(err))
	}
}

func TestWebhookNeverRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{BaseURL: srv.URL})
	w.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Options{})
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("adapter must not retry, saw %d calls", n)
	}
}
