package provider

import (
	"context"
	"time"

	"erek/internal/models"
)

// ChatMessage is the wire shape sent to an upstream backend. Unlike stored
// messages it may carry the system role.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const RoleSystem = "system"

// FromHistory converts stored messages to wire messages.
func FromHistory(msgs []*models.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Options carries per-request tuning. Timeout is the full budget for the
// call, streaming included; zero means the adapter's configured default.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Completer is an upstream text-generation backend. Implementations never
// retry; retry and fallback policy belong to the turn service.
type Completer interface {
	Name() string
	Complete(ctx context.Context, msgs []ChatMessage, opts Options) (string, error)
}

// Streamer additionally exposes incremental output. A new StreamComplete
// call re-issues the upstream request; streams are not restartable.
type Streamer interface {
	Completer
	StreamComplete(ctx context.Context, msgs []ChatMessage, opts Options) (*Stream, error)
}

// Stream is a finite chunk sequence. Recv returns io.EOF when the upstream
// is done; Close releases the underlying request.
type Stream struct {
	recv  func() (string, error)
	close func() error
}

// NewStream wraps a recv/close pair. close may be nil.
func NewStream(recv func() (string, error), close func() error) *Stream {
	return &Stream{recv: recv, close: close}
}

func (s *Stream) Recv() (string, error) { return s.recv() }

func (s *Stream) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
