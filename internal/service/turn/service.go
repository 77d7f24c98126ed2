// Package turn runs one chat turn end to end: persist the user message,
// try the primary provider, fall back to the streaming provider, post-
// process the finalized reply, and persist it.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"erek/internal/config"
	"erek/internal/models"
	"erek/internal/postproc"
	"erek/internal/provider"
)

// DefaultSystemPrompt seeds every transcript unless overridden in config.
const DefaultSystemPrompt = `You are EreK, a helpful AI assistant.

Instructions:
- Always respond in the SAME LANGUAGE the user writes in
- Detect the language automatically from user input
- Be conversational and natural
- Keep responses clear and well-formatted
- Give detailed, helpful answers: explain properly, include relevant points and examples when useful. Do not give overly short or one-line replies unless the user asks for a brief answer.`

// Store is the persistence surface a turn needs.
type Store interface {
	EnsureSession(ctx context.Context, ownerID *string, sessionID string) (string, error)
	AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// Service orchestrates turns. primary may be nil, in which case every turn
// goes straight to the fallback provider.
type Service struct {
	store        Store
	primary      provider.Completer
	fallback     provider.Streamer
	post         *postproc.Processor
	systemPrompt string
	window       int
	gate         *gate
}

// NewService wires the turn pipeline from static configuration.
func NewService(store Store, primary provider.Completer, fallback provider.Streamer, post *postproc.Processor, cfg *config.Config) *Service {
	prompt := cfg.BasicConfig.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return &Service{
		store:        store,
		primary:      primary,
		fallback:     fallback,
		post:         post,
		systemPrompt: prompt,
		window:       cfg.Heuristics.TranscriptMessages,
		gate:         newGate(),
	}
}

// Result is the non-streaming turn outcome.
type Result struct {
	SessionID   string   `json:"sessionId"`
	Reply       string   `json:"reply"`
	Via         string   `json:"via"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error is a normalized turn failure usable on the JSON path.
type Error struct {
	Event ErrEvent
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Event.Code, e.Event.Detail)
}

// Run executes a turn and blocks until it settles. Used by the
// non-streaming JSON path.
func (s *Service) Run(ctx context.Context, ownerID *string, sessionID, message string) (*Result, error) {
	for ev := range s.Stream(ctx, ownerID, sessionID, message) {
		if ev.Done != nil {
			return &Result{
				SessionID:   ev.Done.SessionID,
				Reply:       ev.Done.Reply,
				Via:         ev.Done.Via,
				Suggestions: ev.Done.Suggestions,
			}, nil
		}
		if ev.Err != nil {
			return nil, &Error{Event: *ev.Err}
		}
	}
	// channel closed without a terminal event: the caller went away
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, context.Canceled
}

// Stream executes a turn and emits events as they happen. The channel is
// closed after the terminal event, or silently when the context is
// cancelled before one exists; in the cancelled case no assistant message
// is persisted.
func (s *Service) Stream(ctx context.Context, ownerID *string, sessionID, message string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		s.run(ctx, ownerID, sessionID, message, out)
	}()
	return out
}

func (s *Service) run(ctx context.Context, ownerID *string, sessionID, message string, out chan<- Event) {
	message = strings.TrimSpace(message)
	if message == "" {
		s.send(ctx, out, Event{Err: &ErrEvent{Code: "invalid_request", Detail: "message is required", Retryable: false}})
		return
	}

	sid, err := s.store.EnsureSession(ctx, ownerID, sessionID)
	if err != nil {
		log.Printf("ensure session: %v", err)
		s.send(ctx, out, Event{Err: storageErr()})
		return
	}
	if !s.gate.acquire(sid) {
		s.send(ctx, out, Event{Err: &ErrEvent{Code: "busy", Detail: userDetail("busy"), Retryable: true}})
		return
	}
	defer s.gate.release(sid)

	// The user message is durable before any provider is contacted.
	if _, err := s.store.AppendMessage(ctx, sid, models.RoleUser, message); err != nil {
		log.Printf("append user message: %v", err)
		s.send(ctx, out, Event{Err: storageErr()})
		return
	}

	transcript, err := s.store.RecentMessages(ctx, sid, s.window)
	if err != nil {
		log.Printf("load transcript: %v", err)
		s.send(ctx, out, Event{Err: storageErr()})
		return
	}
	msgs := make([]provider.ChatMessage, 0, len(transcript)+1)
	msgs = append(msgs, provider.ChatMessage{Role: provider.RoleSystem, Content: s.systemPrompt})
	msgs = append(msgs, provider.FromHistory(transcript)...)

	// Primary attempt. Any failure here falls through to the fallback and
	// is never surfaced to the user; a 200 with an empty reply counts as a
	// failure too.
	if s.primary != nil {
		reply, err := s.primary.Complete(ctx, msgs, provider.Options{})
		if err == nil && strings.TrimSpace(reply) != "" {
			s.finalize(ctx, out, sid, message, reply, ViaPrimary, false)
			return
		}
		if err == nil {
			err = provider.ErrEmptyReply
		}
		if ctx.Err() != nil {
			return
		}
		log.Printf("primary provider failed, falling back: %v", err)
	}

	stream, err := s.fallback.StreamComplete(ctx, msgs, provider.Options{})
	if err != nil {
		if ctx.Err() == context.Canceled {
			return
		}
		s.send(ctx, out, Event{Err: normalizeProviderErr(err)})
		return
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() == context.Canceled {
				return
			}
			s.send(ctx, out, Event{Err: normalizeProviderErr(err)})
			return
		}
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if !s.send(ctx, out, Event{Chunk: chunk}) {
			return
		}
	}

	if strings.TrimSpace(full.String()) == "" {
		s.send(ctx, out, Event{Err: normalizeProviderErr(provider.ErrEmptyReply)})
		return
	}
	s.finalize(ctx, out, sid, message, full.String(), ViaFallback, true)
}

// finalize post-processes the raw reply, persists the assistant message,
// and emits the terminal Done. chunked reports whether incremental output
// already went out; if not, the whole reply is sent as one chunk first.
func (s *Service) finalize(ctx context.Context, out chan<- Event, sessionID, userMessage, raw, via string, chunked bool) {
	// A cancelled turn persists nothing: the exchange ends as if the
	// assistant never replied.
	if ctx.Err() != nil {
		return
	}

	suggestions := s.post.NextSteps(raw, userMessage)
	body := s.post.Format(raw)

	if _, err := s.store.AppendMessage(ctx, sessionID, models.RoleAssistant, body); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("append assistant message: %v", err)
		s.send(ctx, out, Event{Err: storageErr()})
		return
	}

	if !chunked {
		if !s.send(ctx, out, Event{Chunk: body}) {
			return
		}
	}
	s.send(ctx, out, Event{Done: &DoneEvent{
		SessionID:   sessionID,
		Reply:       body,
		Via:         via,
		Suggestions: suggestions,
	}})
}

// send delivers an event unless the consumer is gone.
func (s *Service) send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
