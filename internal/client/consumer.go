// Package client consumes the chat API the way the web UI does: optimistic
// local messages, a minimum thinking pause, incremental streaming, and
// abort handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// State tracks where a turn is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateDone
	StateError
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Message is a local transcript entry. Pending marks the assistant
// placeholder that exists before any content has arrived.
type Message struct {
	Role    string
	Content string
	Pending bool
}

// TurnResult is the finalized outcome of one Send.
type TurnResult struct {
	SessionID   string
	Reply       string
	Via         string
	Suggestions []string
}

// Events receives UI notifications. Any field may be nil.
type Events struct {
	OnState func(State)
	OnChunk func(string)
}

// Consumer drives chat turns against a server and mirrors the transcript
// locally.
type Consumer struct {
	baseURL   string
	http      *http.Client
	authToken string
	events    Events

	// sleep is swappable in tests so the thinking pause is observable
	// without real waiting.
	sleep func(time.Duration)

	mu        sync.Mutex
	sessionID string
	state     State
	messages  []Message
	cancel    context.CancelFunc
}

// New builds a consumer for the server at baseURL.
func New(baseURL string, events Events) *Consumer {
	return &Consumer{
		baseURL: baseURL,
		http:    &http.Client{},
		events:  events,
		sleep:   time.Sleep,
		state:   StateIdle,
	}
}

// SetAuthToken attaches a bearer token to subsequent requests.
func (cons *Consumer) SetAuthToken(token string) {
	cons.mu.Lock()
	cons.authToken = token
	cons.mu.Unlock()
}

// SetSession points the consumer at an existing session id.
func (cons *Consumer) SetSession(sessionID string) {
	cons.mu.Lock()
	cons.sessionID = sessionID
	cons.mu.Unlock()
}

// SessionID reports the server-assigned session, empty before the first
// completed turn.
func (cons *Consumer) SessionID() string {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	return cons.sessionID
}

// State reports the current lifecycle state.
func (cons *Consumer) State() State {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	return cons.state
}

// Messages returns a copy of the local transcript.
func (cons *Consumer) Messages() []Message {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	out := make([]Message, len(cons.messages))
	copy(out, cons.messages)
	return out
}

// Abort cancels the in-flight turn. A placeholder that never received
// content is removed; partial content stays.
func (cons *Consumer) Abort() {
	cons.mu.Lock()
	cancel := cons.cancel
	cons.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

type chatPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	Stream    bool   `json:"stream"`
}

type doneFrame struct {
	SessionID   string   `json:"sessionId"`
	Reply       string   `json:"reply"`
	Via         string   `json:"via"`
	Suggestions []string `json:"suggestions"`
}

type errorFrame struct {
	Code      string `json:"error"`
	Detail    string `json:"detail"`
	Retryable bool   `json:"retryable"`
}

type chunkFrame struct {
	Chunk string `json:"chunk"`
}

// Send runs one turn: the user message and an assistant placeholder are
// appended immediately, then the stream fills the placeholder in. Blocks
// until the turn settles.
func (cons *Consumer) Send(ctx context.Context, message string) (*TurnResult, error) {
	cons.mu.Lock()
	if cons.state == StateSending || cons.state == StateStreaming {
		cons.mu.Unlock()
		return nil, errors.New("a turn is already in flight")
	}
	ctx, cancel := context.WithCancel(ctx)
	cons.cancel = cancel
	cons.messages = append(cons.messages,
		Message{Role: "user", Content: message},
		Message{Role: "assistant", Pending: true},
	)
	placeholder := len(cons.messages) - 1
	sessionID := cons.sessionID
	cons.mu.Unlock()
	defer cancel()

	cons.setState(StateSending)
	thinkUntil := time.Now().Add(ThinkingDelay(message))

	resp, err := cons.post(ctx, sessionID, message)
	if err != nil {
		return nil, cons.fail(ctx, placeholder, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, cons.fail(ctx, placeholder, fmt.Sprintf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}

	var (
		result  *TurnResult
		turnErr *errorFrame
		started bool
	)
	parseErr := readEvents(resp.Body, func(ev sseEvent) bool {
		switch ev.Name {
		case "chunk":
			var frame chunkFrame
			if json.Unmarshal([]byte(ev.Data), &frame) != nil || frame.Chunk == "" {
				return true
			}
			if !started {
				started = true
				cons.holdThinking(thinkUntil)
			}
			// An abort during the thinking floor shows nothing of the reply.
			if ctx.Err() != nil {
				return false
			}
			if cons.State() != StateStreaming {
				cons.setState(StateStreaming)
			}
			cons.appendChunk(placeholder, frame.Chunk)
			return true
		case "done":
			var frame doneFrame
			if json.Unmarshal([]byte(ev.Data), &frame) != nil {
				return true
			}
			result = &TurnResult{
				SessionID:   frame.SessionID,
				Reply:       frame.Reply,
				Via:         frame.Via,
				Suggestions: frame.Suggestions,
			}
			return false
		case "error":
			var frame errorFrame
			if json.Unmarshal([]byte(ev.Data), &frame) == nil {
				turnErr = &frame
			}
			return false
		default:
			return true
		}
	})

	switch {
	case ctx.Err() != nil:
		cons.abortPlaceholder(placeholder)
		return nil, ctx.Err()
	case result != nil:
		if !started {
			cons.holdThinking(thinkUntil)
			if ctx.Err() != nil {
				cons.abortPlaceholder(placeholder)
				return nil, ctx.Err()
			}
		}
		cons.finalize(placeholder, result)
		return result, nil
	case turnErr != nil:
		detail := turnErr.Detail
		if detail == "" {
			detail = turnErr.Code
		}
		return nil, cons.fail(ctx, placeholder, detail)
	case ctx.Err() != nil:
		cons.abortPlaceholder(placeholder)
		return nil, ctx.Err()
	case parseErr != nil:
		return nil, cons.fail(ctx, placeholder, parseErr.Error())
	default:
		return nil, cons.fail(ctx, placeholder, "stream ended unexpectedly")
	}
}

func (cons *Consumer) post(ctx context.Context, sessionID, message string) (*http.Response, error) {
	payload, err := json.Marshal(chatPayload{SessionID: sessionID, Message: message, Stream: true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cons.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	cons.mu.Lock()
	token := cons.authToken
	cons.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return cons.http.Do(req)
}

// holdThinking sleeps out whatever remains of the thinking floor.
func (cons *Consumer) holdThinking(until time.Time) {
	if remaining := time.Until(until); remaining > 0 {
		cons.sleep(remaining)
	}
}

func (cons *Consumer) appendChunk(idx int, chunk string) {
	cons.mu.Lock()
	cons.messages[idx].Content += chunk
	cons.messages[idx].Pending = false
	cons.mu.Unlock()
	if cons.events.OnChunk != nil {
		cons.events.OnChunk(chunk)
	}
}

func (cons *Consumer) finalize(idx int, result *TurnResult) {
	cons.mu.Lock()
	cons.sessionID = result.SessionID
	cons.messages[idx].Content = result.Reply
	cons.messages[idx].Pending = false
	cons.mu.Unlock()
	cons.setState(StateDone)
}

// fail marks the turn failed, replacing the placeholder with the error
// text, unless the user aborted first.
func (cons *Consumer) fail(ctx context.Context, idx int, detail string) error {
	if ctx.Err() != nil {
		cons.abortPlaceholder(idx)
		return ctx.Err()
	}
	cons.mu.Lock()
	cons.messages[idx].Content = detail
	cons.messages[idx].Pending = false
	cons.mu.Unlock()
	cons.setState(StateError)
	return errors.New(detail)
}

// abortPlaceholder drops an assistant entry that never received content.
func (cons *Consumer) abortPlaceholder(idx int) {
	cons.mu.Lock()
	if idx == len(cons.messages)-1 && cons.messages[idx].Pending {
		cons.messages = cons.messages[:idx]
	}
	cons.mu.Unlock()
	cons.setState(StateAborted)
}

func (cons *Consumer) setState(s State) {
	cons.mu.Lock()
	cons.state = s
	cons.mu.Unlock()
	if cons.events.OnState != nil {
		cons.events.OnState(s)
	}
}
