package turn

import "erek/internal/provider"

// Via reports which provider satisfied a turn.
const (
	ViaPrimary  = "primary"
	ViaFallback = "fallback"
)

// Event is the tagged union flowing from the turn pipeline to the stream
// encoder. Exactly one of the pointer fields is set for terminal events;
// plain chunks carry only Chunk. A stream ends with exactly one Done or
// one Err, never both, and the channel closes after it.
type Event struct {
	Chunk string
	Done  *DoneEvent
	Err   *ErrEvent
}

// DoneEvent carries the finalized turn.
type DoneEvent struct {
	SessionID   string   `json:"sessionId"`
	Reply       string   `json:"reply"`
	Via         string   `json:"via"`
	Suggestions []string `json:"suggestions,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

// ErrEvent is the normalized failure shape shown to clients. Code is a
// stable machine string; Detail is the human-readable message.
type ErrEvent struct {
	Code      string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

// userDetail maps normalized codes to the message shown in the UI.
func userDetail(code string) string {
	switch code {
	case "unavailable":
		return "The model backend is not reachable. Please check your connection."
	case "timeout":
		return "Request timed out. The model backend may be slow or unreachable."
	case "config_missing":
		return "The fallback provider is not configured. Set providers.groq.api_key and restart."
	case "upstream_http_error":
		return "The model backend returned an error. Please try again."
	case "busy":
		return "A reply is already being generated for this chat."
	case "storage_error":
		return "Could not save this conversation. Please try again."
	default:
		return "Could not get a reply. Please try again."
	}
}

// normalizeProviderErr folds a provider failure into the wire shape.
func normalizeProviderErr(err error) *ErrEvent {
	code := provider.Code(err)
	return &ErrEvent{
		Code:      code,
		Detail:    userDetail(code),
		Retryable: provider.Retryable(err),
	}
}

func storageErr() *ErrEvent {
	return &ErrEvent{Code: "storage_error", Detail: userDetail("storage_error"), Retryable: false}
}
