package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure kinds surfaced by adapters. The turn service matches on these to
// decide fallback and to normalize what the client sees; raw upstream error
// bodies never leave this package boundary except inside HTTPError.
var (
	ErrTimeout     = errors.New("provider timeout")
	ErrUnavailable = errors.New("provider unavailable")
	ErrEmptyReply  = errors.New("provider returned empty reply")
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.Status, e.Body)
}

// ConfigError marks a missing required setting. Not retryable.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

// Retryable reports whether a retry could plausibly succeed.
func Retryable(err error) bool {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return false
	}
	var httpErr *HTTPError
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrEmptyReply) || errors.As(err, &httpErr) {
		return true
	}
	return false
}

// Code maps a provider failure to a stable wire code.
func Code(err error) string {
	var cfgErr *ConfigError
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrEmptyReply):
		return "empty_reply"
	case errors.As(err, &cfgErr):
		return "config_missing"
	case errors.As(err, &httpErr):
		return "upstream_http_error"
	default:
		return "unknown"
	}
}

// classifyTransport folds transport-level failures into the taxonomy.
// Deadline expiry (ours or the upstream's) is a timeout; everything else
// that never produced a response is unavailability.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
