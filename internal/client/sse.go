package client

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event as read off the wire.
type sseEvent struct {
	Name string
	Data string
}

// readEvents parses a text/event-stream body and delivers each event to
// fn. Comment lines (keep-alives) are skipped. Returns nil on clean EOF
// or when fn asks to stop.
func readEvents(r io.Reader, fn func(sseEvent) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev sseEvent
	var data strings.Builder
	flush := func() bool {
		if ev.Name == "" && data.Len() == 0 {
			return true
		}
		ev.Data = data.String()
		ok := fn(ev)
		ev = sseEvent{}
		data.Reset()
		return ok
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !flush() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	flush()
	return nil
}
