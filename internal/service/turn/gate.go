package turn

import "sync"

// gate tracks sessions with a turn in flight. The UI disables sending
// while streaming, so hitting the gate means a second client or a retry
// racing the first; failing fast beats interleaving histories.
type gate struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newGate() *gate {
	return &gate{busy: make(map[string]struct{})}
}

func (g *gate) acquire(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[sessionID]; ok {
		return false
	}
	g.busy[sessionID] = struct{}{}
	return true
}

func (g *gate) release(sessionID string) {
	g.mu.Lock()
	delete(g.busy, sessionID)
	g.mu.Unlock()
}
