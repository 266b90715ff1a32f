package sync

import stdsync "sync"

// ConnectionTracker records which sessions are attached to which
// canvases. It keeps both directions in sync so that tearing down a
// session costs O(canvases that session was attached to), not a scan of
// every live document.
type ConnectionTracker struct {
	mu        stdsync.RWMutex
	byCanvas  map[string]map[string]struct{}
	bySession map[string]map[string]struct{}
}

func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{
		byCanvas:  make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Connect attaches a session to a canvas. Attaching twice is a no-op.
func (t *ConnectionTracker) Connect(canvasID, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions, ok := t.byCanvas[canvasID]
	if !ok {
		sessions = make(map[string]struct{})
		t.byCanvas[canvasID] = sessions
	}
	sessions[sessionID] = struct{}{}

	canvases, ok := t.bySession[sessionID]
	if !ok {
		canvases = make(map[string]struct{})
		t.bySession[sessionID] = canvases
	}
	canvases[canvasID] = struct{}{}
}

// Detach removes a single attachment. No-op if absent.
func (t *ConnectionTracker) Detach(canvasID, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(canvasID, sessionID)
}

// DisconnectAll removes the session from every canvas it was attached to
// and returns exactly that list, each canvas id once.
func (t *ConnectionTracker) DisconnectAll(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	canvases := t.bySession[sessionID]
	if len(canvases) == 0 {
		delete(t.bySession, sessionID)
		return nil
	}

	ids := make([]string, 0, len(canvases))
	for canvasID := range canvases {
		ids = append(ids, canvasID)
	}
	for _, canvasID := range ids {
		t.remove(canvasID, sessionID)
	}
	return ids
}

// Sessions returns the sessions currently attached to a canvas.
func (t *ConnectionTracker) Sessions(canvasID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sessions := make([]string, 0, len(t.byCanvas[canvasID]))
	for sessionID := range t.byCanvas[canvasID] {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// Count returns the number of sessions attached to a canvas.
func (t *ConnectionTracker) Count(canvasID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byCanvas[canvasID])
}

// remove updates both indexes. Caller holds the write lock.
func (t *ConnectionTracker) remove(canvasID, sessionID string) {
	if sessions, ok := t.byCanvas[canvasID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(t.byCanvas, canvasID)
		}
	}
	if canvases, ok := t.bySession[sessionID]; ok {
		delete(canvases, canvasID)
		if len(canvases) == 0 {
			delete(t.bySession, sessionID)
		}
	}
}
