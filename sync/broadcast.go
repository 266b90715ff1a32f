package sync

import stdsync "sync"

// Event names emitted to attached sessions. Updates are durable traffic
// (also buffered for persistence); awareness and presence are ephemeral,
// broadcast only and never stored.
const (
	EventCanvasUpdate    = "canvas-update"
	EventCanvasAwareness = "canvas-awareness"
	EventPresenceCleared = "presence-cleared"
)

type (
	// UpdateMessage is the payload fanned out for a document update.
	UpdateMessage struct {
		CanvasID string `json:"canvasId"`
		Update   []byte `json:"update"`
	}

	// AwarenessMessage carries ephemeral presence state for one session.
	AwarenessMessage struct {
		SessionID string `json:"sessionId"`
		State     any    `json:"state"`
	}

	// PresenceMessage tells peers a session left a canvas.
	PresenceMessage struct {
		CanvasID  string `json:"canvasId"`
		SessionID string `json:"sessionId"`
	}
)

// Transport delivers an event to every session attached to a canvas,
// excluding exceptSessionID when non-empty. Implementations must not
// block the caller; delivery is fire-and-forget.
type Transport interface {
	Broadcast(canvasID, event string, payload any, exceptSessionID string)
}

// Router fans events out through whichever transport is currently bound.
// Broadcasting with no transport bound, for example before the server
// has finished initializing, is a safe no-op.
type Router struct {
	mu        stdsync.RWMutex
	transport Transport
}

func NewRouter() *Router {
	return &Router{}
}

// Bind attaches the live transport. Later binds replace earlier ones.
func (r *Router) Bind(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transport = t
}

func (r *Router) Broadcast(canvasID, event string, payload any, exceptSessionID string) {
	r.mu.RLock()
	t := r.transport
	r.mu.RUnlock()

	if t == nil {
		return
	}
	t.Broadcast(canvasID, event, payload, exceptSessionID)
}
