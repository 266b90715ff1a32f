// Package sync is the real-time collaborative canvas synchronization
// engine. It keeps one in-memory CRDT replica per canvas, applies update
// deltas from connected sessions, fans them out to attached peers, and
// persists them in periodic batched flushes.
package sync

import (
	"context"
	"fmt"
	"time"

	"canvas-sync/core"
	"canvas-sync/crdt"

	"github.com/sirupsen/logrus"
)

// Options tunes engine behavior. The zero value is usable.
type Options struct {
	// FlushInterval is the period between scheduled persistence flushes.
	// Zero means DefaultFlushInterval.
	FlushInterval time.Duration
}

// Engine composes the document registry, connection tracker, update
// buffer, flush scheduler and broadcast router behind the attach /
// update / awareness / detach message surface.
type Engine struct {
	registry  *Registry
	tracker   *ConnectionTracker
	buffer    *UpdateBuffer
	scheduler *FlushScheduler
	router    *Router
}

// New builds an engine around the injected CRDT implementation and
// update store. Call Start to begin scheduled flushes and Close to stop
// them with one final flush.
func New(engine crdt.Engine, store core.UpdateStore, opts Options) *Engine {
	buffer := NewUpdateBuffer()
	return &Engine{
		registry:  NewRegistry(engine, store),
		tracker:   NewConnectionTracker(),
		buffer:    buffer,
		scheduler: NewFlushScheduler(engine, store, buffer, opts.FlushInterval),
		router:    NewRouter(),
	}
}

// BindTransport wires the outbound fan-out path. Until a transport is
// bound, broadcasts are silently dropped.
func (e *Engine) BindTransport(t Transport) {
	e.router.Bind(t)
}

// Start launches the periodic flush loop.
func (e *Engine) Start() {
	e.scheduler.Start()
}

// Close stops the flush loop after one final unconditional flush.
func (e *Engine) Close(ctx context.Context) {
	e.scheduler.Close(ctx)
}

// AttachResult is the full resync payload returned by Attach.
type AttachResult struct {
	DocKey   string `json:"docKey"`
	Snapshot []byte `json:"snapshot"`
}

// Attach joins a session to a canvas and returns a snapshot of the
// document's entire current state. It is idempotent: a client may call
// it freely on reconnect. The context bounds history hydration, the only
// part of the message surface that touches storage.
func (e *Engine) Attach(ctx context.Context, roomID, canvasID, sessionID string) (*AttachResult, error) {
	doc, err := e.registry.GetOrCreate(ctx, roomID, canvasID)
	if err != nil {
		return nil, err
	}

	e.tracker.Connect(canvasID, sessionID)

	snapshot, err := doc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot canvas %s: %w", canvasID, err)
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id":  canvasID,
		"room_id":    roomID,
		"session_id": sessionID,
	}).Debug("Session attached to canvas")

	return &AttachResult{
		DocKey:   fmt.Sprintf("%s-%s", roomID, canvasID),
		Snapshot: snapshot,
	}, nil
}

// Update applies one opaque update delta to the canvas, buffers it for
// the next flush, and broadcasts it to every attached session except the
// sender. A canvas that was never attached is rejected with
// ErrUnknownCanvas; an update the CRDT engine rejects is dropped without
// touching the buffer or the broadcast path.
func (e *Engine) Update(canvasID, sessionID string, update []byte) error {
	doc, ok := e.registry.Get(canvasID)
	if !ok {
		return fmt.Errorf("update canvas %s: %w", canvasID, ErrUnknownCanvas)
	}

	// Buffer and broadcast under the document lock so both see updates
	// in the order they were applied.
	err := doc.ApplyThen(update, func() {
		e.buffer.Add(canvasID, update)
		e.router.Broadcast(canvasID, EventCanvasUpdate, UpdateMessage{
			CanvasID: canvasID,
			Update:   update,
		}, sessionID)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"canvas_id":  canvasID,
			"session_id": sessionID,
		}).WithError(err).Warn("Rejected malformed update")
		return fmt.Errorf("%w for canvas %s: %v", ErrMalformedUpdate, canvasID, err)
	}
	return nil
}

// Awareness broadcasts ephemeral presence state to the canvas's other
// sessions. Nothing is applied, buffered or persisted.
func (e *Engine) Awareness(canvasID, sessionID string, state any) error {
	if _, ok := e.registry.Get(canvasID); !ok {
		return fmt.Errorf("awareness for canvas %s: %w", canvasID, ErrUnknownCanvas)
	}

	e.router.Broadcast(canvasID, EventCanvasAwareness, AwarenessMessage{
		SessionID: sessionID,
		State:     state,
	}, sessionID)
	return nil
}

// Detach removes a single attachment and tells the remaining sessions
// the leaver's presence is gone.
func (e *Engine) Detach(canvasID, sessionID string) {
	e.tracker.Detach(canvasID, sessionID)
	e.router.Broadcast(canvasID, EventPresenceCleared, PresenceMessage{
		CanvasID:  canvasID,
		SessionID: sessionID,
	}, sessionID)
}

// Disconnect tears down every attachment a session held, emitting a
// presence-cleared event per canvas. It returns the canvases the session
// was attached to.
func (e *Engine) Disconnect(sessionID string) []string {
	canvases := e.tracker.DisconnectAll(sessionID)
	for _, canvasID := range canvases {
		e.router.Broadcast(canvasID, EventPresenceCleared, PresenceMessage{
			CanvasID:  canvasID,
			SessionID: sessionID,
		}, sessionID)
	}

	if len(canvases) > 0 {
		logrus.WithFields(logrus.Fields{
			"session_id":   sessionID,
			"canvas_count": len(canvases),
		}).Debug("Session disconnected from all canvases")
	}
	return canvases
}

// CanvasInfo describes one live canvas for monitoring surfaces.
type CanvasInfo struct {
	CanvasID string `json:"canvasId"`
	RoomID   string `json:"roomId"`
	Sessions int    `json:"sessions"`
}

// ActiveCanvases lists every live canvas with its attached session
// count.
func (e *Engine) ActiveCanvases() []CanvasInfo {
	docs := e.registry.List()
	infos := make([]CanvasInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, CanvasInfo{
			CanvasID: doc.CanvasID,
			RoomID:   doc.RoomID,
			Sessions: e.tracker.Count(doc.CanvasID),
		})
	}
	return infos
}

// Snapshot exports the current state of one live canvas.
func (e *Engine) Snapshot(canvasID string) ([]byte, error) {
	doc, ok := e.registry.Get(canvasID)
	if !ok {
		return nil, fmt.Errorf("snapshot canvas %s: %w", canvasID, ErrUnknownCanvas)
	}
	return doc.Snapshot()
}
