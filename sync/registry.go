package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"canvas-sync/core"
	"canvas-sync/crdt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CanvasDocument is the in-memory replica of one collaboratively edited
// canvas. The registry owns exactly one per canvas id; the CRDT state is
// only ever referenced, never copied.
type CanvasDocument struct {
	CanvasID string
	RoomID   string

	engine crdt.Engine

	mu  stdsync.Mutex
	doc crdt.Document
}

// ApplyThen folds one update into the replica and, still holding the
// document lock, runs the follow-up. Updates for the same canvas are
// serialized, so whatever the follow-up records (buffering, broadcast)
// observes the same order the updates were applied in.
func (d *CanvasDocument) ApplyThen(update []byte, then func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.engine.Apply(d.doc, update); err != nil {
		return err
	}
	if then != nil {
		then()
	}
	return nil
}

// Snapshot returns an update capturing the replica's full current state.
func (d *CanvasDocument) Snapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.Snapshot(d.doc)
}

// Registry owns the canvas id to document table. Documents are created
// lazily on first attach, hydrated once from persisted history, and live
// for the lifetime of the process.
type Registry struct {
	engine crdt.Engine
	store  core.UpdateStore

	group singleflight.Group

	mu        stdsync.RWMutex
	documents map[string]*CanvasDocument
}

func NewRegistry(engine crdt.Engine, store core.UpdateStore) *Registry {
	return &Registry{
		engine:    engine,
		store:     store,
		documents: make(map[string]*CanvasDocument),
	}
}

// Get returns the live document for a canvas, or false if none exists.
// It never creates one.
func (r *Registry) Get(canvasID string) (*CanvasDocument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[canvasID]
	return doc, ok
}

// hydrateTimeout bounds the shared hydration load. The load runs on its
// own deadline rather than the first caller's context, so a cancelled
// caller cannot fail the other attaches queued behind it.
const hydrateTimeout = 30 * time.Second

// GetOrCreate returns the document for a canvas, hydrating it from the
// persisted update history on first use. Concurrent calls for the same
// canvas id share a single hydration; ctx only bounds this caller's
// wait. A hydration failure is surfaced to every waiting caller and
// nothing is cached, so a retry re-attempts the load cleanly.
func (r *Registry) GetOrCreate(ctx context.Context, roomID, canvasID string) (*CanvasDocument, error) {
	if doc, ok := r.Get(canvasID); ok {
		return doc, nil
	}

	ch := r.group.DoChan(canvasID, func() (any, error) {
		// A racing caller may have finished hydrating while we queued.
		if doc, ok := r.Get(canvasID); ok {
			return doc, nil
		}

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
		defer cancel()

		doc, err := r.hydrate(hctx, roomID, canvasID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.documents[canvasID] = doc
		r.mu.Unlock()
		return doc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CanvasDocument), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("hydrate canvas %s: %w", canvasID, ctx.Err())
	}
}

func (r *Registry) hydrate(ctx context.Context, roomID, canvasID string) (*CanvasDocument, error) {
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "room_id": roomID})

	history, err := r.store.ListUpdates(ctx, canvasID)
	if err != nil {
		log.WithError(err).Error("Failed to load canvas history")
		return nil, fmt.Errorf("hydrate canvas %s: %w", canvasID, err)
	}

	doc := &CanvasDocument{
		CanvasID: canvasID,
		RoomID:   roomID,
		engine:   r.engine,
		doc:      r.engine.NewDocument(),
	}

	if len(history) > 0 {
		merged, err := r.engine.Merge(history)
		if err != nil {
			return nil, fmt.Errorf("merge history for canvas %s: %w", canvasID, err)
		}
		if err := r.engine.Apply(doc.doc, merged); err != nil {
			return nil, fmt.Errorf("apply history to canvas %s: %w", canvasID, err)
		}
	}

	log.WithField("history_length", len(history)).Info("Canvas document hydrated")
	return doc, nil
}

// List returns every live document, in no particular order.
func (r *Registry) List() []*CanvasDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*CanvasDocument, 0, len(r.documents))
	for _, doc := range r.documents {
		docs = append(docs, doc)
	}
	return docs
}
