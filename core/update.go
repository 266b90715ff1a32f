package core

import (
	"context"
	"time"
)

type (
	// UpdateRecord is one persisted CRDT update for a canvas. Records are
	// append-only and ordered by CreatedAt ascending.
	UpdateRecord struct {
		ID        string    `json:"id"`
		CanvasID  string    `json:"canvasId"`
		Update    []byte    `json:"update,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// UpdateStore defines the persistence layer for canvas update history.
	// The engine treats update payloads as opaque bytes; stores must not
	// inspect or rewrite them.
	UpdateStore interface {
		// ListUpdates returns the full update history for a canvas, oldest
		// first. An empty history is a nil or empty slice, not an error.
		ListUpdates(ctx context.Context, canvasID string) ([][]byte, error)

		// AppendUpdate durably appends one update to a canvas's history.
		// There is no update or delete; history only grows.
		AppendUpdate(ctx context.Context, canvasID string, update []byte) error
	}
)
