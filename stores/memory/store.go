package memory

import (
	"context"
	"sync"
	"time"

	"canvas-sync/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore keeps update history in process memory. It is the default
// backend and the one the tests lean on.
type memStore struct {
	mu      sync.RWMutex
	updates map[string][]core.UpdateRecord
}

// NewStore creates a new in-memory update store.
func NewStore() *memStore {
	return &memStore{
		updates: make(map[string][]core.UpdateRecord),
	}
}

// ListUpdates returns the canvas's history in append order, which is
// also creation-time order.
func (s *memStore) ListUpdates(ctx context.Context, canvasID string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.updates[canvasID]
	history := make([][]byte, 0, len(records))
	for _, record := range records {
		history = append(history, record.Update)
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id":    canvasID,
		"update_count": len(history),
	}).Debug("Listed canvas updates")
	return history, nil
}

func (s *memStore) AppendUpdate(ctx context.Context, canvasID string, update []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := core.UpdateRecord{
		ID:        ulid.Make().String(),
		CanvasID:  canvasID,
		Update:    append([]byte(nil), update...),
		CreatedAt: time.Now(),
	}
	s.updates[canvasID] = append(s.updates[canvasID], record)

	logrus.WithFields(logrus.Fields{
		"canvas_id":   canvasID,
		"update_id":   record.ID,
		"data_length": len(update),
	}).Debug("Update appended")
	return nil
}
