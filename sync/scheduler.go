package sync

import (
	"context"
	stdsync "sync"
	"time"

	"canvas-sync/core"
	"canvas-sync/crdt"

	"github.com/sirupsen/logrus"
)

// DefaultFlushInterval is how often buffered updates are persisted when
// no interval is configured.
const DefaultFlushInterval = 5 * time.Second

// FlushScheduler periodically drains the update buffer, compacts each
// canvas's batch into a single update, and appends it to the store. One
// write failure is isolated to its canvas: the batch is requeued for the
// next cycle and the remaining canvases still flush.
type FlushScheduler struct {
	engine   crdt.Engine
	store    core.UpdateStore
	buffer   *UpdateBuffer
	interval time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce stdsync.Once
}

func NewFlushScheduler(engine crdt.Engine, store core.UpdateStore, buffer *UpdateBuffer, interval time.Duration) *FlushScheduler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &FlushScheduler{
		engine:   engine,
		store:    store,
		buffer:   buffer,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the flush loop. It runs until Close.
func (s *FlushScheduler) Start() {
	go s.run()
}

func (s *FlushScheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Close stops the loop and runs one final unconditional flush so the
// tail of updates accumulated since the last tick is not lost.
func (s *FlushScheduler) Close(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	s.Flush(ctx)
}

// Flush drains every pending batch and writes one merged record per
// canvas.
func (s *FlushScheduler) Flush(ctx context.Context) {
	batches := s.buffer.Swap()
	if len(batches) == 0 {
		return
	}

	for canvasID, updates := range batches {
		if len(updates) == 0 {
			continue
		}
		s.flushCanvas(ctx, canvasID, updates)
	}
}

func (s *FlushScheduler) flushCanvas(ctx context.Context, canvasID string, updates [][]byte) {
	log := logrus.WithFields(logrus.Fields{
		"canvas_id":    canvasID,
		"update_count": len(updates),
	})

	merged, err := s.engine.Merge(updates)
	if err != nil {
		// The buffer only ever holds updates that already applied cleanly,
		// so a merge failure is a bug in the CRDT engine, not bad input.
		// Requeueing would retry forever; drop and report instead.
		log.WithError(err).Error("Failed to merge pending updates, batch dropped")
		return
	}

	if err := s.store.AppendUpdate(ctx, canvasID, merged); err != nil {
		log.WithError(err).Error("Failed to persist merged update, batch requeued")
		s.buffer.Requeue(canvasID, updates)
		return
	}

	log.WithField("merged_length", len(merged)).Debug("Flushed canvas updates")
}
