package sync

import stdsync "sync"

// UpdateBuffer accumulates applied updates per canvas until the next
// flush. Adding never blocks on I/O; draining swaps the whole table so
// updates arriving mid-flush land in the next batch, never lost and
// never visible to the in-flight flush.
type UpdateBuffer struct {
	mu      stdsync.Mutex
	pending map[string][][]byte
}

func NewUpdateBuffer() *UpdateBuffer {
	return &UpdateBuffer{
		pending: make(map[string][][]byte),
	}
}

// Add appends one update to the canvas's pending batch.
func (b *UpdateBuffer) Add(canvasID string, update []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[canvasID] = append(b.pending[canvasID], update)
}

// Swap atomically replaces the batch table with an empty one and returns
// the previous table. Exactly one caller sees each batch.
func (b *UpdateBuffer) Swap() map[string][][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	swapped := b.pending
	b.pending = make(map[string][][]byte)
	return swapped
}

// Requeue puts a failed batch back in front of whatever has accumulated
// since the swap, so the next flush retries it. CRDT idempotence makes a
// duplicate write harmless.
func (b *UpdateBuffer) Requeue(canvasID string, updates [][]byte) {
	if len(updates) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[canvasID] = append(updates, b.pending[canvasID]...)
}

// Len reports the number of canvases with pending updates.
func (b *UpdateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
