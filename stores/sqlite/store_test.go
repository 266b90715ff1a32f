package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "test.db"))
}

func TestListUpdates_EmptyHistory(t *testing.T) {
	store := newTestStore(t)

	history, err := store.ListUpdates(context.Background(), "cat-1")
	if err != nil {
		t.Fatalf("ListUpdates() failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("ListUpdates() on fresh database returned %d updates", len(history))
	}
}

func TestAppendUpdate_RoundTripInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	updates := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	for _, update := range updates {
		if err := store.AppendUpdate(ctx, "cat-1", update); err != nil {
			t.Fatalf("AppendUpdate() failed: %v", err)
		}
	}

	history, err := store.ListUpdates(ctx, "cat-1")
	if err != nil {
		t.Fatalf("ListUpdates() failed: %v", err)
	}
	if len(history) != len(updates) {
		t.Fatalf("ListUpdates() returned %d updates, want %d", len(history), len(updates))
	}
	for i := range updates {
		if !bytes.Equal(history[i], updates[i]) {
			t.Errorf("update %d = %q, want %q", i, history[i], updates[i])
		}
	}
}

func TestAppendUpdate_IsolatesCanvases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AppendUpdate(ctx, "cat-1", []byte("a")); err != nil {
		t.Fatalf("AppendUpdate() failed: %v", err)
	}
	if err := store.AppendUpdate(ctx, "cat-2", []byte("b")); err != nil {
		t.Fatalf("AppendUpdate() failed: %v", err)
	}

	history, err := store.ListUpdates(ctx, "cat-2")
	if err != nil {
		t.Fatalf("ListUpdates() failed: %v", err)
	}
	if len(history) != 1 || !bytes.Equal(history[0], []byte("b")) {
		t.Errorf("cat-2 history = %v, want [b]", history)
	}
}

func TestAppendUpdate_BinaryPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte{0x00, 0xff, 0x10, 0x00, 0x7f}
	if err := store.AppendUpdate(ctx, "cat-1", payload); err != nil {
		t.Fatalf("AppendUpdate() failed: %v", err)
	}

	history, err := store.ListUpdates(ctx, "cat-1")
	if err != nil {
		t.Fatalf("ListUpdates() failed: %v", err)
	}
	if len(history) != 1 || !bytes.Equal(history[0], payload) {
		t.Errorf("binary payload round trip failed: got %v", history)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dataSourceName := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store := NewStore(dataSourceName)
	if err := store.AppendUpdate(ctx, "cat-1", []byte("durable")); err != nil {
		t.Fatalf("AppendUpdate() failed: %v", err)
	}
	if err := store.db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	reopened := NewStore(dataSourceName)
	history, err := reopened.ListUpdates(ctx, "cat-1")
	if err != nil {
		t.Fatalf("ListUpdates() after reopen failed: %v", err)
	}
	if len(history) != 1 || !bytes.Equal(history[0], []byte("durable")) {
		t.Errorf("history after reopen = %v, want [durable]", history)
	}
}
