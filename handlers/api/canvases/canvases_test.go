package canvases

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"canvas-sync/crdt"
	syncengine "canvas-sync/sync"

	"github.com/go-chi/chi/v5"
)

// staticEngine is a minimal CRDT stand-in: documents accumulate raw
// update bytes and snapshot to their concatenation.
type staticEngine struct{}

type staticDoc struct {
	data []byte
}

func (staticEngine) NewDocument() crdt.Document { return &staticDoc{} }

func (staticEngine) Apply(doc crdt.Document, update []byte) error {
	d := doc.(*staticDoc)
	d.data = append(d.data, update...)
	return nil
}

func (staticEngine) Merge(updates [][]byte) ([]byte, error) {
	var merged []byte
	for _, u := range updates {
		merged = append(merged, u...)
	}
	return merged, nil
}

func (staticEngine) Snapshot(doc crdt.Document) ([]byte, error) {
	return doc.(*staticDoc).data, nil
}

type emptyStore struct{}

func (emptyStore) ListUpdates(ctx context.Context, canvasID string) ([][]byte, error) {
	return nil, nil
}

func (emptyStore) AppendUpdate(ctx context.Context, canvasID string, update []byte) error {
	return nil
}

func newTestEngine(t *testing.T) *syncengine.Engine {
	t.Helper()
	return syncengine.New(staticEngine{}, emptyStore{}, syncengine.Options{FlushInterval: time.Hour})
}

func newTestRouter(engine *syncengine.Engine) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/canvases", HandleList(engine))
	r.Get("/canvases/{id}/snapshot", HandleSnapshot(engine))
	return r
}

func TestHandleList_Empty(t *testing.T) {
	r := newTestRouter(newTestEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/canvases", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var infos []syncengine.CanvasInfo
	if err := json.Unmarshal(w.Body.Bytes(), &infos); err != nil {
		t.Fatalf("response is not a JSON array: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("got %d canvases, want 0", len(infos))
	}
}

func TestHandleList_LiveCanvases(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Attach(context.Background(), "room-1", "cat-1", "A"); err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}
	if _, err := engine.Attach(context.Background(), "room-1", "cat-1", "B"); err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}
	r := newTestRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/canvases", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var infos []syncengine.CanvasInfo
	if err := json.Unmarshal(w.Body.Bytes(), &infos); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d canvases, want 1", len(infos))
	}
	if infos[0].CanvasID != "cat-1" || infos[0].Sessions != 2 {
		t.Errorf("canvas info = %+v, want cat-1 with 2 sessions", infos[0])
	}
}

func TestHandleSnapshot_ReturnsBytes(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Attach(context.Background(), "room-1", "cat-1", "A"); err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}
	if err := engine.Update("cat-1", "A", []byte{1, 2, 3}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	r := newTestRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/canvases/cat-1/snapshot", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", got)
	}
	if body := w.Body.Bytes(); len(body) != 3 || body[0] != 1 {
		t.Errorf("snapshot body = %v, want [1 2 3]", body)
	}
}

func TestHandleSnapshot_UnknownCanvas(t *testing.T) {
	r := newTestRouter(newTestEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/canvases/cat-missing/snapshot", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
