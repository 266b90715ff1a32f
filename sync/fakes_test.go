package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	stdsync "sync"

	"canvas-sync/crdt"
)

// fakeEngine models a CRDT as a grow-only set of string tokens. An
// update is a "|"-joined token list; apply unions the tokens into the
// document, merge unions updates into one, and snapshot returns the
// sorted unique tokens. That gives real commutativity and idempotence
// without depending on an actual CRDT implementation.
type fakeEngine struct{}

type fakeDoc struct {
	mu     stdsync.Mutex
	tokens map[string]struct{}
}

func splitTokens(update []byte) ([]string, error) {
	if len(update) == 0 {
		return nil, nil
	}
	tokens := strings.Split(string(update), "|")
	for _, token := range tokens {
		if strings.HasPrefix(token, "bad") {
			return nil, fmt.Errorf("corrupt token %q", token)
		}
	}
	return tokens, nil
}

func (fakeEngine) NewDocument() crdt.Document {
	return &fakeDoc{tokens: make(map[string]struct{})}
}

func (fakeEngine) Apply(doc crdt.Document, update []byte) error {
	tokens, err := splitTokens(update)
	if err != nil {
		return err
	}
	d := doc.(*fakeDoc)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, token := range tokens {
		d.tokens[token] = struct{}{}
	}
	return nil
}

func (fakeEngine) Merge(updates [][]byte) ([]byte, error) {
	seen := make(map[string]struct{})
	var merged []string
	for _, update := range updates {
		tokens, err := splitTokens(update)
		if err != nil {
			return nil, err
		}
		for _, token := range tokens {
			if _, ok := seen[token]; !ok {
				seen[token] = struct{}{}
				merged = append(merged, token)
			}
		}
	}
	return []byte(strings.Join(merged, "|")), nil
}

func (fakeEngine) Snapshot(doc crdt.Document) ([]byte, error) {
	d := doc.(*fakeDoc)
	d.mu.Lock()
	defer d.mu.Unlock()
	tokens := make([]string, 0, len(d.tokens))
	for token := range d.tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return []byte(strings.Join(tokens, "|")), nil
}

// fakeStore is an in-memory UpdateStore with injectable failures.
type fakeStore struct {
	mu      stdsync.Mutex
	records map[string][][]byte

	listErr        error
	appendFailures map[string]int // remaining failures per canvas
	listCalls      int
	appendCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:        make(map[string][][]byte),
		appendFailures: make(map[string]int),
	}
}

func (s *fakeStore) ListUpdates(ctx context.Context, canvasID string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	history := make([][]byte, len(s.records[canvasID]))
	copy(history, s.records[canvasID])
	return history, nil
}

func (s *fakeStore) AppendUpdate(ctx context.Context, canvasID string, update []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if remaining := s.appendFailures[canvasID]; remaining > 0 {
		s.appendFailures[canvasID] = remaining - 1
		return fmt.Errorf("append failed for %s", canvasID)
	}
	s.records[canvasID] = append(s.records[canvasID], append([]byte(nil), update...))
	return nil
}

func (s *fakeStore) updatesFor(canvasID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([][]byte, len(s.records[canvasID]))
	copy(history, s.records[canvasID])
	return history
}

// recordingTransport captures broadcasts for assertions.
type recordingTransport struct {
	mu     stdsync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	CanvasID string
	Event    string
	Payload  any
	Except   string
}

func (t *recordingTransport) Broadcast(canvasID, event string, payload any, exceptSessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, broadcastEvent{
		CanvasID: canvasID,
		Event:    event,
		Payload:  payload,
		Except:   exceptSessionID,
	})
}

func (t *recordingTransport) all() []broadcastEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := make([]broadcastEvent, len(t.events))
	copy(events, t.events)
	return events
}

func (t *recordingTransport) byEvent(event string) []broadcastEvent {
	var matched []broadcastEvent
	for _, e := range t.all() {
		if e.Event == event {
			matched = append(matched, e)
		}
	}
	return matched
}
