// Package automerge adapts github.com/automerge/automerge-go to the
// crdt.Engine contract used by the sync engine.
package automerge

import (
	"fmt"

	"canvas-sync/crdt"

	automergego "github.com/automerge/automerge-go"
)

type Engine struct{}

// New returns an automerge-backed CRDT engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) NewDocument() crdt.Document {
	return automergego.New()
}

func (e *Engine) Apply(doc crdt.Document, update []byte) error {
	d, ok := doc.(*automergego.Doc)
	if !ok {
		return fmt.Errorf("document is not an automerge doc")
	}
	if err := d.LoadIncremental(update); err != nil {
		return fmt.Errorf("load incremental update: %w", err)
	}
	return nil
}

func (e *Engine) Merge(updates [][]byte) ([]byte, error) {
	d := automergego.New()
	for i, update := range updates {
		if err := d.LoadIncremental(update); err != nil {
			return nil, fmt.Errorf("merge update %d of %d: %w", i+1, len(updates), err)
		}
	}
	return d.Save(), nil
}

func (e *Engine) Snapshot(doc crdt.Document) ([]byte, error) {
	d, ok := doc.(*automergego.Doc)
	if !ok {
		return nil, fmt.Errorf("document is not an automerge doc")
	}
	return d.Save(), nil
}
