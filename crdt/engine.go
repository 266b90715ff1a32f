// Package crdt defines the contract the sync engine expects from a
// conflict-free replicated document implementation. The engine never
// inspects update payloads; they are opaque bytes produced and consumed
// by whichever Engine implementation is injected.
package crdt

// Document is an opaque replica handle. Only the Engine that created it
// knows its concrete type.
type Document any

// Engine is the injected CRDT capability. Merge must be commutative,
// associative and idempotent: applying the merged update to an empty
// document is equivalent to applying every input update in any order.
type Engine interface {
	// NewDocument returns a fresh, empty replica.
	NewDocument() Document

	// Apply mutates the document in place. Malformed bytes must fail with
	// an error and leave the document unchanged.
	Apply(doc Document, update []byte) error

	// Merge compacts a list of updates into a single update.
	Merge(updates [][]byte) ([]byte, error)

	// Snapshot returns an update capturing the document's entire current
	// state, suitable for bootstrapping a fresh replica.
	Snapshot(doc Document) ([]byte, error)
}
