package sync

import "errors"

var (
	// ErrUnknownCanvas is returned when an update or awareness message
	// references a canvas with no live document. The engine never creates
	// a document as a side effect of these calls; the transport layer can
	// match this error and tell the client to re-attach.
	ErrUnknownCanvas = errors.New("unknown canvas")

	// ErrMalformedUpdate wraps a CRDT apply failure. The document is left
	// unchanged and the offending update is neither buffered nor broadcast.
	ErrMalformedUpdate = errors.New("malformed update")
)
