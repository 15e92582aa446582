package types

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable signals that the inference service could not be
// reached or timed out. Callers must propagate it, never substitute an
// empty vector or an empty judgment.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrDuplicateSubmission signals a content hash collision with an active
// submitted document.
var ErrDuplicateSubmission = errors.New("duplicate submission")

// ErrMalformedModelResponse marks a model response that did not contain a
// parseable findings payload. Recovered locally via text extraction and
// logged; never escalated to the caller as a hard failure.
var ErrMalformedModelResponse = errors.New("malformed model response")

// ErrRunNotFound is returned when no compliance run exists for a document.
var ErrRunNotFound = errors.New("compliance run not found")

// IndexInconsistencyError reports a disagreement between the vector index
// and the relational mirror on a document's chunk count. Surfaced to the
// operator, never auto-healed.
type IndexInconsistencyError struct {
	DocID      string
	VectorRows int
	MirrorRows int
}

func (e IndexInconsistencyError) Error() string {
	return fmt.Sprintf("index inconsistency for document %s: vector store has %d rows, relational mirror has %d",
		e.DocID, e.VectorRows, e.MirrorRows)
}
