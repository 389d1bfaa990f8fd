package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidItem signals item data rejected before any side effect.
	ErrInvalidItem = errors.New("invalid item")
	// ErrInvalidFilter signals a malformed search filter.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrItemNotFound signals a missing catalog item.
	ErrItemNotFound = errors.New("item not found")
	// ErrDuplicateID signals a create with an already assigned id.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrDimensionMismatch signals an embedding that violates the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIndexUnavailable signals that the vector backend cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrStoreUnavailable signals that the record store cannot be reached.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrEmbedderUnavailable signals an embedding provider failure.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
	// ErrConsistencyFault signals divergence between record store and vector index.
	ErrConsistencyFault = errors.New("consistency fault")
)

// IngestStage identifies where in the ingestion pipeline an item failed.
type IngestStage string

// Ingestion pipeline stages.
const (
	StagePending   IngestStage = "pending"
	StageEmbedded  IngestStage = "embedded"
	StageWritten   IngestStage = "written"
	StageCommitted IngestStage = "committed"
)

// ItemFailure records one item that did not reach the committed state.
type ItemFailure struct {
	ID    string
	Stage IngestStage
	Err   error
}

// PartialIngestError reports a batch that made partial progress. Every item
// of the submitted batch ends up either in Committed or in Failed.
type PartialIngestError struct {
	Committed []string
	Failed    []ItemFailure
}

func (e *PartialIngestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "partial ingest failure: %d committed, %d failed", len(e.Committed), len(e.Failed))
	for _, f := range e.Failed {
		fmt.Fprintf(&b, "; %s@%s: %v", f.ID, f.Stage, f.Err)
	}
	return b.String()
}

// Unwrap exposes the cause of the first failed item so callers can match
// the partial failure against the underlying sentinel.
func (e *PartialIngestError) Unwrap() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e.Failed[0].Err
}
