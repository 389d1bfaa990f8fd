package ingest

import "github.com/localmart/searchd/internal/domain"

// ItemStatus is the terminal state of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusCommitted ItemStatus = "committed"
	StatusFailed    ItemStatus = "failed"
)

// Result is the outcome of processing one item in an ingestion batch.
type Result struct {
	id     string
	status ItemStatus
	stage  domain.IngestStage
	err    error
}

// NewCommitted creates a successful item result.
func NewCommitted(id string) Result {
	return Result{id: id, status: StatusCommitted, stage: domain.StageCommitted}
}

// NewFailed creates a failed item result recording the stage reached.
func NewFailed(id string, stage domain.IngestStage, err error) Result {
	return Result{id: id, status: StatusFailed, stage: stage, err: err}
}

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the terminal state.
func (r Result) Status() ItemStatus { return r.status }

// Stage returns the last pipeline stage the item reached.
func (r Result) Stage() domain.IngestStage { return r.stage }

// Err returns the failure cause, nil for committed items.
func (r Result) Err() error { return r.err }
