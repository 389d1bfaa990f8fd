package db

import "errors"

// Sentinel errors for vector backend operations.
var (
	ErrUnavailable   = errors.New("db: backend unavailable")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrBadDimension  = errors.New("db: vector dimension mismatch")
)

// Op constants name backend operations for error context.
const (
	OpCreateIndex = "create-index"
	OpIndexInfo   = "index-info"
	OpUpsert      = "upsert"
	OpSearch      = "search"
	OpDelete      = "delete"
	OpScan        = "scan"
	OpPing        = "ping"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
