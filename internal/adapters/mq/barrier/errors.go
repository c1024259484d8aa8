package barrier

import "errors"

// Sentinel kinds for barrier errors.
var (
	ErrUnknownBatch = errors.New("unknown batch")
	ErrEmptyBatch   = errors.New("batch needs at least one child")
	ErrBatchExists  = errors.New("batch already open")
)
