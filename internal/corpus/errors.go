package corpus

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidCorpus = errors.New("invalid corpus")
	ErrReadCorpus    = errors.New("read corpus failed")
)
