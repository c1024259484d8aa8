package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrAlreadyQueued    = errors.New("regeneration already queued")
	ErrRaterSubject     = errors.New("subject is a rater")
	ErrUnknownTask      = errors.New("unknown task kind")
	ErrMissingReference = errors.New("missing reference")
	ErrInvalidTrigger   = errors.New("invalid snapshot trigger")
)
