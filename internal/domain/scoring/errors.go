package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrNoTemplate   = errors.New("no prompt template for question type")
	ErrInvalidScore = errors.New("invalid score")
)
