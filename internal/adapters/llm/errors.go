package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned when a subject names a provider with no registered factory.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrEmptyAPIKey is returned when a provider that needs a key is configured without one.
	ErrEmptyAPIKey = errors.New("api key is empty")
	// ErrEmptyResponse is returned when the provider answered with no text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// StatusError carries the HTTP status reported by a provider SDK.
type StatusError struct {
	Provider string
	Status   int
	Err      error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed with status %d: %v", e.Provider, e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}
