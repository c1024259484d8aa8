// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownQuestionType is returned when a question type string is not recognised.
var ErrUnknownQuestionType = errors.New("unknown question type")

// QuestionType is the closed set of question kinds.
type QuestionType int

// Question types. The zero value is invalid.
const (
	Objective QuestionType = iota + 1
	Subjective
)

// QuestionTypes lists every valid type in a fixed order.
var QuestionTypes = []QuestionType{Objective, Subjective} //nolint:gochecknoglobals // closed enum

// String returns the wire name of the type.
func (t QuestionType) String() string {
	switch t {
	case Objective:
		return "objective"
	case Subjective:
		return "subjective"
	default:
		return fmt.Sprintf("QuestionType(%d)", int(t))
	}
}

// Valid reports whether t is one of the declared types.
func (t QuestionType) Valid() bool {
	return t == Objective || t == Subjective
}

// ParseQuestionType converts a wire name into a QuestionType.
func ParseQuestionType(s string) (QuestionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "objective":
		return Objective, nil
	case "subjective":
		return Subjective, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownQuestionType, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t QuestionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownQuestionType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *QuestionType) UnmarshalText(b []byte) error {
	parsed, err := ParseQuestionType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Question is an immutable prompt attached to a leaf dimension.
type Question struct {
	ID          int64
	DimensionID int64
	Type        QuestionType
	Content     string
	// ReferenceAnswer is only meaningful for objective questions.
	ReferenceAnswer string
}

// Setting overrides criteria and score ceiling for one question type.
type Setting struct {
	Type         QuestionType
	Criteria     string
	ScoreCeiling float64
}
