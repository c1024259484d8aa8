// Package repository persists the corpus, generated answers, ratings and snapshots.
package repository

import (
	"context"
	"time"

	"github.com/okian/evalboard/internal/domain/model"
)

// Corpus reads the administrative data the engine evaluates against.
type Corpus interface {
	Subjects(ctx context.Context) ([]model.Subject, error)
	// Subject returns ErrNotFound for an unknown id.
	Subject(ctx context.Context, id int64) (model.Subject, error)
	Dimensions(ctx context.Context) ([]model.Dimension, error)
	Questions(ctx context.Context) ([]model.Question, error)
	// Question returns ErrNotFound for an unknown id.
	Question(ctx context.Context, id int64) (model.Question, error)
	// Setting returns ErrNotFound when no override exists for t.
	Setting(ctx context.Context, t model.QuestionType) (model.Setting, error)
}

// Results stores generated answers and their ratings.
type Results interface {
	// ResetQuestion deletes every rating and answer of a question in one transaction.
	ResetQuestion(ctx context.Context, questionID int64) error
	// ResetSubject deletes every rating and answer of a subject in one transaction.
	ResetSubject(ctx context.Context, subjectID int64) error
	// SaveRatedAnswer writes an answer and its rating together. IDs and timestamps are assigned.
	SaveRatedAnswer(ctx context.Context, a model.Answer, r model.Rating) (model.Answer, model.Rating, error)
	AnswersForQuestion(ctx context.Context, questionID int64) ([]model.Answer, error)
	RatingForAnswer(ctx context.Context, answerID int64) (model.Rating, error)
	// RatedAnswers joins every rating with its answer and question.
	RatedAnswers(ctx context.Context) ([]model.RatedAnswer, error)
}

// SnapshotFilter narrows snapshot listings. A zero Day lists everything.
type SnapshotFilter struct {
	Day time.Time
}

// Snapshots is append-only storage for leaderboard snapshots.
type Snapshots interface {
	InsertSnapshot(ctx context.Context, s model.Snapshot) (model.Snapshot, error)
	// ListSnapshots returns newest first.
	ListSnapshots(ctx context.Context, f SnapshotFilter) ([]model.Snapshot, error)
	GetSnapshot(ctx context.Context, id int64) (model.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id int64) error
}

// Admin writes corpus records. It backs the import tooling.
type Admin interface {
	UpsertDimension(ctx context.Context, d model.Dimension) error
	UpsertSubject(ctx context.Context, s model.Subject) (model.Subject, error)
	UpsertQuestion(ctx context.Context, q model.Question) (model.Question, error)
	UpsertSetting(ctx context.Context, s model.Setting) error
}

// Store is the full persistence surface.
type Store interface {
	Corpus
	Results
	Snapshots
	Admin
	Close() error
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
