package model

import "time"

// Answer is one subject's response to one question.
type Answer struct {
	ID         int64
	QuestionID int64
	SubjectID  int64
	Content    string
	CreatedAt  time.Time
}

// Rating is the reduced verdict over one answer.
type Rating struct {
	ID           int64
	AnswerID     int64
	SubjectID    int64
	Score        float64
	Comment      string
	IsResponsive bool
	CreatedAt    time.Time
}

// RatedAnswer is the joined row the aggregation reads: a rating with its
// subject, question type and leaf dimension.
type RatedAnswer struct {
	SubjectID    int64
	QuestionID   int64
	QuestionType QuestionType
	DimensionID  int64
	Score        float64
	IsResponsive bool
}
