package model

// TaskKind selects how a worker handles a Task.
type TaskKind string

// Task kinds.
const (
	// TaskQuestion resets one question and fans it out to every subject.
	TaskQuestion TaskKind = "question"
	// TaskUnit answers and rates one question for one subject.
	TaskUnit TaskKind = "unit"
)

// Task is the payload flowing through the work queue.
type Task struct {
	ID         string   `json:"id"`
	Kind       TaskKind `json:"kind"`
	QuestionID int64    `json:"question_id"`
	SubjectID  int64    `json:"subject_id,omitempty"`
	// BatchID ties the task to a fan-in barrier. Empty for fire-and-forget work.
	BatchID string `json:"batch_id,omitempty"`
}
