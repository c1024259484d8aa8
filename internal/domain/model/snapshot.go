package model

import "time"

// Trigger records why a snapshot was taken.
type Trigger string

// Snapshot triggers.
const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

// SnapshotMetadata is the audit information stored with every snapshot.
type SnapshotMetadata struct {
	SubjectCount   int     `json:"subject_count"`
	DimensionCount int     `json:"dimension_count"`
	QuestionCount  int     `json:"question_count"`
	Trigger        Trigger `json:"trigger"`
	Source         string  `json:"source,omitempty"`
	BatchID        string  `json:"batch_id,omitempty"`
	ScoreThreshold float64 `json:"score_threshold"`
	RateThreshold  float64 `json:"rate_threshold"`
}

// Snapshot is an immutable persisted leaderboard. Dimensions and Rows hold the
// serialized read model exactly as it was computed.
type Snapshot struct {
	ID         int64
	CreatedAt  time.Time
	Dimensions []byte
	Rows       []byte
	Metadata   SnapshotMetadata
}
