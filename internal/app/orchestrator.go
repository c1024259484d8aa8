package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/evalboard/internal/adapters/mq/barrier"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Regeneration sources recorded on batches and snapshots.
const (
	SourceRegenerateAll = "regenerate_all"
	SourceSchedule      = "schedule"
	SourceOperator      = "operator"
)

// Dispatch reports what a regeneration request queued.
type Dispatch struct {
	BatchID    string `json:"batch_id,omitempty"`
	QuestionID int64  `json:"question_id,omitempty"`
	SubjectID  int64  `json:"subject_id,omitempty"`
	Questions  int    `json:"questions"`
	Units      int    `json:"units"`
	Skipped    int    `json:"skipped,omitempty"`
}

// RegenerateQuestion deletes the question's ratings and answers, then queues one
// unit per subject. The reset commits before any unit is queued. The question
// stays claimed until its last unit finishes.
func (s *Service) RegenerateQuestion(ctx context.Context, questionID int64) (Dispatch, error) {
	if !s.isStarted() {
		return Dispatch{}, ErrNotStarted
	}
	ctx, span := tracer.Start(ctx, "regenerate_question")
	defer span.End()
	span.SetAttributes(attribute.Int64("question_id", questionID))
	metrics.RecordRegeneration("question")

	if _, err := s.store.Question(ctx, questionID); err != nil {
		return Dispatch{}, err
	}
	if !s.claim(ctx, questionID) {
		return Dispatch{}, fmt.Errorf("question %d: %w", questionID, ErrAlreadyQueued)
	}
	defer s.release(ctx, questionID)

	units, err := s.dispatchQuestion(ctx, questionID, "")
	if err != nil {
		return Dispatch{}, err
	}
	return Dispatch{QuestionID: questionID, Questions: 1, Units: units}, nil
}

// dispatchQuestion resets one claimed question and queues its units. With a
// batch id, the units are added to the batch before the caller marks the
// question done.
func (s *Service) dispatchQuestion(ctx context.Context, questionID int64, batchID string) (int, error) {
	subjects, err := s.subjectPool(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.store.ResetQuestion(ctx, questionID); err != nil {
		return 0, fmt.Errorf("reset question %d: %w", questionID, err)
	}
	if len(subjects) == 0 {
		s.logger.Warn(ctx, "no subjects to evaluate after excluding raters",
			logger.Int64("question_id", questionID))
		return 0, nil
	}
	if batchID != "" {
		if err := s.barrier.Add(ctx, batchID, len(subjects)); err != nil {
			return 0, err
		}
	}
	s.hold(questionID, len(subjects))
	queued := 0
	for _, subj := range subjects {
		task := model.Task{
			ID:         uuid.NewString(),
			Kind:       model.TaskUnit,
			QuestionID: questionID,
			SubjectID:  subj.ID,
			BatchID:    batchID,
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.Error(ctx, "unit not queued",
				logger.Int64("question_id", questionID),
				logger.Int64("subject_id", subj.ID),
				logger.Error(err),
			)
			s.release(ctx, questionID)
			s.finish(ctx, task)
			continue
		}
		queued++
	}
	return queued, nil
}

// RegenerateAll queues one question group per question under a fresh barrier.
// The barrier fires once every group and every nested unit has finished, and
// its callback stores an automatic snapshot. An empty corpus is a no-op.
func (s *Service) RegenerateAll(ctx context.Context, source string) (Dispatch, error) {
	if !s.isStarted() {
		return Dispatch{}, ErrNotStarted
	}
	ctx, span := tracer.Start(ctx, "regenerate_all")
	defer span.End()
	metrics.RecordRegeneration("all")
	if source == "" {
		source = SourceRegenerateAll
	}

	questions, err := s.store.Questions(ctx)
	if err != nil {
		return Dispatch{}, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		s.logger.Warn(ctx, "no questions in corpus; skipping regeneration")
		return Dispatch{}, nil
	}

	var accepted []int64
	for _, q := range questions {
		if !s.claim(ctx, q.ID) {
			s.logger.Warn(ctx, "question already queued; leaving it out of the batch", logger.Int64("question_id", q.ID))
			continue
		}
		accepted = append(accepted, q.ID)
	}
	d := Dispatch{Skipped: len(questions) - len(accepted)}
	if len(accepted) == 0 {
		return d, fmt.Errorf("every question: %w", ErrAlreadyQueued)
	}

	batch := barrier.Batch{ID: uuid.NewString(), Source: source}
	span.SetAttributes(attribute.String("batch_id", batch.ID), attribute.Int("questions", len(accepted)))
	if err := s.barrier.Open(ctx, batch, len(accepted)); err != nil {
		for _, id := range accepted {
			s.release(ctx, id)
		}
		return d, err
	}
	d.BatchID = batch.ID

	for _, id := range accepted {
		task := model.Task{ID: uuid.NewString(), Kind: model.TaskQuestion, QuestionID: id, BatchID: batch.ID}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.Error(ctx, "question group not queued", logger.Int64("question_id", id), logger.Error(err))
			s.release(ctx, id)
			s.finish(ctx, task)
			continue
		}
		d.Questions++
	}
	s.logger.Info(ctx, "full regeneration queued",
		logger.String("batch_id", batch.ID),
		logger.String("source", source),
		logger.Int("questions", d.Questions),
	)
	return d, nil
}

// RegenerateSubjectAll deletes the subject's answers and ratings, then queues
// one unit per question for it. There is no fan-in. It claims every question,
// so it is refused while any question is being regenerated.
func (s *Service) RegenerateSubjectAll(ctx context.Context, subjectID int64) (Dispatch, error) {
	if !s.isStarted() {
		return Dispatch{}, ErrNotStarted
	}
	ctx, span := tracer.Start(ctx, "regenerate_subject")
	defer span.End()
	span.SetAttributes(attribute.Int64("subject_id", subjectID))
	metrics.RecordRegeneration("subject")

	subj, err := s.store.Subject(ctx, subjectID)
	if err != nil {
		return Dispatch{}, err
	}
	if s.raters.Contains(subj.Name) {
		return Dispatch{}, fmt.Errorf("subject %q: %w", subj.Name, ErrRaterSubject)
	}
	questions, err := s.store.Questions(ctx)
	if err != nil {
		return Dispatch{}, fmt.Errorf("list questions: %w", err)
	}
	d := Dispatch{SubjectID: subjectID, Questions: len(questions)}
	if len(questions) == 0 {
		s.logger.Warn(ctx, "no questions in corpus; skipping subject regeneration", logger.Int64("subject_id", subjectID))
		return d, nil
	}
	if !s.claimAll(ctx, questions) {
		return Dispatch{}, fmt.Errorf("subject %d: %w", subjectID, ErrAlreadyQueued)
	}
	defer func() {
		for _, q := range questions {
			s.release(ctx, q.ID)
		}
	}()
	if err := s.store.ResetSubject(ctx, subjectID); err != nil {
		return Dispatch{}, fmt.Errorf("reset subject %d: %w", subjectID, err)
	}
	for _, q := range questions {
		task := model.Task{ID: uuid.NewString(), Kind: model.TaskUnit, QuestionID: q.ID, SubjectID: subjectID}
		s.hold(q.ID, 1)
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.Error(ctx, "unit not queued",
				logger.Int64("question_id", q.ID), logger.Int64("subject_id", subjectID), logger.Error(err))
			s.release(ctx, q.ID)
			continue
		}
		d.Units++
	}
	return d, nil
}

// Handle runs one queued task. Batched tasks always report completion to the
// barrier, whatever the outcome.
func (s *Service) Handle(ctx context.Context, t model.Task) error {
	defer s.finish(ctx, t)

	switch t.Kind {
	case model.TaskQuestion:
		defer s.release(ctx, t.QuestionID)
		if _, err := s.store.Question(ctx, t.QuestionID); err != nil {
			s.logger.Error(ctx, "question group skipped", logger.Int64("question_id", t.QuestionID), logger.Error(err))
			return s.refError(err)
		}
		_, err := s.dispatchQuestion(ctx, t.QuestionID, t.BatchID)
		return err
	case model.TaskUnit:
		defer s.release(ctx, t.QuestionID)
		return s.Process(ctx, t.SubjectID, t.QuestionID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTask, t.Kind)
	}
}

// finish marks a batched task terminal.
func (s *Service) finish(ctx context.Context, t model.Task) {
	if t.BatchID == "" {
		return
	}
	if err := s.barrier.Done(ctx, t.BatchID); err != nil {
		s.logger.Error(ctx, "barrier completion failed",
			logger.String("batch_id", t.BatchID), logger.String("task_id", t.ID), logger.Error(err))
	}
}

// onBatchComplete stores the automatic snapshot for a finished full regeneration.
func (s *Service) onBatchComplete(ctx context.Context, b barrier.Batch) {
	snap, err := s.CaptureSnapshot(ctx, model.TriggerAuto, b.Source, b.ID)
	if err != nil {
		s.logger.Error(ctx, "automatic snapshot failed", logger.String("batch_id", b.ID), logger.Error(err))
		return
	}
	s.logger.Info(ctx, "automatic snapshot saved",
		logger.Int64("snapshot_id", snap.ID), logger.String("batch_id", b.ID))
}
