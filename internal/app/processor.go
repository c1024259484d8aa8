package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Unit outcomes recorded in metrics.
const (
	unitOK          = "ok"
	unitMissingRef  = "missing_reference"
	unitGenFailed   = "generation_failed"
	unitScoreFailed = "scoring_failed"
	unitSaveFailed  = "save_failed"
)

// Process answers questionID as subjectID, rates the answer and stores both.
// A missing subject or question is logged and returned without any write.
// Running it twice adds a second pair; callers reset the question first.
func (s *Service) Process(ctx context.Context, subjectID, questionID int64) (err error) {
	ctx, span := tracer.Start(ctx, "process_unit")
	span.SetAttributes(attribute.Int64("subject_id", subjectID), attribute.Int64("question_id", questionID))
	start := time.Now()
	outcome := unitOK
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		metrics.RecordUnit(outcome, float64(time.Since(start).Milliseconds()))
	}()

	log := s.logger.Named("processor")
	fields := []logger.Field{logger.Int64("subject_id", subjectID), logger.Int64("question_id", questionID)}

	subject, err := s.store.Subject(ctx, subjectID)
	if err != nil {
		outcome = s.refOutcome(err)
		log.Error(ctx, "subject lookup failed", append(fields, logger.Error(err))...)
		return s.refError(err)
	}
	question, err := s.store.Question(ctx, questionID)
	if err != nil {
		outcome = s.refOutcome(err)
		log.Error(ctx, "question lookup failed", append(fields, logger.Error(err))...)
		return s.refError(err)
	}

	prompt, err := scoring.RenderQuestion(question)
	if err != nil {
		outcome = unitMissingRef
		log.Error(ctx, "no prompt for question type", append(fields, logger.Error(err))...)
		return err
	}
	reply, err := s.client.Generate(ctx, prompt, subject)
	if err != nil {
		outcome = unitGenFailed
		log.Error(ctx, "subject generation failed",
			append(fields, logger.String("subject", subject.Name), logger.Error(err))...)
		return fmt.Errorf("generate answer: %w", err)
	}

	criteria, ceiling := s.settingFor(ctx, question.Type)
	raters, err := s.ratersFor(ctx, question.Type)
	if err != nil {
		outcome = unitScoreFailed
		return err
	}

	answer := model.Answer{QuestionID: questionID, SubjectID: subjectID, Content: reply}
	result, err := s.scorer.Score(ctx, scoring.Input{
		Answer:       answer,
		Question:     question,
		Criteria:     criteria,
		ScoreCeiling: ceiling,
		Raters:       raters,
	})
	if err != nil {
		outcome = unitScoreFailed
		log.Error(ctx, "scoring failed", append(fields, logger.Error(err))...)
		return fmt.Errorf("score answer: %w", err)
	}

	saved, rating, err := s.store.SaveRatedAnswer(ctx, answer, result.Rating(answer))
	if err != nil {
		outcome = unitSaveFailed
		log.Error(ctx, "saving answer and rating failed", append(fields, logger.Error(err))...)
		return fmt.Errorf("save rated answer: %w", err)
	}
	metrics.RecordRatingWritten()
	log.Debug(ctx, "unit complete", append(fields,
		logger.Int64("answer_id", saved.ID),
		logger.Float64("score", rating.Score),
		logger.Bool("responsive", rating.IsResponsive),
	)...)
	return nil
}

func (s *Service) refOutcome(err error) string {
	if errors.Is(err, repository.ErrNotFound) {
		return unitMissingRef
	}
	return unitSaveFailed
}

func (s *Service) refError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrMissingReference, err)
	}
	return err
}

// settingFor returns the effective criteria and ceiling for t.
func (s *Service) settingFor(ctx context.Context, t model.QuestionType) (string, float64) {
	criteria := s.defaultCriteria[t]
	if criteria == "" {
		criteria = scoring.DefaultCriteria(t)
	}
	ceiling := s.defaultCeiling

	st, err := s.store.Setting(ctx, t)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		s.logger.Warn(ctx, "setting lookup failed, using defaults",
			logger.String("question_type", t.String()), logger.Error(err))
	default:
		if st.Criteria != "" {
			criteria = st.Criteria
		}
		if st.ScoreCeiling > 0 {
			ceiling = st.ScoreCeiling
		}
	}
	return criteria, ceiling
}

// ratersFor resolves the configured rater names for t to subjects.
func (s *Service) ratersFor(ctx context.Context, t model.QuestionType) ([]model.Subject, error) {
	names := s.raters[t]
	if len(names) == 0 {
		return nil, nil
	}
	all, err := s.store.Subjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list raters: %w", err)
	}
	byName := make(map[string]model.Subject, len(all))
	for _, subj := range all {
		byName[subj.Name] = subj
	}
	out := make([]model.Subject, 0, len(names))
	for _, name := range names {
		subj, ok := byName[name]
		if !ok {
			s.logger.Warn(ctx, "configured rater has no subject record",
				logger.String("rater", name), logger.String("question_type", t.String()))
			continue
		}
		out = append(out, subj)
	}
	return out, nil
}

// subjectPool is every subject minus every configured rater.
func (s *Service) subjectPool(ctx context.Context) ([]model.Subject, error) {
	all, err := s.store.Subjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return model.ExcludeRaters(all, s.raters.Names()), nil
}
