// Package scoring drives one answer through the configured raters and reduces
// their verdicts into a single score.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Default scoring configuration constants.
const (
	DefaultRetries      = 3
	DefaultScoreCeiling = 5.0
	DefaultBandLow      = 2.5
	DefaultBandHigh     = 3.5

	defaultAttemptTimeout = 60 * time.Second
	defaultConcurrency    = 4
	failedVerdict         = "failed"
)

// Client is the model-calling boundary. The returned text has no format contract.
type Client interface {
	Generate(ctx context.Context, prompt string, who model.Subject) (string, error)
}

// Input is everything needed to score one answer.
type Input struct {
	Answer       model.Answer
	Question     model.Question
	Criteria     string
	ScoreCeiling float64
	Raters       []model.Subject
}

// Verdict is one rater's outcome.
type Verdict struct {
	Rater    string
	Score    float64
	Valid    bool
	Attempts int
}

// Result is the reduced score for one answer.
type Result struct {
	Score        float64
	IsResponsive bool
	Comment      string
	Verdicts     []Verdict
}

// Rating converts the result into the persisted rating for answer.
func (r Result) Rating(answer model.Answer) model.Rating {
	return model.Rating{
		AnswerID:     answer.ID,
		SubjectID:    answer.SubjectID,
		Score:        r.Score,
		Comment:      r.Comment,
		IsResponsive: r.IsResponsive,
	}
}

// Scorer computes a reduced score for an answer.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

// RetryingScorer queries every rater up to a fixed number of attempts and keeps
// the first score that parses and lies within [0, ceiling].
type RetryingScorer struct {
	client         Client
	retries        int
	attemptTimeout time.Duration
	bandLow        float64
	bandHigh       float64
	concurrency    int
	logger         logger.Logger
}

// NewRetryingScorer creates a scorer that calls raters through client.
func NewRetryingScorer(client Client, opts ...Option) *RetryingScorer {
	s := &RetryingScorer{
		client:         client,
		retries:        DefaultRetries,
		attemptTimeout: defaultAttemptTimeout,
		bandLow:        DefaultBandLow,
		bandHigh:       DefaultBandHigh,
		concurrency:    defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scoring")
	}
	return s
}

// Score rates in.Answer with every rater in in.Raters.
// Only context cancellation and a missing prompt template are returned as errors.
func (s *RetryingScorer) Score(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))
	}()

	ctx, span := otel.Tracer("evalboard/scoring").Start(ctx, "scoring.Score")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("question.id", in.Question.ID),
		attribute.Int64("subject.id", in.Answer.SubjectID),
		attribute.Int("raters", len(in.Raters)),
	)

	ceiling := in.ScoreCeiling
	if ceiling <= 0 {
		ceiling = DefaultScoreCeiling
	}

	prompt, err := RenderRating(in.Question, in.Criteria, in.Answer.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	unit := []logger.Field{
		logger.Int64("question_id", in.Question.ID),
		logger.Int64("subject_id", in.Answer.SubjectID),
	}
	verdicts := make([]Verdict, len(in.Raters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, rater := range in.Raters {
		g.Go(func() error {
			v, err := s.rate(gctx, prompt, rater, ceiling, unit)
			verdicts[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("score question %d for subject %d: %w", in.Question.ID, in.Answer.SubjectID, err)
	}

	res := s.reduce(verdicts)
	span.SetAttributes(
		attribute.Float64("score", res.Score),
		attribute.Bool("responsive", res.IsResponsive),
	)
	s.logger.Info(ctx, "answer scored", append(unit,
		logger.Float64("score", res.Score),
		logger.Bool("responsive", res.IsResponsive),
	)...)
	return res, nil
}

// rate runs the retry loop for one rater. It returns an error only when ctx is done.
func (s *RetryingScorer) rate(ctx context.Context, prompt string, rater model.Subject, ceiling float64, unit []logger.Field) (Verdict, error) {
	v := Verdict{Rater: rater.Name}
	for attempt := 1; attempt <= s.retries; attempt++ {
		v.Attempts = attempt
		raw, err := s.call(ctx, prompt, rater)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, ctxErr
		}
		if err != nil {
			metrics.RecordRaterAttempt("client_error")
			s.logger.Warn(ctx, "rater call failed", append(unit,
				logger.String("rater", rater.Name),
				logger.Int("attempt", attempt),
				logger.Int("retries", s.retries),
				logger.Error(err),
			)...)
			continue
		}
		score, err := ParseScore(raw, ceiling)
		if err != nil {
			metrics.RecordRaterAttempt("invalid")
			s.logger.Warn(ctx, "rater returned unusable score", append(unit,
				logger.String("rater", rater.Name),
				logger.String("raw", raw),
				logger.Int("attempt", attempt),
				logger.Int("retries", s.retries),
				logger.Error(err),
			)...)
			continue
		}
		metrics.RecordRaterAttempt("valid")
		v.Score = score
		v.Valid = true
		return v, nil
	}
	metrics.RecordRaterExhausted()
	s.logger.Error(ctx, "rater exhausted retries", append(unit,
		logger.String("rater", rater.Name),
		logger.Int("retries", s.retries),
	)...)
	return v, nil
}

func (s *RetryingScorer) call(ctx context.Context, prompt string, rater model.Subject) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()
	raw, err := s.client.Generate(attemptCtx, prompt, rater)
	if err == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = attemptCtx.Err()
	}
	return raw, err
}

func (s *RetryingScorer) reduce(verdicts []Verdict) Result {
	var (
		sum   float64
		count int
		lines = make([]string, 0, len(verdicts))
	)
	for _, v := range verdicts {
		if v.Valid {
			sum += v.Score
			count++
			lines = append(lines, v.Rater+": "+strconv.FormatFloat(v.Score, 'f', -1, 64))
			continue
		}
		lines = append(lines, v.Rater+": "+failedVerdict)
	}
	final := 0.0
	if count > 0 {
		final = sum / float64(count)
	}
	return Result{
		Score:        final,
		IsResponsive: IsResponsive(final, s.bandLow, s.bandHigh),
		Comment:      strings.Join(lines, "\n"),
		Verdicts:     verdicts,
	}
}

// ParseScore accepts raw when it is a finite number within [0, ceiling].
func ParseScore(raw string, ceiling float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidScore, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidScore, raw)
	}
	if v < 0 || v > ceiling {
		return 0, fmt.Errorf("%w: %v outside [0, %v]", ErrInvalidScore, v, ceiling)
	}
	return v, nil
}

// IsResponsive reports whether score falls outside the closed band [low, high].
func IsResponsive(score, low, high float64) bool {
	return !(low <= score && score <= high)
}
