package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/evalboard/internal/adapters/llm"
	"github.com/okian/evalboard/internal/adapters/mq/barrier"
	"github.com/okian/evalboard/internal/adapters/mq/queue"
	"github.com/okian/evalboard/internal/adapters/repository"
	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/internal/corpus"
	"github.com/okian/evalboard/internal/domain/leaderboard"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/pkg/logger"
)

// ErrNoDatabase is returned by commands that need durable storage when no database_url is set.
var ErrNoDatabase = errors.New("database_url is not configured")

// OpenStore opens the SQL store named by cfg, or an in-memory store when no
// database is configured. Opening the SQL store applies pending migrations.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Get().Warn(ctx, "no database_url configured; results are kept in memory only")
		return repository.NewMemoryStore(), nil
	}
	store, err := repository.OpenSQL(ctx, cfg.DatabaseURL, repository.WithAuthToken(cfg.DatabaseAuthToken))
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ImportCorpus loads cfg.CorpusPath into store when it is set.
func ImportCorpus(ctx context.Context, cfg *config.Config, store repository.Admin) error {
	if cfg.CorpusPath == "" {
		return nil
	}
	c, err := corpus.Read(cfg.CorpusPath)
	if err != nil {
		return err
	}
	_, err = corpus.Import(ctx, store, c)
	return err
}

// NewLLMClient builds the model client from cfg.
func NewLLMClient(cfg *config.Config) *llm.Client {
	return llm.NewClient(
		llm.WithTimeout(time.Duration(cfg.ClientTimeoutMS)*time.Millisecond),
		llm.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
}

// NewService assembles the service from cfg. The returned cleanup closes any
// Redis connection the service was given; the caller still owns the store.
func NewService(cfg *config.Config, store repository.Store, client scoring.Client) (*service.Service, func() error, error) {
	raters, err := cfg.RaterSet()
	if err != nil {
		return nil, nil, err
	}
	criteria, err := cfg.Criteria()
	if err != nil {
		return nil, nil, err
	}

	opts := []service.Option{
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithRaters(raters),
		service.WithDefaultCriteria(criteria),
		service.WithDefaultScoreCeiling(cfg.DefaultScoreCeiling),
		service.WithSchedule(cfg.Schedule),
		service.WithScorerOptions(ScorerOptions(cfg)...),
		service.WithLeaderboardOptions(
			leaderboard.WithWeights(cfg.SubjectiveWeight, cfg.ObjectiveWeight),
			leaderboard.WithBiasDimension(cfg.BiasDimension),
		),
	}

	cleanup := func() error { return nil }
	if cfg.QueueBackend == config.QueueRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		opts = append(opts,
			service.WithQueue(queue.NewRedisQueue(rdb, queue.WithRedisCapacity(cfg.QueueSize))),
			service.WithTracker(barrier.NewRedisTracker(rdb, "")),
		)
		cleanup = rdb.Close
	}

	return service.New(store, client, opts...), cleanup, nil
}

// ScorerOptions maps the rating keys of cfg onto the retrying scorer. Each
// rater attempt is bounded by the same timeout as a model call.
func ScorerOptions(cfg *config.Config) []scoring.Option {
	return []scoring.Option{
		scoring.WithRetries(cfg.RatingRetries),
		scoring.WithConcurrency(cfg.RaterConcurrency),
		scoring.WithResponsiveBand(cfg.ResponsiveBandLow, cfg.ResponsiveBandHigh),
		scoring.WithAttemptTimeout(time.Duration(cfg.ClientTimeoutMS) * time.Millisecond),
	}
}

// requireDatabase rejects commands that would only touch an ephemeral store.
func requireDatabase(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: set EVALBOARD_DATABASE_URL or pass --db", ErrNoDatabase)
	}
	return nil
}
