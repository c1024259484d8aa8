// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and EVALBOARD_ env vars.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"runtime"

	"github.com/okian/evalboard/internal/domain/model"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabaseURL is a libsql DSN. Empty keeps everything in memory.
	DatabaseURL       string `koanf:"database_url"`
	DatabaseAuthToken string `koanf:"database_auth_token"`
	// CorpusPath, when set, is imported into the store at startup.
	CorpusPath string `koanf:"corpus_path"`

	QueueBackend  string `koanf:"queue_backend" validate:"oneof=memory redis"`
	RedisAddr     string `koanf:"redis_addr" validate:"required_if=QueueBackend redis"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`

	// QueueSize bounds the work queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`
	// WorkerCount sets the number of work-unit workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// RatingRetries is how many attempts each rater gets per answer.
	RatingRetries int `koanf:"rating_retries" validate:"gt=0"`
	// RaterConcurrency caps raters queried at once for one answer.
	RaterConcurrency int `koanf:"rater_concurrency" validate:"gt=0"`

	ClientTimeoutMS int     `koanf:"client_timeout_ms" validate:"gte=0"`
	RateLimitRPS    float64 `koanf:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst  int     `koanf:"rate_limit_burst" validate:"gte=0"`

	// Raters maps a question type name to the ordered rater names grading it.
	Raters map[string][]string `koanf:"raters"`

	SubjectiveWeight    float64           `koanf:"subjective_weight" validate:"gte=0"`
	ObjectiveWeight     float64           `koanf:"objective_weight" validate:"gte=0"`
	DefaultScoreCeiling float64           `koanf:"default_score_ceiling" validate:"gt=0"`
	DefaultCriteria     map[string]string `koanf:"default_criteria"`
	ResponsiveBandLow   float64           `koanf:"responsive_band_low" validate:"gte=0"`
	ResponsiveBandHigh  float64           `koanf:"responsive_band_high" validate:"gtefield=ResponsiveBandLow"`
	BiasDimension       string            `koanf:"bias_dimension"`

	// Schedule is a six-field cron spec for recurring full regeneration. Empty disables it.
	Schedule string `koanf:"schedule"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueBackend:        QueueMemory,
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		RatingRetries:       3,
		RaterConcurrency:    4,
		ClientTimeoutMS:     60_000,
		RateLimitRPS:        0,
		RateLimitBurst:      1,
		Raters:              map[string][]string{},
		SubjectiveWeight:    0.5,
		ObjectiveWeight:     0.5,
		DefaultScoreCeiling: 5,
		DefaultCriteria:     map[string]string{},
		ResponsiveBandLow:   2.5,
		ResponsiveBandHigh:  3.5,
		BiasDimension:       "Bias",
		Schedule:            "0 0 0 * * 0",
	}
}

// RaterSet converts the configured rater names into the domain form.
func (c *Config) RaterSet() (model.RaterSet, error) {
	out := make(model.RaterSet, len(c.Raters))
	for name, raters := range c.Raters {
		t, err := model.ParseQuestionType(name)
		if err != nil {
			return nil, fmt.Errorf("%w: raters: %w", ErrInvalidConfig, err)
		}
		out[t] = append([]string(nil), raters...)
	}
	return out, nil
}

// Criteria converts the configured default criteria into the domain form.
func (c *Config) Criteria() (map[model.QuestionType]string, error) {
	out := make(map[model.QuestionType]string, len(c.DefaultCriteria))
	for name, text := range c.DefaultCriteria {
		t, err := model.ParseQuestionType(name)
		if err != nil {
			return nil, fmt.Errorf("%w: default_criteria: %w", ErrInvalidConfig, err)
		}
		out[t] = text
	}
	return out, nil
}
