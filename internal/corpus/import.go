package corpus

import (
	"context"
	"fmt"
	"os"

	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/pkg/logger"
)

// Summary counts what an import wrote.
type Summary struct {
	Dimensions int `json:"dimensions"`
	Subjects   int `json:"subjects"`
	Questions  int `json:"questions"`
	Settings   int `json:"settings"`
}

// Import upserts every record of c. Dimensions and questions keep their file
// ids so re-importing the same file is idempotent; subjects match by name.
func Import(ctx context.Context, admin repository.Admin, c *Corpus) (Summary, error) {
	log := logger.Get().Named("corpus")
	var sum Summary

	dims, err := c.Flatten()
	if err != nil {
		return sum, err
	}
	for _, d := range dims {
		if err := admin.UpsertDimension(ctx, d); err != nil {
			return sum, fmt.Errorf("import dimension %d: %w", d.ID, err)
		}
		sum.Dimensions++
	}

	for _, s := range c.Subjects {
		key := os.ExpandEnv(s.APIKey)
		if s.APIKey != "" && key == "" {
			log.Warn(ctx, "subject api key expanded to empty", logger.String("subject", s.Name))
		}
		if _, err := admin.UpsertSubject(ctx, model.Subject{
			Name:        s.Name,
			Provider:    s.Provider,
			Model:       s.Model,
			BaseURL:     s.BaseURL,
			APIKey:      key,
			Description: s.Description,
		}); err != nil {
			return sum, fmt.Errorf("import subject %q: %w", s.Name, err)
		}
		sum.Subjects++
	}

	for _, q := range c.Questions {
		if _, err := admin.UpsertQuestion(ctx, model.Question{
			ID:              q.ID,
			DimensionID:     q.DimensionID,
			Type:            q.Type,
			Content:         q.Content,
			ReferenceAnswer: q.ReferenceAnswer,
		}); err != nil {
			return sum, fmt.Errorf("import question %d: %w", q.ID, err)
		}
		sum.Questions++
	}

	for _, s := range c.Settings {
		if err := admin.UpsertSetting(ctx, model.Setting{
			Type:         s.Type,
			Criteria:     s.Criteria,
			ScoreCeiling: s.ScoreCeiling,
		}); err != nil {
			return sum, fmt.Errorf("import setting %s: %w", s.Type, err)
		}
		sum.Settings++
	}

	log.Info(ctx, "corpus imported",
		logger.Int("dimensions", sum.Dimensions),
		logger.Int("subjects", sum.Subjects),
		logger.Int("questions", sum.Questions),
		logger.Int("settings", sum.Settings))
	return sum, nil
}
