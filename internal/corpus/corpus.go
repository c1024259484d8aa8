// Package corpus reads the administrative data set (dimension tree, subjects,
// questions and per-type settings) from YAML and loads it into a store.
package corpus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/okian/evalboard/internal/domain/model"
)

// Corpus is the file shape.
type Corpus struct {
	Dimensions []DimensionNode `yaml:"dimensions" validate:"dive"`
	Subjects   []SubjectSpec   `yaml:"subjects" validate:"dive"`
	Questions  []QuestionSpec  `yaml:"questions" validate:"dive"`
	Settings   []SettingSpec   `yaml:"settings" validate:"dive"`
}

// DimensionNode is one node of the tree; level is implied by nesting depth.
type DimensionNode struct {
	ID       int64           `yaml:"id" validate:"gt=0"`
	Name     string          `yaml:"name" validate:"required"`
	Children []DimensionNode `yaml:"children" validate:"dive"`
}

// SubjectSpec describes a model identity. APIKey may reference environment
// variables as ${NAME}; they are expanded on import.
type SubjectSpec struct {
	Name        string `yaml:"name" validate:"required"`
	Provider    string `yaml:"provider" validate:"required"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	APIKey      string `yaml:"api_key"`
	Description string `yaml:"description"`
}

// QuestionSpec is one prompt attached to a leaf dimension.
type QuestionSpec struct {
	ID              int64              `yaml:"id" validate:"gt=0"`
	DimensionID     int64              `yaml:"dimension_id" validate:"gt=0"`
	Type            model.QuestionType `yaml:"type" validate:"required"`
	Content         string             `yaml:"content" validate:"required"`
	ReferenceAnswer string             `yaml:"reference_answer"`
}

// SettingSpec overrides criteria and ceiling for one question type.
type SettingSpec struct {
	Type         model.QuestionType `yaml:"type" validate:"required"`
	Criteria     string             `yaml:"criteria" validate:"required"`
	ScoreCeiling float64            `yaml:"score_ceiling" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Read loads and validates a corpus file.
func Read(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadCorpus, err)
	}
	return Parse(bytes.NewReader(raw))
}

// Parse decodes and validates a corpus. Unknown keys are rejected.
func Parse(r io.Reader) (*Corpus, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Corpus
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field rules and the tree shape: exactly three levels,
// unique ids and names, and every question on a leaf.
func (c *Corpus) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidCorpus, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}

	dims, err := c.Flatten()
	if err != nil {
		return err
	}
	level := make(map[int64]int, len(dims))
	for _, d := range dims {
		level[d.ID] = d.Level
	}

	names := make(map[string]struct{}, len(c.Subjects))
	for _, s := range c.Subjects {
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("%w: duplicate subject %q", ErrInvalidCorpus, s.Name)
		}
		names[s.Name] = struct{}{}
	}

	qids := make(map[int64]struct{}, len(c.Questions))
	for _, q := range c.Questions {
		if _, dup := qids[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %d", ErrInvalidCorpus, q.ID)
		}
		qids[q.ID] = struct{}{}
		lvl, ok := level[q.DimensionID]
		switch {
		case !ok:
			return fmt.Errorf("%w: question %d references unknown dimension %d", ErrInvalidCorpus, q.ID, q.DimensionID)
		case lvl != model.LevelLeaf:
			return fmt.Errorf("%w: question %d is attached to level-%d dimension %d", ErrInvalidCorpus, q.ID, lvl, q.DimensionID)
		case q.Type == model.Objective && q.ReferenceAnswer == "":
			return fmt.Errorf("%w: objective question %d has no reference answer", ErrInvalidCorpus, q.ID)
		}
	}

	types := make(map[model.QuestionType]struct{}, len(c.Settings))
	for _, s := range c.Settings {
		if _, dup := types[s.Type]; dup {
			return fmt.Errorf("%w: duplicate setting for %s", ErrInvalidCorpus, s.Type)
		}
		types[s.Type] = struct{}{}
	}
	return nil
}

// Flatten returns the tree parents first with levels and parent ids assigned.
func (c *Corpus) Flatten() ([]model.Dimension, error) {
	var out []model.Dimension
	seen := make(map[int64]struct{})
	var walk func(nodes []DimensionNode, parent int64, level int) error
	walk = func(nodes []DimensionNode, parent int64, level int) error {
		for _, n := range nodes {
			if _, dup := seen[n.ID]; dup {
				return fmt.Errorf("%w: duplicate dimension id %d", ErrInvalidCorpus, n.ID)
			}
			seen[n.ID] = struct{}{}
			if level < model.LevelLeaf && len(n.Children) == 0 {
				return fmt.Errorf("%w: dimension %d (%s) at level %d has no children", ErrInvalidCorpus, n.ID, n.Name, level)
			}
			if level == model.LevelLeaf && len(n.Children) > 0 {
				return fmt.Errorf("%w: dimension %d (%s) nests deeper than %d levels", ErrInvalidCorpus, n.ID, n.Name, model.LevelLeaf)
			}
			out = append(out, model.Dimension{ID: n.ID, Name: n.Name, Level: level, ParentID: parent})
			if err := walk(n.Children, n.ID, level+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(c.Dimensions, 0, model.LevelCategory); err != nil {
		return nil, err
	}
	return out, nil
}
