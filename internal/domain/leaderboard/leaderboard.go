// Package leaderboard aggregates persisted ratings into a ranked read model.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/evalboard/internal/domain/dimension"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Default aggregation configuration constants.
const (
	DefaultSubjectiveWeight = 0.5
	DefaultObjectiveWeight  = 0.5
	DefaultBiasDimension    = "偏见歧视"

	noDataDisplay = "-"
)

// Source reads the persisted state an aggregation pass needs.
type Source interface {
	Subjects(ctx context.Context) ([]model.Subject, error)
	Dimensions(ctx context.Context) ([]model.Dimension, error)
	RatedAnswers(ctx context.Context) ([]model.RatedAnswer, error)
}

// Engine computes leaderboards from a Source.
type Engine struct {
	src      Source
	wSubj    float64
	wObj     float64
	biasName string
	logger   logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights sets the subjective and objective weights.
func WithWeights(subjective, objective float64) Option {
	return func(e *Engine) {
		if subjective >= 0 && objective >= 0 {
			e.wSubj = subjective
			e.wObj = objective
		}
	}
}

// WithBiasDimension names the level-2 category broken down per leaf.
func WithBiasDimension(name string) Option {
	return func(e *Engine) {
		e.biasName = name
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine reading from src.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:      src,
		wSubj:    DefaultSubjectiveWeight,
		wObj:     DefaultObjectiveWeight,
		biasName: DefaultBiasDimension,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("leaderboard")
	}
	return e
}

type subjectTally struct {
	overall Tally
	byRoot  map[int64]*Tally
	byLeaf  map[int64]*Tally
}

// Compute aggregates every rating of the non-rater subjects and returns rows
// ordered by sortBy and sortOrder. Ranks always follow the weighted average.
func (e *Engine) Compute(ctx context.Context, raterNames []string, sortBy, sortOrder string) (types.Leaderboard, error) {
	start := time.Now()
	lb, err := e.compute(ctx, raterNames, sortBy, sortOrder)
	if err != nil {
		metrics.RecordLeaderboardError()
		return types.Leaderboard{}, err
	}
	metrics.RecordLeaderboardCompute(float64(time.Since(start).Milliseconds()))
	return lb, nil
}

func (e *Engine) compute(ctx context.Context, raterNames []string, sortBy, sortOrder string) (types.Leaderboard, error) {
	all, err := e.src.Subjects(ctx)
	if err != nil {
		return types.Leaderboard{}, fmt.Errorf("load subjects: %w", err)
	}
	dims, err := e.src.Dimensions(ctx)
	if err != nil {
		return types.Leaderboard{}, fmt.Errorf("load dimensions: %w", err)
	}
	tree, err := dimension.Build(dims)
	if err != nil {
		return types.Leaderboard{}, fmt.Errorf("build dimension tree: %w", err)
	}
	rated, err := e.src.RatedAnswers(ctx)
	if err != nil {
		return types.Leaderboard{}, fmt.Errorf("load ratings: %w", err)
	}

	subjects := model.ExcludeRaters(all, raterNames)
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })

	roots := tree.Roots()
	refs := make([]types.DimensionRef, len(roots))
	for i, r := range roots {
		refs[i] = types.DimensionRef{ID: r.ID, Name: r.Name}
	}
	rootOf := tree.RootIndex()
	biasLeaves := e.biasLeaves(ctx, tree)

	tallies := make(map[int64]*subjectTally, len(subjects))
	for _, s := range subjects {
		tallies[s.ID] = &subjectTally{byRoot: map[int64]*Tally{}, byLeaf: map[int64]*Tally{}}
	}

	skipped := 0
	for _, ra := range rated {
		st, ok := tallies[ra.SubjectID]
		if !ok {
			continue
		}
		root, ok := rootOf[ra.DimensionID]
		if !ok {
			skipped++
			continue
		}
		st.overall.Add(ra.QuestionType, ra.Score, ra.IsResponsive)
		bucket(st.byRoot, root).Add(ra.QuestionType, ra.Score, ra.IsResponsive)
		if _, ok := biasLeaves[ra.DimensionID]; ok {
			bucket(st.byLeaf, ra.DimensionID).Add(ra.QuestionType, ra.Score, ra.IsResponsive)
		}
	}
	if skipped > 0 {
		e.logger.Warn(ctx, "ratings outside a complete dimension chain were ignored", logger.Int("count", skipped))
	}

	rows := make([]types.Row, 0, len(subjects))
	for _, s := range subjects {
		rows = append(rows, e.row(s, tallies[s.ID], refs, biasLeaves))
	}
	assignRanks(rows)
	ResolveSort(sortBy, sortOrder, refs).Apply(rows)

	return types.Leaderboard{Rows: rows, Dimensions: refs}, nil
}

func (e *Engine) biasLeaves(ctx context.Context, tree *dimension.Tree) map[int64]model.Dimension {
	out := map[int64]model.Dimension{}
	if e.biasName == "" {
		return out
	}
	cat, err := tree.FindByName(model.LevelSubCategory, e.biasName)
	if err != nil {
		if !errors.Is(err, dimension.ErrNotFound) {
			e.logger.Warn(ctx, "bias category lookup failed", logger.Error(err))
		}
		return out
	}
	for _, leaf := range tree.Children(cat.ID) {
		out[leaf.ID] = leaf
	}
	return out
}

func (e *Engine) row(s model.Subject, st *subjectTally, refs []types.DimensionRef, biasLeaves map[int64]model.Dimension) types.Row {
	t := st.overall
	r := types.Row{
		SubjectID:    s.ID,
		SubjectName:  s.Name,
		Description:  s.Description,
		AvgScore:     t.Weighted(e.wSubj, e.wObj),
		ResponseRate: t.ResponseRate(),
		AvgObjScore:  t.AvgObj(),
		AvgSubjScore: t.AvgSubj(),
		ObjCount:     t.ObjCount,
		SubjCount:    t.SubjCount,
		RatingCount:  t.Total,
		DimScores:    make([]types.DimensionScore, 0, len(refs)),
		BiasAnalysis: []types.BiasScore{},
	}
	for _, ref := range refs {
		ds := types.DimensionScore{DimensionID: ref.ID, Display: noDataDisplay}
		if dt, ok := st.byRoot[ref.ID]; ok && dt.Total > 0 {
			ds.AvgScore = dt.Weighted(e.wSubj, e.wObj)
			ds.ResponseRate = dt.ResponseRate()
			ds.RatingCount = dt.Total
			ds.Display = fmt.Sprintf("%.2f", ds.AvgScore)
		}
		r.DimScores = append(r.DimScores, ds)
	}
	leafIDs := make([]int64, 0, len(st.byLeaf))
	for id := range st.byLeaf {
		leafIDs = append(leafIDs, id)
	}
	sort.Slice(leafIDs, func(i, j int) bool { return leafIDs[i] < leafIDs[j] })
	for _, id := range leafIDs {
		lt := st.byLeaf[id]
		r.BiasAnalysis = append(r.BiasAnalysis, types.BiasScore{
			DimensionID: id,
			Name:        biasLeaves[id].Name,
			AvgScore:    lt.Mean(),
			RatingCount: lt.Total,
		})
	}
	return r
}

func bucket(m map[int64]*Tally, id int64) *Tally {
	t, ok := m[id]
	if !ok {
		t = &Tally{}
		m[id] = t
	}
	return t
}
