package leaderboard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/evalboard/internal/domain/leaderboard"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeSource struct {
	subjects []model.Subject
	dims     []model.Dimension
	rated    []model.RatedAnswer
	err      error
}

func (f *fakeSource) Subjects(context.Context) ([]model.Subject, error)     { return f.subjects, f.err }
func (f *fakeSource) Dimensions(context.Context) ([]model.Dimension, error) { return f.dims, nil }
func (f *fakeSource) RatedAnswers(context.Context) ([]model.RatedAnswer, error) {
	return f.rated, nil
}

// Two categories: 1 (leaf 11 via 10) and 2 (bias leaves 21, 22 via 20).
func corpusDims() []model.Dimension {
	return []model.Dimension{
		{ID: 1, Name: "knowledge", Level: 1},
		{ID: 2, Name: "safety", Level: 1},
		{ID: 10, Name: "facts", Level: 2, ParentID: 1},
		{ID: 11, Name: "history", Level: 3, ParentID: 10},
		{ID: 20, Name: leaderboard.DefaultBiasDimension, Level: 2, ParentID: 2},
		{ID: 21, Name: "gender", Level: 3, ParentID: 20},
		{ID: 22, Name: "region", Level: 3, ParentID: 20},
		{ID: 99, Name: "stray", Level: 3, ParentID: 1},
	}
}

func rated(subject int64, qt model.QuestionType, dim int64, score float64) model.RatedAnswer {
	return model.RatedAnswer{
		SubjectID:    subject,
		QuestionType: qt,
		DimensionID:  dim,
		Score:        score,
		IsResponsive: score < 2.5 || score > 3.5,
	}
}

func rowFor(rows []types.Row, id int64) types.Row {
	for _, r := range rows {
		if r.SubjectID == id {
			return r
		}
	}
	return types.Row{}
}

func TestTally(t *testing.T) {
	Convey("Given an empty tally", t, func() {
		var tl leaderboard.Tally
		Convey("Then every average is exactly zero", func() {
			So(tl.Weighted(0.5, 0.5), ShouldEqual, 0.0)
			So(tl.ResponseRate(), ShouldEqual, 0.0)
			So(tl.Mean(), ShouldEqual, 0.0)
		})
	})

	Convey("Given subjective 4.0 twice and objective 2.0 twice", t, func() {
		var tl leaderboard.Tally
		tl.Add(model.Subjective, 4, true)
		tl.Add(model.Subjective, 4, true)
		tl.Add(model.Objective, 2, true)
		tl.Add(model.Objective, 2, false)
		Convey("Then the weighted average at 0.5/0.5 is 3.0", func() {
			So(tl.Weighted(0.5, 0.5), ShouldEqual, 3.0)
			So(tl.ResponseRate(), ShouldEqual, 75.0)
		})
	})
}

func TestEngine_Compute(t *testing.T) {
	ctx := context.Background()

	Convey("Given three subjects, a rater and ratings across dimensions", t, func() {
		src := &fakeSource{
			subjects: []model.Subject{
				{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}, {ID: 4, Name: "judge"},
			},
			dims: corpusDims(),
			rated: []model.RatedAnswer{
				rated(1, model.Subjective, 11, 4), rated(1, model.Objective, 11, 4),
				rated(1, model.Subjective, 21, 3), rated(1, model.Objective, 21, 5),
				rated(2, model.Subjective, 11, 2), rated(2, model.Objective, 11, 2),
				rated(3, model.Subjective, 11, 3), rated(3, model.Objective, 11, 3),
				rated(4, model.Subjective, 11, 5),
				rated(2, model.Subjective, 99, 5),
			},
		}
		engine := leaderboard.New(src)

		Convey("When sorting by response rate", func() {
			lb, err := engine.Compute(ctx, []string{"judge"}, "response_rate", "desc")
			So(err, ShouldBeNil)

			Convey("Then raters are not ranked", func() {
				So(len(lb.Rows), ShouldEqual, 3)
				So(rowFor(lb.Rows, 4).SubjectID, ShouldEqual, 0)
			})

			Convey("Then ranks still follow the weighted average", func() {
				So(rowFor(lb.Rows, 1).TotalScoreRank, ShouldEqual, 1)
				So(rowFor(lb.Rows, 3).TotalScoreRank, ShouldEqual, 2)
				So(rowFor(lb.Rows, 2).TotalScoreRank, ShouldEqual, 3)
			})

			Convey("Then rows are ordered by response rate", func() {
				So(lb.Rows[0].SubjectID, ShouldEqual, 2)
				So(lb.Rows[2].SubjectID, ShouldEqual, 3)
				So(lb.Rows[2].ResponseRate, ShouldEqual, 0.0)
			})
		})

		Convey("When computing the default order", func() {
			lb, err := engine.Compute(ctx, []string{"judge"}, "avg_score", "desc")
			So(err, ShouldBeNil)
			a := rowFor(lb.Rows, 1)

			Convey("Then the level-1 dimensions are listed in id order", func() {
				So(lb.Dimensions, ShouldResemble, []types.DimensionRef{{ID: 1, Name: "knowledge"}, {ID: 2, Name: "safety"}})
			})

			Convey("Then per-dimension scores roll leaves up to level 1", func() {
				So(a.AvgScore, ShouldEqual, 4.0)
				So(a.DimScores[0].AvgScore, ShouldEqual, 4.0)
				So(a.DimScores[1].AvgScore, ShouldEqual, 4.0)
				So(a.DimScores[1].Display, ShouldEqual, "4.00")
				So(a.AvgObjScore, ShouldEqual, 4.5)
				So(a.AvgSubjScore, ShouldEqual, 3.5)
			})

			Convey("Then a dimension without data shows a placeholder", func() {
				c := rowFor(lb.Rows, 3)
				So(c.DimScores[1].AvgScore, ShouldEqual, 0.0)
				So(c.DimScores[1].ResponseRate, ShouldEqual, 0.0)
				So(c.DimScores[1].Display, ShouldEqual, "-")
			})

			Convey("Then the bias breakdown covers only leaves with data", func() {
				So(len(a.BiasAnalysis), ShouldEqual, 1)
				So(a.BiasAnalysis[0].Name, ShouldEqual, "gender")
				So(a.BiasAnalysis[0].AvgScore, ShouldEqual, 4.0)
				So(rowFor(lb.Rows, 2).BiasAnalysis, ShouldBeEmpty)
			})

			Convey("Then ratings outside a full chain are ignored", func() {
				So(rowFor(lb.Rows, 2).RatingCount, ShouldEqual, 2)
			})
		})

		Convey("When sorting by a dimension ascending", func() {
			lb, err := engine.Compute(ctx, []string{"judge"}, "dim_1", "asc")
			So(err, ShouldBeNil)
			So(lb.Rows[0].SubjectID, ShouldEqual, 2)
			So(lb.Rows[2].SubjectID, ShouldEqual, 1)
		})

		Convey("When the sort key is unknown", func() {
			lb, err := engine.Compute(ctx, []string{"judge"}, "dim_777", "asc")
			So(err, ShouldBeNil)

			Convey("Then it falls back to avg_score descending", func() {
				So(lb.Rows[0].SubjectID, ShouldEqual, 1)
				So(lb.Rows[1].SubjectID, ShouldEqual, 3)
				So(lb.Rows[2].SubjectID, ShouldEqual, 2)
			})
		})
	})

	Convey("Given subjects without any ratings", t, func() {
		src := &fakeSource{subjects: []model.Subject{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}, dims: corpusDims()}
		lb, err := leaderboard.New(src).Compute(ctx, nil, "", "")

		Convey("Then rows report zeros and ranks follow subject order", func() {
			So(err, ShouldBeNil)
			So(len(lb.Rows), ShouldEqual, 2)
			So(lb.Rows[0].AvgScore, ShouldEqual, 0.0)
			So(lb.Rows[0].TotalScoreRank, ShouldEqual, 1)
			So(lb.Rows[1].TotalScoreRank, ShouldEqual, 2)
			So(lb.Rows[0].DimScores[0].Display, ShouldEqual, "-")
		})
	})

	Convey("Given custom weights and no bias category", t, func() {
		src := &fakeSource{
			subjects: []model.Subject{{ID: 1, Name: "A"}},
			dims:     corpusDims(),
			rated:    []model.RatedAnswer{rated(1, model.Subjective, 21, 4), rated(1, model.Objective, 11, 2)},
		}
		lb, err := leaderboard.New(src, leaderboard.WithWeights(0.8, 0.2), leaderboard.WithBiasDimension("none")).
			Compute(ctx, nil, "avg_score", "desc")
		So(err, ShouldBeNil)
		So(lb.Rows[0].AvgScore, ShouldAlmostEqual, 3.6, 1e-9)
		So(lb.Rows[0].BiasAnalysis, ShouldBeEmpty)
	})

	Convey("Given a failing source", t, func() {
		src := &fakeSource{err: errors.New("db down")}
		_, err := leaderboard.New(src).Compute(ctx, nil, "", "")
		So(err, ShouldNotBeNil)
	})
}

func TestResolveSort(t *testing.T) {
	dims := []types.DimensionRef{{ID: 5, Name: "x"}}
	Convey("Given sort requests", t, func() {
		So(leaderboard.ResolveSort("response_rate", "ASC", dims), ShouldResemble, leaderboard.ResolveSort("response_rate", "asc", dims))
		So(leaderboard.ResolveSort("avg_score", "sideways", dims).Order, ShouldEqual, leaderboard.OrderDesc)
		So(leaderboard.ResolveSort("dim_5", "asc", dims).By, ShouldEqual, "dim_5")
		fallback := leaderboard.ResolveSort("dim_x", "asc", dims)
		So(fallback.By, ShouldEqual, leaderboard.SortAvgScore)
		So(fallback.Order, ShouldEqual, leaderboard.OrderDesc)
	})
}
