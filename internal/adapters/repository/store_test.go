package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type storeFactory func(t *testing.T, now func() time.Time) repository.Store

func memoryFactory(_ *testing.T, now func() time.Time) repository.Store {
	return repository.NewMemoryStore(repository.WithClock(now))
}

func sqlFactory(t *testing.T, now func() time.Time) repository.Store {
	dsn := "file:" + filepath.Join(t.TempDir(), "evalboard.db")
	s, err := repository.OpenSQL(context.Background(), dsn, repository.WithSQLClock(now))
	if err != nil {
		t.Fatalf("open sql store: %v", err)
	}
	return s
}

func seed(ctx context.Context, s repository.Store) (model.Subject, model.Subject, model.Question, model.Question) {
	So(s.UpsertDimension(ctx, model.Dimension{ID: 1, Name: "safety", Level: model.LevelCategory}), ShouldBeNil)
	So(s.UpsertDimension(ctx, model.Dimension{ID: 2, Name: "bias", Level: model.LevelSubCategory, ParentID: 1}), ShouldBeNil)
	So(s.UpsertDimension(ctx, model.Dimension{ID: 3, Name: "gender", Level: model.LevelLeaf, ParentID: 2}), ShouldBeNil)
	a, err := s.UpsertSubject(ctx, model.Subject{Name: "alpha", Provider: "openai", Model: "gpt"})
	So(err, ShouldBeNil)
	b, err := s.UpsertSubject(ctx, model.Subject{Name: "beta", Provider: "anthropic", Model: "claude"})
	So(err, ShouldBeNil)
	q1, err := s.UpsertQuestion(ctx, model.Question{DimensionID: 3, Type: model.Subjective, Content: "q1"})
	So(err, ShouldBeNil)
	q2, err := s.UpsertQuestion(ctx, model.Question{DimensionID: 3, Type: model.Objective, Content: "q2", ReferenceAnswer: "42"})
	So(err, ShouldBeNil)
	return a, b, q1, q2
}

func runContract(t *testing.T, name string, factory storeFactory) {
	Convey("Given a "+name+" store", t, func() {
		ctx := context.Background()
		clock := &stepClock{t: time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)}
		s := factory(t, clock.now)
		Reset(func() { _ = s.Close() })
		alpha, beta, q1, q2 := seed(ctx, s)

		Convey("The corpus reads back", func() {
			subs, err := s.Subjects(ctx)
			So(err, ShouldBeNil)
			So(len(subs), ShouldEqual, 2)
			So(subs[0].Name, ShouldEqual, "alpha")

			dims, err := s.Dimensions(ctx)
			So(err, ShouldBeNil)
			So(len(dims), ShouldEqual, 3)
			So(dims[0].ParentID, ShouldEqual, 0)
			So(dims[2].ParentID, ShouldEqual, 2)

			q, err := s.Question(ctx, q2.ID)
			So(err, ShouldBeNil)
			So(q.Type, ShouldEqual, model.Objective)
			So(q.ReferenceAnswer, ShouldEqual, "42")

			_, err = s.Question(ctx, 9999)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.Subject(ctx, 9999)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Upserting a subject by name keeps its id", func() {
			again, err := s.UpsertSubject(ctx, model.Subject{Name: "alpha", Provider: "google", Model: "gemini"})
			So(err, ShouldBeNil)
			So(again.ID, ShouldEqual, alpha.ID)
			got, err := s.Subject(ctx, alpha.ID)
			So(err, ShouldBeNil)
			So(got.Provider, ShouldEqual, "google")
		})

		Convey("Settings are optional per type", func() {
			_, err := s.Setting(ctx, model.Objective)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(s.UpsertSetting(ctx, model.Setting{Type: model.Objective, Criteria: "exact", ScoreCeiling: 10}), ShouldBeNil)
			st, err := s.Setting(ctx, model.Objective)
			So(err, ShouldBeNil)
			So(st.Criteria, ShouldEqual, "exact")
			So(st.ScoreCeiling, ShouldEqual, 10.0)
		})

		Convey("When rated answers are saved", func() {
			a1, r1, err := s.SaveRatedAnswer(ctx,
				model.Answer{QuestionID: q1.ID, SubjectID: alpha.ID, Content: "x"},
				model.Rating{Score: 4, Comment: "r: 4", IsResponsive: true})
			So(err, ShouldBeNil)
			So(a1.ID, ShouldBeGreaterThan, 0)
			So(r1.AnswerID, ShouldEqual, a1.ID)
			So(r1.SubjectID, ShouldEqual, alpha.ID)
			_, _, err = s.SaveRatedAnswer(ctx,
				model.Answer{QuestionID: q1.ID, SubjectID: beta.ID, Content: "y"},
				model.Rating{Score: 3, IsResponsive: false})
			So(err, ShouldBeNil)
			_, _, err = s.SaveRatedAnswer(ctx,
				model.Answer{QuestionID: q2.ID, SubjectID: alpha.ID, Content: "z"},
				model.Rating{Score: 5, IsResponsive: true})
			So(err, ShouldBeNil)

			Convey("They join into rated answers in rating order", func() {
				ras, err := s.RatedAnswers(ctx)
				So(err, ShouldBeNil)
				So(len(ras), ShouldEqual, 3)
				So(ras[0].SubjectID, ShouldEqual, alpha.ID)
				So(ras[0].DimensionID, ShouldEqual, 3)
				So(ras[1].IsResponsive, ShouldBeFalse)
				So(ras[2].QuestionType, ShouldEqual, model.Objective)

				r, err := s.RatingForAnswer(ctx, a1.ID)
				So(err, ShouldBeNil)
				So(r.Comment, ShouldEqual, "r: 4")
				So(r.IsResponsive, ShouldBeTrue)
			})

			Convey("Resetting a question removes only its answers and ratings", func() {
				So(s.ResetQuestion(ctx, q1.ID), ShouldBeNil)
				ans, err := s.AnswersForQuestion(ctx, q1.ID)
				So(err, ShouldBeNil)
				So(len(ans), ShouldEqual, 0)
				_, err = s.RatingForAnswer(ctx, a1.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				ras, err := s.RatedAnswers(ctx)
				So(err, ShouldBeNil)
				So(len(ras), ShouldEqual, 1)
			})

			Convey("Resetting a subject removes only that subject's work", func() {
				So(s.ResetSubject(ctx, alpha.ID), ShouldBeNil)
				ras, err := s.RatedAnswers(ctx)
				So(err, ShouldBeNil)
				So(len(ras), ShouldEqual, 1)
				So(ras[0].SubjectID, ShouldEqual, beta.ID)
			})
		})

		Convey("An answer without a subject is rejected", func() {
			_, _, err := s.SaveRatedAnswer(ctx, model.Answer{QuestionID: q1.ID}, model.Rating{})
			So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When snapshots are inserted across a day boundary", func() {
			meta := model.SnapshotMetadata{SubjectCount: 2, Trigger: model.TriggerManual, Source: "test", ScoreThreshold: 3.5}
			first, err := s.InsertSnapshot(ctx, model.Snapshot{
				CreatedAt:  time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC),
				Dimensions: []byte(`[{"id":1,"name":"safety"}]`),
				Rows:       []byte(`[{"subject_id":1,"avg_score":3.1234567}]`),
				Metadata:   meta,
			})
			So(err, ShouldBeNil)
			second, err := s.InsertSnapshot(ctx, model.Snapshot{
				CreatedAt:  time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC),
				Dimensions: []byte(`[]`),
				Rows:       []byte(`[]`),
				Metadata:   model.SnapshotMetadata{Trigger: model.TriggerAuto},
			})
			So(err, ShouldBeNil)

			Convey("They list newest first", func() {
				all, err := s.ListSnapshots(ctx, repository.SnapshotFilter{})
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 2)
				So(all[0].ID, ShouldEqual, second.ID)
			})

			Convey("A day filter narrows the listing", func() {
				day, err := s.ListSnapshots(ctx, repository.SnapshotFilter{Day: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)})
				So(err, ShouldBeNil)
				So(len(day), ShouldEqual, 1)
				So(day[0].ID, ShouldEqual, first.ID)
			})

			Convey("A stored snapshot reads back byte for byte", func() {
				got, err := s.GetSnapshot(ctx, first.ID)
				So(err, ShouldBeNil)
				So(string(got.Rows), ShouldEqual, `[{"subject_id":1,"avg_score":3.1234567}]`)
				So(got.Metadata, ShouldResemble, meta)
				So(got.CreatedAt.Equal(first.CreatedAt), ShouldBeTrue)
			})

			Convey("Deleting removes it once", func() {
				So(s.DeleteSnapshot(ctx, first.ID), ShouldBeNil)
				err := s.DeleteSnapshot(ctx, first.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				_, err = s.GetSnapshot(ctx, first.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, "memory", memoryFactory)
}

func TestSQLStore(t *testing.T) {
	runContract(t, "libsql", sqlFactory)
}

func TestMigrate(t *testing.T) {
	Convey("Given embedded migrations", t, func() {
		migrations, err := repository.LoadMigrations()
		So(err, ShouldBeNil)
		So(len(migrations), ShouldBeGreaterThan, 0)
		So(migrations[0].Version, ShouldEqual, 1)
		So(migrations[0].DownSQL, ShouldNotBeEmpty)

		Convey("Reopening a migrated database applies nothing", func() {
			ctx := context.Background()
			dsn := "file:" + filepath.Join(t.TempDir(), "m.db")
			s, err := repository.OpenSQL(ctx, dsn)
			So(err, ShouldBeNil)
			applied, err := repository.Migrate(ctx, s.DB())
			So(err, ShouldBeNil)
			So(applied, ShouldEqual, 0)
			v, dirty, err := repository.CurrentVersion(ctx, s.DB())
			So(err, ShouldBeNil)
			So(v, ShouldEqual, migrations[len(migrations)-1].Version)
			So(dirty, ShouldBeFalse)
			So(s.Close(), ShouldBeNil)
		})
	})
}
