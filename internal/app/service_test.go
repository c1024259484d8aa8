package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/evalboard/internal/adapters/repository"
	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		f := newFixture(t)
		svc := service.New(f.store, newFakeClient(),
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithRaters(f.raterSet),
		)
		ctx := context.Background()

		Convey("When it has not been started", func() {
			_, err := svc.RegenerateQuestion(ctx, f.subjQ.ID)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
		})

		Convey("When starting and stopping it", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["queueLength"], ShouldEqual, 0)
			So(stats["pendingBatches"], ShouldEqual, 0)

			svc.Stop(ctx)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)

			Convey("Then it can be started again", func() {
				So(svc.Start(ctx), ShouldBeNil)
				svc.Stop(ctx)
			})
		})

		Convey("When the schedule spec is invalid", func() {
			bad := service.New(f.store, newFakeClient(), service.WithSchedule("every tuesday"))
			So(bad.Start(ctx), ShouldNotBeNil)
		})
	})
}

func TestService_Process(t *testing.T) {
	Convey("Given a service over a seeded corpus", t, func() {
		f := newFixture(t)
		client := newFakeClient()
		svc := service.New(f.store, client, service.WithRaters(f.raterSet))
		ctx := context.Background()

		Convey("When a unit runs for a subjective question", func() {
			So(svc.Process(ctx, f.alpha.ID, f.subjQ.ID), ShouldBeNil)
			answers, err := f.store.AnswersForQuestion(ctx, f.subjQ.ID)
			So(err, ShouldBeNil)

			Convey("Then exactly one answer and one rating are stored", func() {
				So(len(answers), ShouldEqual, 1)
				So(answers[0].SubjectID, ShouldEqual, f.alpha.ID)
				So(answers[0].Content, ShouldStartWith, "answer from alpha")
				r, err := f.store.RatingForAnswer(ctx, answers[0].ID)
				So(err, ShouldBeNil)
				So(r.Score, ShouldEqual, 3.0)
				So(r.IsResponsive, ShouldBeFalse)
				So(r.Comment, ShouldEqual, "judge1: 4\njudge2: 2")
			})
		})

		Convey("When the subject is missing", func() {
			err := svc.Process(ctx, 9999, f.subjQ.ID)

			Convey("Then it fails with no writes", func() {
				So(errors.Is(err, service.ErrMissingReference), ShouldBeTrue)
				ras, _ := f.store.RatedAnswers(ctx)
				So(len(ras), ShouldEqual, 0)
			})
		})

		Convey("When the question is missing", func() {
			err := svc.Process(ctx, f.alpha.ID, 9999)
			So(errors.Is(err, service.ErrMissingReference), ShouldBeTrue)
			So(client.callCount("alpha"), ShouldEqual, 0)
		})

		Convey("When the subject model is unreachable", func() {
			client.fail("alpha")
			err := svc.Process(ctx, f.alpha.ID, f.objQ.ID)

			Convey("Then the pair is left without an answer", func() {
				So(err, ShouldNotBeNil)
				answers, _ := f.store.AnswersForQuestion(ctx, f.objQ.ID)
				So(len(answers), ShouldEqual, 0)
			})
		})

		Convey("When a setting raises the ceiling", func() {
			So(f.store.UpsertSetting(ctx, model.Setting{Type: model.Objective, Criteria: "exact", ScoreCeiling: 10}), ShouldBeNil)
			client.scores["judge1"] = "8"
			So(svc.Process(ctx, f.beta.ID, f.objQ.ID), ShouldBeNil)

			Convey("Then scores up to the new ceiling are valid", func() {
				answers, _ := f.store.AnswersForQuestion(ctx, f.objQ.ID)
				r, err := f.store.RatingForAnswer(ctx, answers[0].ID)
				So(err, ShouldBeNil)
				So(r.Score, ShouldEqual, 8.0)
				So(r.IsResponsive, ShouldBeTrue)
			})
		})
	})
}

func TestService_LeaderboardAndSnapshots(t *testing.T) {
	Convey("Given processed units for two subjects", t, func() {
		f := newFixture(t)
		client := newFakeClient()
		svc := service.New(f.store, client, service.WithRaters(f.raterSet))
		ctx := context.Background()

		So(svc.Process(ctx, f.alpha.ID, f.objQ.ID), ShouldBeNil) // judge1 says 4
		client.scores["judge1"] = "1"
		So(svc.Process(ctx, f.beta.ID, f.objQ.ID), ShouldBeNil)

		Convey("When reading the live leaderboard", func() {
			lb, err := svc.Leaderboard(ctx, "response_rate", "asc")
			So(err, ShouldBeNil)

			Convey("Then raters are excluded and ranks follow the weighted average", func() {
				So(len(lb.Rows), ShouldEqual, 2)
				for _, r := range lb.Rows {
					if r.SubjectID == f.alpha.ID {
						So(r.TotalScoreRank, ShouldEqual, 1)
					} else {
						So(r.TotalScoreRank, ShouldEqual, 2)
					}
				}
				So(len(lb.Dimensions), ShouldEqual, 1)
			})

			Convey("And one subject's row is available", func() {
				row, dims, err := svc.SubjectRow(ctx, f.beta.ID)
				So(err, ShouldBeNil)
				So(row.SubjectName, ShouldEqual, "beta")
				So(len(dims), ShouldEqual, 1)

				_, _, err = svc.SubjectRow(ctx, f.judge1.ID)
				So(errors.Is(err, service.ErrRaterSubject), ShouldBeTrue)
				_, _, err = svc.SubjectRow(ctx, 9999)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When capturing a manual snapshot", func() {
			snap, err := svc.CaptureSnapshot(ctx, model.TriggerManual, service.SourceOperator, "")
			So(err, ShouldBeNil)

			Convey("Then metadata records counts, trigger and thresholds", func() {
				So(snap.Metadata.SubjectCount, ShouldEqual, 2)
				So(snap.Metadata.DimensionCount, ShouldEqual, 1)
				So(snap.Metadata.QuestionCount, ShouldEqual, 2)
				So(snap.Metadata.Trigger, ShouldEqual, model.TriggerManual)
				So(snap.Metadata.Source, ShouldEqual, service.SourceOperator)
				So(snap.Metadata.ScoreThreshold, ShouldBeGreaterThan, 0)
			})

			Convey("And later ratings do not change it", func() {
				before, err := svc.GetSnapshot(ctx, snap.ID, "", "")
				So(err, ShouldBeNil)
				client.scores["judge1"] = "5"
				So(svc.Process(ctx, f.beta.ID, f.objQ.ID), ShouldBeNil)
				after, err := svc.GetSnapshot(ctx, snap.ID, "", "")
				So(err, ShouldBeNil)
				So(after.Rows, ShouldResemble, before.Rows)
			})

			Convey("And a re-sorted read keeps stored ranks", func() {
				view, err := svc.GetSnapshot(ctx, snap.ID, "avg_score", "asc")
				So(err, ShouldBeNil)
				So(view.Rows[0].SubjectID, ShouldEqual, f.beta.ID)
				So(view.Rows[0].TotalScoreRank, ShouldEqual, 2)
			})

			Convey("And it is listed for its day and can be deleted", func() {
				list, err := svc.ListSnapshots(ctx, time.Now().UTC())
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)
				So(svc.DeleteSnapshot(ctx, snap.ID), ShouldBeNil)
				_, err = svc.GetSnapshot(ctx, snap.ID, "", "")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When saving with an unknown trigger", func() {
			_, err := svc.SaveSnapshot(ctx, nil, nil, model.SnapshotMetadata{Trigger: "cron"})
			So(errors.Is(err, service.ErrInvalidTrigger), ShouldBeTrue)
		})
	})
}

// slowStore delays rated-answer reads and honours cancellation while waiting.
type slowStore struct {
	*repository.MemoryStore
	delay time.Duration
}

func (s slowStore) RatedAnswers(ctx context.Context) ([]model.RatedAnswer, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.MemoryStore.RatedAnswers(ctx)
}

func TestService_SharedLeaderboardRead(t *testing.T) {
	Convey("Given two identical leaderboard reads sharing one pass", t, func() {
		f := newFixture(t)
		svc := service.New(slowStore{MemoryStore: f.store, delay: 150 * time.Millisecond}, newFakeClient(),
			service.WithRaters(f.raterSet))

		first, cancel := context.WithCancel(context.Background())
		firstErr := make(chan error, 1)
		go func() {
			_, err := svc.Leaderboard(first, "", "")
			firstErr <- err
		}()
		time.Sleep(20 * time.Millisecond)

		secondErr := make(chan error, 1)
		go func() {
			_, err := svc.Leaderboard(context.Background(), "", "")
			secondErr <- err
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()

		Convey("Then cancelling the first caller does not fail the second", func() {
			So(errors.Is(<-firstErr, context.Canceled), ShouldBeTrue)
			So(<-secondErr, ShouldBeNil)
		})
	})
}
