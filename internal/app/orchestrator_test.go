package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/evalboard/internal/adapters/repository"
	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/domain/dedupe"
	"github.com/okian/evalboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func processed(ctx context.Context, svc *service.Service) int64 {
	v, _ := svc.GetStats(ctx)["processed"].(int64)
	return v
}

func TestOrchestrator_RegenerateQuestion(t *testing.T) {
	Convey("Given a started service", t, func() {
		f := newFixture(t)
		client := newFakeClient()
		guard := dedupe.NewInMemoryDeduper()
		svc := service.New(f.store, client,
			service.WithWorkerCount(4),
			service.WithRaters(f.raterSet),
			service.WithDeduper(guard),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { svc.Stop(ctx) })

		Convey("When one question is regenerated twice in sequence", func() {
			d, err := svc.RegenerateQuestion(ctx, f.subjQ.ID)
			So(err, ShouldBeNil)
			So(d.Units, ShouldEqual, 2) // raters are not subjects
			So(eventually(func() bool { return processed(ctx, svc) == 2 }), ShouldBeTrue)

			_, err = svc.RegenerateQuestion(ctx, f.subjQ.ID)
			So(err, ShouldBeNil)
			So(eventually(func() bool { return processed(ctx, svc) == 4 }), ShouldBeTrue)

			Convey("Then exactly one answer per subject remains", func() {
				answers, err := f.store.AnswersForQuestion(ctx, f.subjQ.ID)
				So(err, ShouldBeNil)
				So(len(answers), ShouldEqual, 2)
				seen := map[int64]int{}
				for _, a := range answers {
					seen[a.SubjectID]++
				}
				So(seen[f.alpha.ID], ShouldEqual, 1)
				So(seen[f.beta.ID], ShouldEqual, 1)
				So(seen[f.judge1.ID], ShouldEqual, 0)
			})
		})

		Convey("When the question is triggered again while its units are running", func() {
			client.slow(200 * time.Millisecond)
			_, err := svc.RegenerateQuestion(ctx, f.subjQ.ID)
			So(err, ShouldBeNil)
			time.Sleep(20 * time.Millisecond)

			_, err = svc.RegenerateQuestion(ctx, f.subjQ.ID)
			So(errors.Is(err, service.ErrAlreadyQueued), ShouldBeTrue)
			_, err = svc.RegenerateSubjectAll(ctx, f.alpha.ID)
			So(errors.Is(err, service.ErrAlreadyQueued), ShouldBeTrue)
			So(svc.Pending(f.subjQ.ID), ShouldBeGreaterThan, 0)

			So(eventually(func() bool { return processed(ctx, svc) == 2 }), ShouldBeTrue)

			Convey("Then one generation wrote one answer per subject and the question is free again", func() {
				answers, err := f.store.AnswersForQuestion(ctx, f.subjQ.ID)
				So(err, ShouldBeNil)
				So(len(answers), ShouldEqual, 2)
				So(svc.Pending(f.subjQ.ID), ShouldEqual, 0)

				client.slow(0)
				_, err = svc.RegenerateQuestion(ctx, f.subjQ.ID)
				So(err, ShouldBeNil)
				So(eventually(func() bool { return processed(ctx, svc) == 4 }), ShouldBeTrue)
			})
		})

		Convey("When a subject regeneration is running", func() {
			client.slow(200 * time.Millisecond)
			d, err := svc.RegenerateSubjectAll(ctx, f.alpha.ID)
			So(err, ShouldBeNil)
			So(d.Units, ShouldEqual, 2)

			_, err = svc.RegenerateQuestion(ctx, f.objQ.ID)
			So(errors.Is(err, service.ErrAlreadyQueued), ShouldBeTrue)
			_, err = svc.RegenerateAll(ctx, "")
			So(errors.Is(err, service.ErrAlreadyQueued), ShouldBeTrue)

			Convey("Then both questions are released once its units finish", func() {
				So(eventually(func() bool {
					return svc.Pending(f.subjQ.ID) == 0 && svc.Pending(f.objQ.ID) == 0
				}), ShouldBeTrue)
				So(guard.Size(), ShouldEqual, int64(0))
			})
		})

		Convey("When the question is already queued", func() {
			guard.SeenAndRecord(ctx, fmt.Sprintf("question:%d", f.subjQ.ID))
			_, err := svc.RegenerateQuestion(ctx, f.subjQ.ID)
			So(errors.Is(err, service.ErrAlreadyQueued), ShouldBeTrue)
		})

		Convey("When the question does not exist", func() {
			_, err := svc.RegenerateQuestion(ctx, 9999)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When every subject is a rater", func() {
			all := service.New(f.store, client, service.WithRaters(model.RaterSet{
				model.Subjective: {"alpha", "beta", "judge1", "judge2"},
			}))
			So(all.Start(ctx), ShouldBeNil)
			defer all.Stop(ctx)
			d, err := all.RegenerateQuestion(ctx, f.subjQ.ID)

			Convey("Then nothing is queued and no error is raised", func() {
				So(err, ShouldBeNil)
				So(d.Units, ShouldEqual, 0)
			})
		})
	})
}

func TestOrchestrator_RegenerateAll(t *testing.T) {
	Convey("Given a started service with one unreachable subject", t, func() {
		f := newFixture(t)
		client := newFakeClient()
		client.fail("beta")
		svc := service.New(f.store, client, service.WithWorkerCount(3), service.WithRaters(f.raterSet))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { svc.Stop(ctx) })

		// Stale data from an earlier generation must disappear.
		_, _, err := f.store.SaveRatedAnswer(ctx,
			model.Answer{QuestionID: f.objQ.ID, SubjectID: f.beta.ID, Content: "old"},
			model.Rating{Score: 5, IsResponsive: true})
		So(err, ShouldBeNil)

		Convey("When the whole corpus is regenerated", func() {
			d, err := svc.RegenerateAll(ctx, "")
			So(err, ShouldBeNil)
			So(d.BatchID, ShouldNotBeEmpty)
			So(d.Questions, ShouldEqual, 2)

			var snaps []model.Snapshot
			fired := eventually(func() bool {
				snaps, _ = svc.ListSnapshots(ctx, time.Time{})
				return len(snaps) == 1
			})

			Convey("Then the barrier fires once despite the failing units", func() {
				So(fired, ShouldBeTrue)
				So(eventually(func() bool { return processed(ctx, svc) == 2+4 }), ShouldBeTrue) // two groups, four units
				time.Sleep(50 * time.Millisecond)
				snaps, _ = svc.ListSnapshots(ctx, time.Time{})
				So(len(snaps), ShouldEqual, 1)
				So(snaps[0].Metadata.Trigger, ShouldEqual, model.TriggerAuto)
				So(snaps[0].Metadata.Source, ShouldEqual, service.SourceRegenerateAll)
				So(snaps[0].Metadata.BatchID, ShouldEqual, d.BatchID)
				So(svc.GetStats(ctx)["pendingBatches"], ShouldEqual, 0)
			})

			Convey("And the healthy subject's data is intact while the failed one has none", func() {
				ras, err := f.store.RatedAnswers(ctx)
				So(err, ShouldBeNil)
				So(len(ras), ShouldEqual, 2)
				for _, ra := range ras {
					So(ra.SubjectID, ShouldEqual, f.alpha.ID)
				}
			})
		})
	})

	Convey("Given a started service over an empty corpus", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(store, newFakeClient())
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { svc.Stop(ctx) })

		d, err := svc.RegenerateAll(ctx, service.SourceSchedule)

		Convey("Then it is a no-op", func() {
			So(err, ShouldBeNil)
			So(d, ShouldResemble, service.Dispatch{})
			snaps, _ := store.ListSnapshots(ctx, repository.SnapshotFilter{})
			So(len(snaps), ShouldEqual, 0)
		})
	})
}

func TestOrchestrator_RegenerateSubjectAll(t *testing.T) {
	Convey("Given a started service", t, func() {
		f := newFixture(t)
		svc := service.New(f.store, newFakeClient(), service.WithWorkerCount(2), service.WithRaters(f.raterSet))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { svc.Stop(ctx) })

		Convey("When a subject is regenerated across the corpus twice", func() {
			d, err := svc.RegenerateSubjectAll(ctx, f.alpha.ID)
			So(err, ShouldBeNil)
			So(d.Units, ShouldEqual, 2)
			So(eventually(func() bool { return processed(ctx, svc) == 2 }), ShouldBeTrue)
			_, err = svc.RegenerateSubjectAll(ctx, f.alpha.ID)
			So(err, ShouldBeNil)
			So(eventually(func() bool { return processed(ctx, svc) == 4 }), ShouldBeTrue)

			Convey("Then it holds one answer per question", func() {
				ras, err := f.store.RatedAnswers(ctx)
				So(err, ShouldBeNil)
				So(len(ras), ShouldEqual, 2)
			})
		})

		Convey("When the subject is a rater", func() {
			_, err := svc.RegenerateSubjectAll(ctx, f.judge1.ID)
			So(errors.Is(err, service.ErrRaterSubject), ShouldBeTrue)
		})

		Convey("When the subject does not exist", func() {
			_, err := svc.RegenerateSubjectAll(ctx, 9999)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		_, err := service.NewScheduler("not a spec", func(context.Context) {})
		So(err, ShouldNotBeNil)

		var runs atomic.Int32
		release := make(chan struct{})
		sched, err := service.NewScheduler(service.DefaultSchedule, func(context.Context) {
			runs.Add(1)
			<-release
		})
		So(err, ShouldBeNil)

		Convey("When a run overlaps a previous one", func() {
			done := make(chan struct{})
			go func() {
				sched.Run(context.Background())
				close(done)
			}()
			So(eventually(func() bool { return runs.Load() == 1 }), ShouldBeTrue)
			sched.Run(context.Background())
			close(release)
			<-done

			Convey("Then the second run is skipped", func() {
				So(runs.Load(), ShouldEqual, 1)
			})
		})
	})
}
