package barrier_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/evalboard/internal/adapters/mq/barrier"
	"github.com/okian/evalboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func trackerContract(t *testing.T, name string, newTracker func() barrier.Tracker) {
	Convey("Given a barrier over a "+name+" tracker", t, func() {
		ctx := context.Background()
		var fired atomic.Int32
		var got barrier.Batch
		var mu sync.Mutex
		b := barrier.New(newTracker(), func(_ context.Context, batch barrier.Batch) {
			fired.Add(1)
			mu.Lock()
			got = batch
			mu.Unlock()
		})
		id := uuid.NewString()

		Convey("When every child completes concurrently", func() {
			So(b.Open(ctx, barrier.Batch{ID: id, Source: "regenerate_all"}, 50), ShouldBeNil)
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = b.Done(ctx, id)
				}()
			}
			wg.Wait()

			Convey("Then the callback fires exactly once with the batch source", func() {
				So(fired.Load(), ShouldEqual, 1)
				mu.Lock()
				defer mu.Unlock()
				So(got.ID, ShouldEqual, id)
				So(got.Source, ShouldEqual, "regenerate_all")
			})

			Convey("And late completions are rejected instead of firing again", func() {
				err := b.Done(ctx, id)
				So(errors.Is(err, barrier.ErrUnknownBatch), ShouldBeTrue)
				So(fired.Load(), ShouldEqual, 1)
			})
		})

		Convey("When a parent adds nested children before finishing itself", func() {
			So(b.Open(ctx, barrier.Batch{ID: id}, 2), ShouldBeNil)
			So(b.Add(ctx, id, 3), ShouldBeNil)
			So(b.Done(ctx, id), ShouldBeNil) // first parent
			So(b.Done(ctx, id), ShouldBeNil) // second parent, no children of its own
			So(fired.Load(), ShouldEqual, 0)
			pending, err := b.Pending(ctx)
			So(err, ShouldBeNil)
			So(pending, ShouldBeGreaterThanOrEqualTo, 1)

			for i := 0; i < 3; i++ {
				So(b.Done(ctx, id), ShouldBeNil)
			}
			Convey("Then it fires only after the nested children", func() {
				So(fired.Load(), ShouldEqual, 1)
			})
		})

		Convey("When opening an empty or duplicate batch", func() {
			So(errors.Is(b.Open(ctx, barrier.Batch{ID: id}, 0), barrier.ErrEmptyBatch), ShouldBeTrue)
			So(b.Open(ctx, barrier.Batch{ID: id}, 1), ShouldBeNil)
			So(errors.Is(b.Open(ctx, barrier.Batch{ID: id}, 1), barrier.ErrBatchExists), ShouldBeTrue)
			So(b.Done(ctx, id), ShouldBeNil)
		})

		Convey("When growing an unknown batch", func() {
			err := b.Add(ctx, "missing-"+id, 1)
			So(errors.Is(err, barrier.ErrUnknownBatch), ShouldBeTrue)
		})
	})
}

func TestMemoryTracker(t *testing.T) {
	trackerContract(t, "memory", func() barrier.Tracker { return barrier.NewMemoryTracker() })
}

func TestRedisTracker(t *testing.T) {
	addr := os.Getenv("EVALBOARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EVALBOARD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	prefix := "evalboard:test:" + uuid.NewString() + ":"
	trackerContract(t, "redis", func() barrier.Tracker { return barrier.NewRedisTracker(client, prefix) })
}
