package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/rocketstat/internal/adapters/mq/queue"
	"github.com/okian/rocketstat/internal/adapters/mq/worker"
	"github.com/okian/rocketstat/internal/domain/model"
	logging "github.com/okian/rocketstat/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	close(mq.jobs)
	return nil
}

type write struct {
	slot    string
	version uint64
}

type mockWriter struct {
	mu      sync.Mutex
	writes  []write
	latest  map[string]uint64
	failFor map[string]error
	calls   chan write
}

func newMockWriter() *mockWriter {
	return &mockWriter{
		latest:  make(map[string]uint64),
		failFor: make(map[string]error),
		calls:   make(chan write, 100),
	}
}

func (mw *mockWriter) Persist(_ context.Context, slot string, version uint64, _ model.Document) (bool, error) {
	mw.mu.Lock()
	defer func() {
		mw.mu.Unlock()
		mw.calls <- write{slot: slot, version: version}
	}()

	if err, ok := mw.failFor[slot]; ok {
		return false, err
	}
	if version <= mw.latest[slot] {
		return false, nil
	}
	mw.latest[slot] = version
	mw.writes = append(mw.writes, write{slot: slot, version: version})
	return true, nil
}

func (mw *mockWriter) written() []write {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return append([]write(nil), mw.writes...)
}

func job(slot string, version uint64) queue.Job {
	return queue.Job{
		Slot:       slot,
		Version:    version,
		Document:   model.Document{"data": "Win"},
		AcceptedAt: time.Now(),
	}
}

func waitCall(mw *mockWriter) write {
	select {
	case c := <-mw.calls:
		return c
	case <-time.After(time.Second):
		return write{}
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		writer := newMockWriter()
		w := worker.NewInMemoryWorker(q, writer, worker.WithName("test-worker"), worker.WithPersistTimeout(time.Second))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job arrives", func() {
			q.jobs <- job("steam_1", 1)
			call := waitCall(writer)

			convey.Convey("Then it is written to the store", func() {
				convey.So(call, convey.ShouldResemble, write{slot: "steam_1", version: 1})
				convey.So(writer.written(), convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When an older version arrives after a newer one", func() {
			q.jobs <- job("steam_1", 2)
			q.jobs <- job("steam_1", 1)
			waitCall(writer)
			waitCall(writer)

			convey.Convey("Then only the newer version is kept", func() {
				convey.So(writer.written(), convey.ShouldResemble, []write{{slot: "steam_1", version: 2}})
			})
		})

		convey.Convey("When the store fails", func() {
			writer.mu.Lock()
			writer.failFor["broken"] = errors.New("disk full")
			writer.mu.Unlock()

			q.jobs <- job("broken", 1)
			waitCall(writer)
			q.jobs <- job("steam_1", 1)
			call := waitCall(writer)

			convey.Convey("Then the worker keeps going", func() {
				convey.So(call.slot, convey.ShouldEqual, "steam_1")
				convey.So(writer.written(), convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it stops cleanly and tolerates a second call", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestInMemoryWorkerStopsWhenQueueCloses(t *testing.T) {
	convey.Convey("Given a worker on a queue that closes", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, newMockWriter())
		done := make(chan struct{})
		go func() {
			w.Run(context.Background())
			close(done)
		}()

		_ = q.Close()

		convey.Convey("Then Run returns", func() {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("worker did not stop after queue close")
			}
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		writer := newMockWriter()
		pool := worker.NewPool(3, q, writer, worker.WithPersistTimeout(time.Second))

		convey.So(pool.Size(), convey.ShouldEqual, 3)

		ctx := context.Background()
		pool.Start(ctx)

		convey.Convey("When jobs for several slots are enqueued and the pool shuts down", func() {
			for i := 1; i <= 10; i++ {
				convey.So(q.Enqueue(ctx, job("steam_a", uint64(i))), convey.ShouldBeNil)
				convey.So(q.Enqueue(ctx, job("epic_b", uint64(i))), convey.ShouldBeNil)
			}

			err := pool.Shutdown(ctx)

			convey.Convey("Then the queue is drained and the latest versions win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)

				writer.mu.Lock()
				defer writer.mu.Unlock()
				convey.So(writer.latest["steam_a"], convey.ShouldEqual, 10)
				convey.So(writer.latest["epic_b"], convey.ShouldEqual, 10)
			})
		})
	})

	convey.Convey("Given a pool with no worker count", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, newMockQueue(), newMockWriter())

		convey.Convey("Then it falls back to one worker per CPU", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
