package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestActiveNeverExceedsLimit(t *testing.T) {
	const limit = 3
	const jobs = 20

	r := New(limit, time.Minute, nil, nil)

	var running, maxSeen int32
	var wg sync.WaitGroup
	wg.Add(jobs)

	for i := 0; i < jobs; i++ {
		r.Enqueue(Task{
			JobID: uuid.New(),
			Run: func(context.Context) error {
				cur := atomic.AddInt32(&running, 1)
				for {
					prev := atomic.LoadInt32(&maxSeen)
					if cur <= prev || atomic.CompareAndSwapInt32(&maxSeen, prev, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				wg.Done()
				return nil
			},
		})
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxSeen); got > limit {
		t.Errorf("observed %d concurrent jobs, limit is %d", got, limit)
	}
	// Queue fully drained.
	stats := r.Stats()
	if stats.QueueDepth != 0 {
		t.Errorf("queue depth after drain: got %d, want 0", stats.QueueDepth)
	}
}

func TestFailingJobDoesNotStallRunner(t *testing.T) {
	r := New(1, time.Minute, nil, nil)

	var wg sync.WaitGroup
	wg.Add(3)
	var ran int32

	fail := func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		wg.Done()
		return Fatal(context.DeadlineExceeded)
	}
	panicky := func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		wg.Done()
		panic("processor bug")
	}
	ok := func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		wg.Done()
		return nil
	}

	r.Enqueue(Task{JobID: uuid.New(), Run: fail})
	r.Enqueue(Task{JobID: uuid.New(), Run: panicky})
	r.Enqueue(Task{JobID: uuid.New(), Run: ok})
	wg.Wait()

	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Errorf("jobs run: got %d, want 3", got)
	}
}

func TestStatsWhileBlocked(t *testing.T) {
	r := New(1, time.Minute, nil, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})

	r.Enqueue(Task{JobID: uuid.New(), Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started
	r.Enqueue(Task{JobID: uuid.New(), Run: func(context.Context) error { return nil }})
	r.Enqueue(Task{JobID: uuid.New(), Run: func(context.Context) error {
		close(done)
		return nil
	}})

	stats := r.Stats()
	if stats.Active != 1 {
		t.Errorf("active: got %d, want 1", stats.Active)
	}
	if stats.QueueDepth != 2 {
		t.Errorf("queue depth: got %d, want 2", stats.QueueDepth)
	}

	close(release)
	<-done
}

func TestEvidenceLockCycle(t *testing.T) {
	r := New(2, time.Minute, nil, nil)

	if !r.AcquireEvidenceLock("ev-1") {
		t.Fatal("first acquire should succeed")
	}
	if r.AcquireEvidenceLock("ev-1") {
		t.Fatal("second acquire before release should fail")
	}
	// Other resources are independent.
	if !r.AcquireEvidenceLock("ev-2") {
		t.Fatal("acquire of a different resource should succeed")
	}

	r.ReleaseEvidenceLock("ev-1")
	if !r.AcquireEvidenceLock("ev-1") {
		t.Fatal("acquire after release should succeed")
	}

	stats := r.Stats()
	if len(stats.HeldLocks) != 2 {
		t.Errorf("held locks: got %d, want 2", len(stats.HeldLocks))
	}
}

type fakeStaleStore struct {
	olderThan time.Time
	requeued  int64
}

func (f *fakeStaleStore) RequeueStale(_ context.Context, olderThan time.Time) (int64, error) {
	f.olderThan = olderThan
	return f.requeued, nil
}

func TestRequeueStaleUsesThreshold(t *testing.T) {
	store := &fakeStaleStore{requeued: 2}
	threshold := 10 * time.Minute
	r := New(2, threshold, store, nil)

	before := time.Now().Add(-threshold)
	n, err := r.RequeueStale(context.Background())
	after := time.Now().Add(-threshold)

	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 2 {
		t.Errorf("requeued: got %d, want 2", n)
	}
	if store.olderThan.Before(before) || store.olderThan.After(after) {
		t.Errorf("olderThan %v outside expected range [%v, %v]", store.olderThan, before, after)
	}
}
