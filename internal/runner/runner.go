package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/telemetry"
)

// Task is one unit of admitted work. Run receives a background context; the
// runner does not cancel or time out in-flight work — timeouts come from the
// task's own I/O layer and surface as classified errors.
type Task struct {
	JobID uuid.UUID
	Run   func(ctx context.Context) error
}

// Stats is a read-only snapshot of runner state for backlog alerting.
type Stats struct {
	Active     int      `json:"active"`
	QueueDepth int      `json:"queue_depth"`
	HeldLocks  []string `json:"held_locks"`
}

// StaleStore flips abandoned processing jobs back to queued.
type StaleStore interface {
	RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Runner admits queued tasks under a fixed concurrency limit. The queue,
// counter, and evidence locks are per-process: running multiple instances
// does not compose a global limit.
type Runner struct {
	limit          int
	staleThreshold time.Duration
	store          StaleStore
	log            *slog.Logger

	mu     sync.Mutex
	queue  []Task
	active int
	locks  map[string]bool
}

func New(limit int, staleThreshold time.Duration, store StaleStore, log *slog.Logger) *Runner {
	if limit <= 0 {
		limit = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		limit:          limit,
		staleThreshold: staleThreshold,
		store:          store,
		log:            log,
		locks:          make(map[string]bool),
	}
}

// Enqueue appends a task to the FIFO queue and triggers dispatch. The queue
// is unbounded; producers must self-limit.
func (r *Runner) Enqueue(t Task) {
	r.mu.Lock()
	r.queue = append(r.queue, t)
	telemetry.JobsEnqueued.Inc()
	telemetry.QueueDepthGauge.Set(float64(len(r.queue)))
	r.mu.Unlock()
	r.dispatch()
}

// dispatch admits queued tasks while slots remain. Admission is FIFO;
// completion order is whatever the goroutines settle to.
func (r *Runner) dispatch() {
	r.mu.Lock()
	for r.active < r.limit && len(r.queue) > 0 {
		t := r.queue[0]
		r.queue = r.queue[1:]
		r.active++
		go r.run(t)
	}
	telemetry.ActiveGauge.Set(float64(r.active))
	telemetry.QueueDepthGauge.Set(float64(len(r.queue)))
	r.mu.Unlock()
}

func (r *Runner) run(t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("job panicked", "job_id", t.JobID, "panic", rec)
		}
		r.mu.Lock()
		r.active--
		telemetry.ActiveGauge.Set(float64(r.active))
		r.mu.Unlock()
		r.dispatch()
	}()
	if err := t.Run(context.Background()); err != nil {
		// Outcome side effects (refund, failure recording) belong to the
		// task itself; the runner only logs.
		r.log.Error("job failed", "job_id", t.JobID, "error", err)
	}
}

// AcquireEvidenceLock takes the single-writer lock for a resource. Returns
// false when the lock is already held; the caller must skip, not block.
func (r *Runner) AcquireEvidenceLock(resourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[resourceID] {
		return false
	}
	r.locks[resourceID] = true
	return true
}

// ReleaseEvidenceLock releases the lock for a resource.
func (r *Runner) ReleaseEvidenceLock(resourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, resourceID)
}

// RequeueStale flips persisted jobs stuck in processing past the threshold
// back to queued. Invoked at process start and then periodically; there is
// no separate watchdog process.
func (r *Runner) RequeueStale(ctx context.Context) (int64, error) {
	if r.store == nil {
		return 0, nil
	}
	n, err := r.store.RequeueStale(ctx, time.Now().Add(-r.staleThreshold))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.JobsRequeued.Add(float64(n))
		r.log.Warn("requeued stale jobs", "count", n, "threshold", r.staleThreshold)
	}
	return n, nil
}

// Stats returns a snapshot of runner state.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := make([]string, 0, len(r.locks))
	for id := range r.locks {
		held = append(held, id)
	}
	return Stats{Active: r.active, QueueDepth: len(r.queue), HeldLocks: held}
}
