package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/types"
	"github.com/golemproject/golem/pkg/worker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultTickInterval is how often the scheduler checks the schedule
// store for invocations that have come due.
const defaultTickInterval = 1 * time.Second

// WorkerLookup resolves a worker id to its live Worker, the scheduler's
// view into whatever owns worker lifetimes (an executor's in-memory
// registry, typically).
type WorkerLookup interface {
	Get(types.WorkerId) (*worker.Worker, bool)
}

// Registry is a simple in-memory WorkerLookup, the thing an executor
// process registers its live workers into as they start and stop.
type Registry struct {
	mu      sync.RWMutex
	workers map[types.WorkerId]*worker.Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[types.WorkerId]*worker.Worker)}
}

func (r *Registry) Register(id types.WorkerId, w *worker.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[id] = w
}

func (r *Registry) Unregister(id types.WorkerId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

func (r *Registry) Get(id types.WorkerId) (*worker.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// All returns every currently registered worker, for callers that need
// to enumerate (admin listings) rather than look up a single id.
func (r *Registry) All() []*worker.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	workers := make([]*worker.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	return workers
}

// WorkerStatusCounts returns the number of registered workers in each
// status, for metrics collection. It returns plain counts rather than
// *worker.Worker so pkg/metrics (imported everywhere) doesn't need to
// import this package back.
func (r *Registry) WorkerStatusCounts() map[types.WorkerStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[types.WorkerStatus]int)
	for _, w := range r.workers {
		counts[w.Status()]++
	}
	return counts
}

// Scheduler polls the schedule store for invocations that have come
// due and transfers them into their worker's invocation queue. It does
// not hold the invocations itself: a worker that is busy, suspended, or
// not yet registered simply leaves the item in the store until the next
// tick retries it.
type Scheduler struct {
	store    ScheduleStore
	workers  WorkerLookup
	logger   zerolog.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewScheduler(store ScheduleStore, workers WorkerLookup) *Scheduler {
	return &Scheduler{
		store:    store,
		workers:  workers,
		logger:   log.WithComponent("scheduler"),
		interval: defaultTickInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Schedule accepts a scheduled invocation for later delivery. invocation
// must carry a non-zero ScheduledFor; use the worker's own Invoke
// directly for immediate work.
func (s *Scheduler) Schedule(ctx context.Context, workerId types.WorkerId, invocation types.Invocation) error {
	if !invocation.IsScheduled() {
		return fmt.Errorf("scheduler: invocation has no ScheduledFor")
	}
	return s.store.Schedule(ctx, ScheduledItem{
		ID:         uuid.NewString(),
		WorkerId:   workerId,
		Invocation: invocation,
	})
}

// Start begins the polling loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the polling loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// tick transfers every due invocation to its worker's queue, retrying
// later on any failure rather than dropping the item.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.store.DueBefore(ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("list due invocations")
		return
	}

	for _, item := range due {
		w, ok := s.workers.Get(item.WorkerId)
		if !ok {
			s.logger.Debug().Str("worker_id", item.WorkerId.String()).Msg("scheduled invocation has no registered worker yet")
			continue
		}

		if err := w.Invoke(ctx, item.Invocation); err != nil {
			s.logger.Error().
				Err(err).
				Str("worker_id", item.WorkerId.String()).
				Str("function", item.Invocation.FunctionName).
				Msg("failed to deliver scheduled invocation")
			continue
		}

		if err := s.store.Remove(ctx, item); err != nil {
			s.logger.Error().Err(err).Msg("remove delivered invocation from schedule store")
		}
	}
}
