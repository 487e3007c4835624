package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/ngazi/core"
)

// recurringSpec re-enqueues one maintenance job type on a fixed interval.
// Recurring jobs are ordinary jobs; only their enqueueing is special.
type recurringSpec struct {
	jobType  string
	every    time.Duration
	priority int
	next     time.Time
}

// Scheduler owns the poll ticker driving Queue.Tick and the recurring
// maintenance job specs. It exposes an explicit Start/Stop lifecycle and a
// mockable clock so tests can drive time deterministically.
type Scheduler struct {
	queue     *Queue
	logger    core.Logger
	interval  time.Duration
	recurring []recurringSpec

	nowFunc func() time.Time // mockable

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
}

func NewScheduler(q *Queue, logger core.Logger, conf *core.Config) *Scheduler {
	return &Scheduler{
		queue:    q,
		logger:   logger,
		interval: conf.Queue.PollInterval,
		recurring: []recurringSpec{
			{jobType: CacheWarmingJob, every: conf.Queue.CacheWarmInterval, priority: 5},
			{jobType: CleanupTasksJob, every: conf.Queue.CleanupInterval, priority: 9},
			{jobType: AnalyticsAggregationJob, every: conf.Queue.AnalyticsInterval, priority: 5},
			{jobType: PerformanceMetricsJob, every: conf.Queue.MetricsInterval, priority: 9},
		},
		nowFunc: time.Now,
	}
}

// Start launches the poll loop. It is a no-op if the scheduler is already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	now := s.nowFunc().UTC()
	for i := range s.recurring {
		s.recurring[i].next = now.Add(s.recurring[i].every)
	}

	go s.loop(s.done, s.stopped)
	s.logger.Info(fmt.Sprintf("queue scheduler started: polling every %s", s.interval))
}

// Stop halts the poll loop and waits for in-flight jobs to settle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	done, stopped := s.done, s.stopped
	s.done, s.stopped = nil, nil
	s.mu.Unlock()
	if done == nil {
		return
	}

	close(done)
	<-stopped
	s.queue.Wait()
	s.logger.Info("queue scheduler stopped")
}

func (s *Scheduler) loop(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.tick(s.nowFunc().UTC())
		}
	}
}

// tick re-enqueues any due recurring jobs, then lets the queue admit work.
func (s *Scheduler) tick(now time.Time) {
	for i := range s.recurring {
		spec := &s.recurring[i]
		if now.Before(spec.next) {
			continue
		}
		if err := s.queue.EnqueueJob(spec.jobType, nil, spec.priority); err != nil {
			s.logger.Error(fmt.Sprintf("enqueueing recurring job %s: %v", spec.jobType, err), err)
		}
		spec.next = now.Add(spec.every)
	}
	s.queue.Tick(now)
}
