package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	testutil "github.com/trezcool/ngazi/tests"
)

func newTestScheduler(t *testing.T) (*Scheduler, *Queue, *fakeClock) {
	t.Helper()

	q, clock, _ := newTestQueue(t)
	s := NewScheduler(q, testutil.NewLogger(), q.conf)
	s.nowFunc = clock.now
	return s, q, clock
}

func TestScheduler_tick_recurring(t *testing.T) {
	s, q, clock := newTestScheduler(t)

	var (
		mu  sync.Mutex
		ran = make(map[string]int)
	)
	for _, spec := range s.recurring {
		jobType := spec.jobType
		q.Register(jobType, func(_ context.Context, _ Job) error {
			mu.Lock()
			ran[jobType]++
			mu.Unlock()
			return nil
		})
	}

	start := clock.now()
	for i := range s.recurring {
		s.recurring[i].next = start.Add(s.recurring[i].every)
	}

	// nothing is due before the first interval elapses
	s.tick(start)
	q.Wait()
	if jobs := q.ListJobs(); len(jobs) != 0 {
		t.Fatalf("tick() before due enqueued %v jobs, want 0", len(jobs))
	}

	// testutil config puts all recurring jobs on the same interval
	now := clock.advance(time.Minute)
	s.tick(now)
	q.Wait()

	mu.Lock()
	for _, spec := range s.recurring {
		if ran[spec.jobType] != 1 {
			t.Errorf("ran[%s] = %v, want 1", spec.jobType, ran[spec.jobType])
		}
	}
	mu.Unlock()

	// a due recurring job reschedules itself one interval out
	s.tick(now.Add(time.Second))
	q.Wait()
	mu.Lock()
	for _, spec := range s.recurring {
		if ran[spec.jobType] != 1 {
			t.Errorf("ran[%s] = %v after immediate re-tick, want still 1", spec.jobType, ran[spec.jobType])
		}
	}
	mu.Unlock()

	now = clock.advance(time.Minute)
	s.tick(now)
	q.Wait()
	mu.Lock()
	for _, spec := range s.recurring {
		if ran[spec.jobType] != 2 {
			t.Errorf("ran[%s] = %v after second interval, want 2", spec.jobType, ran[spec.jobType])
		}
	}
	mu.Unlock()
}

func TestScheduler_StartStop(t *testing.T) {
	q, _, _ := newTestQueue(t)
	q.nowFunc = time.Now // the poll loop runs on the wall clock
	s := NewScheduler(q, testutil.NewLogger(), q.conf)

	done := make(chan struct{})
	q.Register("ping", func(_ context.Context, _ Job) error {
		close(done)
		return nil
	})
	if _, err := q.Enqueue(NewJob{Type: "ping"}); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	s.Start()
	s.Start() // idempotent
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not picked up by the poll loop")
	}

	s.Stop()
	s.Stop() // idempotent

	if job := q.ListJobs(StatusCompleted); len(job) != 1 {
		t.Errorf("completed jobs = %v, want 1", len(job))
	}
}
