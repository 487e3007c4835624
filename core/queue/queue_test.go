package queue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
	testutil "github.com/trezcool/ngazi/tests"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type mailSvcMock struct {
	mu       sync.Mutex
	messages []core.EmailMessage
}

func (svc *mailSvcMock) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, msg := range messages {
		svc.messages = append(svc.messages, *msg)
	}
}

func (svc *mailSvcMock) sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.messages...)
}

func newTestQueue(t *testing.T) (*Queue, *fakeClock, *mailSvcMock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2023, 2, 1, 8, 0, 0, 0, time.UTC)}
	mailSvc := &mailSvcMock{}
	q := New(testutil.NewTestConfig(), testutil.NewLogger(), mailSvc)
	q.nowFunc = clock.now
	return q, clock, mailSvc
}

func TestQueue_Enqueue(t *testing.T) {
	q, clock, _ := newTestQueue(t)

	job, err := q.Enqueue(NewJob{Type: " Send-Report "})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if job.Type != "send-report" {
		t.Errorf("Type = %q, want %q", job.Type, "send-report")
	}
	if job.Status != StatusPending {
		t.Errorf("Status = %v, want %v", job.Status, StatusPending)
	}
	if job.MaxAttempts != q.conf.Queue.MaxAttempts {
		t.Errorf("MaxAttempts = %v, want default %v", job.MaxAttempts, q.conf.Queue.MaxAttempts)
	}
	if !job.ScheduledFor.Equal(clock.now()) {
		t.Errorf("ScheduledFor = %v, want %v", job.ScheduledFor, clock.now())
	}

	if _, err = q.Enqueue(NewJob{Type: "Nope_Nope!"}); err == nil {
		t.Error("Enqueue() succeeded with invalid type, want error")
	}
}

func TestQueue_EnqueueJob(t *testing.T) {
	q, _, _ := newTestQueue(t)

	if err := q.EnqueueJob("leaderboard-refresh", map[string]string{"scope": "class-7a"}, 1); err != nil {
		t.Fatalf("EnqueueJob() failed: %v", err)
	}

	jobs := q.ListJobs()
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %v, want 1", len(jobs))
	}
	if got := string(jobs[0].Payload); got != `{"scope":"class-7a"}` {
		t.Errorf("Payload = %s, want scope payload", got)
	}
	if jobs[0].Priority != 1 {
		t.Errorf("Priority = %v, want 1", jobs[0].Priority)
	}
}

func TestQueue_Tick_admissionOrder(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	q.conf.Queue.Concurrency = 1

	var (
		mu  sync.Mutex
		ran []string
	)
	record := func(_ context.Context, job Job) error {
		mu.Lock()
		ran = append(ran, job.Type)
		mu.Unlock()
		return nil
	}

	// low priority first in, high priority (lower number) second: the
	// high-priority job must jump the queue, ties run in creation order
	for _, nj := range []NewJob{
		{Type: "first-low", Priority: 5},
		{Type: "the-high", Priority: 1},
		{Type: "other-low", Priority: 5},
	} {
		q.Register(nj.Type, record)
		if _, err := q.Enqueue(nj); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", nj.Type, err)
		}
		clock.advance(time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if admitted := q.Tick(clock.now()); admitted != 1 {
			t.Fatalf("Tick() admitted %v jobs, want 1", admitted)
		}
		q.Wait()
	}

	want := []string{"the-high", "first-low", "other-low"}
	mu.Lock()
	defer mu.Unlock()
	if len(ran) != len(want) {
		t.Fatalf("ran %v jobs, want %v", len(ran), len(want))
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Errorf("ran[%d] = %q, want %q", i, ran[i], want[i])
		}
	}
}

func TestQueue_Tick_concurrencyBudget(t *testing.T) {
	q, clock, _ := newTestQueue(t)

	release := make(chan struct{})
	q.Register("blocking", func(_ context.Context, _ Job) error {
		<-release
		return nil
	})
	for i := 0; i < 20; i++ {
		if _, err := q.Enqueue(NewJob{Type: "blocking"}); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	if admitted := q.Tick(clock.now()); admitted != q.conf.Queue.Concurrency {
		t.Fatalf("Tick() admitted %v jobs, want %v", admitted, q.conf.Queue.Concurrency)
	}
	if st := q.Stats(); st.Processing != q.conf.Queue.Concurrency {
		t.Errorf("Processing = %v, want %v", st.Processing, q.conf.Queue.Concurrency)
	}

	// saturated: further ticks admit nothing
	if admitted := q.Tick(clock.now()); admitted != 0 {
		t.Errorf("Tick() admitted %v jobs while saturated, want 0", admitted)
	}

	close(release)
	q.Wait()

	// freed slots admit the next batch
	if admitted := q.Tick(clock.now()); admitted != q.conf.Queue.Concurrency {
		t.Errorf("Tick() admitted %v jobs, want %v", admitted, q.conf.Queue.Concurrency)
	}
	q.Wait()
}

func TestQueue_retryWithBackoff(t *testing.T) {
	q, clock, mailSvc := newTestQueue(t)

	boom := errors.New("boom")
	q.Register("flaky", func(_ context.Context, _ Job) error { return boom })
	job, err := q.Enqueue(NewJob{Type: "flaky"})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	// attempt 1 fails and reschedules with backoff
	start := clock.now()
	q.Tick(start)
	q.Wait()
	got, _ := q.GetJob(job.ID)
	if got.Status != StatusPending || got.AttemptCount != 1 {
		t.Fatalf("after attempt 1: status %v attempts %v, want pending 1", got.Status, got.AttemptCount)
	}
	firstDelay := got.ScheduledFor.Sub(start)
	if firstDelay <= 0 {
		t.Fatalf("ScheduledFor not pushed into the future: %v", got.ScheduledFor)
	}

	// not due yet
	if admitted := q.Tick(start.Add(firstDelay - time.Millisecond)); admitted != 0 {
		t.Errorf("Tick() admitted %v jobs before backoff elapsed, want 0", admitted)
	}

	// attempt 2: the retry delay must grow
	now := clock.advance(firstDelay)
	q.Tick(now)
	q.Wait()
	got, _ = q.GetJob(job.ID)
	if got.Status != StatusPending || got.AttemptCount != 2 {
		t.Fatalf("after attempt 2: status %v attempts %v, want pending 2", got.Status, got.AttemptCount)
	}
	if secondDelay := got.ScheduledFor.Sub(now); secondDelay <= firstDelay {
		t.Errorf("second delay %v, want > first delay %v", secondDelay, firstDelay)
	}

	// attempt 3 exhausts the budget: failed for good, ops alerted
	now = clock.advance(got.ScheduledFor.Sub(now))
	q.Tick(now)
	q.Wait()
	got, _ = q.GetJob(job.ID)
	if got.Status != StatusFailed || got.AttemptCount != 3 {
		t.Fatalf("after attempt 3: status %v attempts %v, want failed 3", got.Status, got.AttemptCount)
	}
	if got.LastError == "" {
		t.Error("LastError is empty, want failure reason")
	}

	sent := mailSvc.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %v alert emails, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Subject, "flaky") {
		t.Errorf("alert subject = %q, want job type in it", sent[0].Subject)
	}
	if sent[0].TemplateName != "job-failed" {
		t.Errorf("alert template = %q, want %q", sent[0].TemplateName, "job-failed")
	}

	// retries never resurrect a failed job
	if admitted := q.Tick(clock.advance(time.Hour)); admitted != 0 {
		t.Errorf("Tick() admitted %v jobs after permanent failure, want 0", admitted)
	}
}

func TestQueue_backoffCap(t *testing.T) {
	q, _, _ := newTestQueue(t)
	q.conf.Queue.BackoffBase = time.Second
	q.conf.Queue.BackoffMax = 3 * time.Second

	if d := q.backoff(1); d != 2*time.Second {
		t.Errorf("backoff(1) = %v, want 2s", d)
	}
	if d := q.backoff(10); d != 3*time.Second {
		t.Errorf("backoff(10) = %v, want capped at 3s", d)
	}
}

func TestQueue_unknownJobType(t *testing.T) {
	q, clock, _ := newTestQueue(t)

	job, err := q.Enqueue(NewJob{Type: "no-such-job"})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	for i := 0; i < job.MaxAttempts; i++ {
		q.Tick(clock.now())
		q.Wait()
		clock.advance(time.Hour)
	}

	got, _ := q.GetJob(job.ID)
	if got.Status != StatusFailed {
		t.Fatalf("Status = %v, want %v", got.Status, StatusFailed)
	}
	if !strings.Contains(got.LastError, "no handler registered") {
		t.Errorf("LastError = %q, want unknown handler error", got.LastError)
	}
}

func TestQueue_panicIsolation(t *testing.T) {
	q, clock, _ := newTestQueue(t)

	q.Register("panicky", func(_ context.Context, _ Job) error { panic("kaboom") })
	q.Register("steady", func(_ context.Context, _ Job) error { return nil })

	panicky, err := q.Enqueue(NewJob{Type: "panicky", MaxAttempts: 1})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	steady, err := q.Enqueue(NewJob{Type: "steady"})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	q.Tick(clock.now())
	q.Wait()

	got, _ := q.GetJob(panicky.ID)
	if got.Status != StatusFailed {
		t.Errorf("panicky status = %v, want %v", got.Status, StatusFailed)
	}
	if !strings.Contains(got.LastError, "kaboom") {
		t.Errorf("LastError = %q, want recovered panic message", got.LastError)
	}

	got, _ = q.GetJob(steady.ID)
	if got.Status != StatusCompleted {
		t.Errorf("steady status = %v, want %v", got.Status, StatusCompleted)
	}
}

func TestQueue_PurgeCompleted(t *testing.T) {
	q, clock, _ := newTestQueue(t)

	q.Register("noop", func(_ context.Context, _ Job) error { return nil })
	job, err := q.Enqueue(NewJob{Type: "noop"})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	q.Tick(clock.now())
	q.Wait()

	completedAt := clock.now()
	if purged := q.PurgeCompleted(completedAt.Add(-time.Second)); purged != 0 {
		t.Errorf("PurgeCompleted() = %v before cutoff, want 0", purged)
	}
	if purged := q.PurgeCompleted(completedAt); purged != 1 {
		t.Errorf("PurgeCompleted() = %v, want 1", purged)
	}
	if _, err = q.GetJob(job.ID); err != ErrJobNotFound {
		t.Errorf("GetJob() error = %v, want ErrJobNotFound", err)
	}
}

func TestQueue_ListJobsAndStats(t *testing.T) {
	q, clock, _ := newTestQueue(t)

	q.Register("noop", func(_ context.Context, _ Job) error { return nil })
	if _, err := q.Enqueue(NewJob{Type: "noop"}); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	clock.advance(time.Millisecond)
	if _, err := q.Enqueue(NewJob{Type: "later-job", ScheduledFor: null.TimeFrom(clock.now().Add(time.Hour))}); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	q.Tick(clock.now())
	q.Wait()

	if jobs := q.ListJobs(); len(jobs) != 2 {
		t.Errorf("ListJobs() returned %v jobs, want 2", len(jobs))
	}
	if jobs := q.ListJobs(StatusPending); len(jobs) != 1 || jobs[0].Type != "later-job" {
		t.Errorf("ListJobs(pending) = %v, want the deferred job only", jobs)
	}

	st := q.Stats()
	if st.Pending != 1 || st.Completed != 1 {
		t.Errorf("Stats() = %+v, want 1 pending and 1 completed", st)
	}
	if st.CompletedTotal != 1 || st.AttemptsTotal != 1 {
		t.Errorf("Stats() totals = %+v, want completed_total=1 attempts_total=1", st)
	}
}
