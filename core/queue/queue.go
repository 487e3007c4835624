package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
)

var (
	// errors
	ErrJobNotFound    = errors.New("job not found")
	ErrUnknownJobType = errors.New("no handler registered for job type")

	errInvalidJobType = errors.New("invalid job type")
)

// Handler executes one job attempt. A returned error (or a panic, which is
// recovered) counts as a failed attempt. Handlers own their timeout discipline:
// the queue does not cancel a handler that never returns, it only loses one
// concurrency slot to it.
type Handler func(ctx context.Context, job Job) error

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	// monotonic counters since startup
	CompletedTotal int64 `json:"completed_total"`
	FailedTotal    int64 `json:"failed_total"`
	AttemptsTotal  int64 `json:"attempts_total"`
}

// Queue is an in-process job queue with priority scheduling, bounded
// concurrency and exponential retry backoff. Jobs only live in memory:
// completed ones are retained briefly, failed ones until process exit.
//
// A Queue is created once at service startup and injected where needed;
// admission only happens on Tick, normally driven by a Scheduler.
type Queue struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	handlers map[string]Handler
	active   int

	completedTotal int64
	failedTotal    int64
	attemptsTotal  int64

	conf     *core.Config
	logger   core.Logger
	mailSvc  core.EmailService // dead-letter alerts; may be nil
	opsEmail mail.Address

	nowFunc func() time.Time // mockable
	wg      sync.WaitGroup
}

func New(conf *core.Config, logger core.Logger, mailSvc core.EmailService) *Queue {
	return &Queue{
		jobs:     make(map[string]*Job),
		handlers: make(map[string]Handler),
		conf:     conf,
		logger:   logger,
		mailSvc:  mailSvc,
		opsEmail: conf.Email.OpsEmail,
		nowFunc:  time.Now,
	}
}

// Register binds a handler to a job type. Jobs of an unregistered type fail
// their attempts at execution time, not at enqueue time.
func (q *Queue) Register(jobType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Enqueue admits a new pending job and returns it.
func (q *Queue) Enqueue(nj NewJob) (Job, error) {
	nj.Type = core.CleanString(nj.Type, true /* lower */)
	if !jobTypeRegex.MatchString(nj.Type) {
		return Job{}, core.NewValidationError(
			errInvalidJobType, core.FieldError{Field: "type", Error: jobTypeText})
	}

	now := q.nowFunc().UTC()
	scheduledFor := now
	if nj.ScheduledFor.Valid {
		scheduledFor = nj.ScheduledFor.Time.UTC()
	}
	maxAttempts := nj.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.conf.Queue.MaxAttempts
	}

	job := Job{
		ID:           uuid.New().String(),
		Type:         nj.Type,
		Payload:      nj.Payload,
		Priority:     nj.Priority,
		MaxAttempts:  maxAttempts,
		Status:       StatusPending,
		CreatedAt:    now,
		ScheduledFor: scheduledFor,
	}

	q.mu.Lock()
	q.jobs[job.ID] = &job
	q.mu.Unlock()
	return job, nil
}

// EnqueueJob is a convenience wrapper marshalling payload to JSON.
// It satisfies progression.JobEnqueuer.
func (q *Queue) EnqueueJob(jobType string, payload interface{}, priority int) error {
	var data json.RawMessage
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return errors.Wrap(err, "marshalling job payload")
		}
	}
	_, err := q.Enqueue(NewJob{Type: jobType, Payload: data, Priority: priority})
	return err
}

func (q *Queue) GetJob(id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[id]; ok {
		return *job, nil
	}
	return Job{}, ErrJobNotFound
}

// ListJobs returns jobs filtered by status (all when none given), oldest first.
func (q *Queue) ListJobs(statuses ...Status) []Job {
	q.mu.Lock()
	jobs := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if len(statuses) > 0 && !statusIn(job.Status, statuses) {
			continue
		}
		jobs = append(jobs, *job)
	}
	q.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Stats{
		CompletedTotal: q.completedTotal,
		FailedTotal:    q.failedTotal,
		AttemptsTotal:  q.attemptsTotal,
	}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			st.Pending++
		case StatusProcessing:
			st.Processing++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		}
	}
	return st
}

// Tick scans due pending jobs and admits up to the remaining concurrency
// budget in (priority ASC, created ASC) order. A saturated tick admits nothing
// and is simply skipped. Admitted jobs all start concurrently; their completion
// order is unconstrained. Returns the number of jobs admitted.
func (q *Queue) Tick(now time.Time) int {
	q.mu.Lock()

	budget := q.conf.Queue.Concurrency - q.active
	if budget <= 0 {
		q.mu.Unlock()
		return 0
	}

	due := make([]*Job, 0)
	for _, job := range q.jobs {
		if job.Status == StatusPending && !job.ScheduledFor.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if len(due) > budget {
		due = due[:budget]
	}
	for _, job := range due {
		job.Status = StatusProcessing
		q.active++
		q.wg.Add(1)
		go q.runJob(job.ID)
	}
	q.mu.Unlock()
	return len(due)
}

// Wait blocks until all in-flight jobs have settled.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// PurgeCompleted drops completed jobs that settled at or before cutoff.
func (q *Queue) PurgeCompleted(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var purged int
	for id, job := range q.jobs {
		if job.Status == StatusCompleted && job.CompletedAt.Valid && !job.CompletedAt.Time.After(cutoff) {
			delete(q.jobs, id)
			purged++
		}
	}
	return purged
}

func (q *Queue) runJob(id string) {
	defer q.wg.Done()

	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.active--
		q.mu.Unlock()
		return
	}
	handler, registered := q.handlers[job.Type]
	jobCopy := *job
	q.mu.Unlock()

	var err error
	if !registered {
		err = errors.Wrapf(ErrUnknownJobType, "%q", jobCopy.Type)
	} else {
		err = runHandler(context.Background(), handler, jobCopy)
	}

	q.mu.Lock()
	q.active--
	q.attemptsTotal++
	job.AttemptCount++

	if err == nil {
		job.Status = StatusCompleted
		job.LastError = ""
		job.CompletedAt = null.TimeFrom(q.nowFunc().UTC())
		q.completedTotal++
		q.mu.Unlock()
		return
	}

	job.LastError = err.Error()
	if job.AttemptCount >= job.MaxAttempts {
		job.Status = StatusFailed
		q.failedTotal++
		failedCopy := *job
		q.mu.Unlock()

		q.logger.Error(fmt.Sprintf("job %s (%s) failed permanently after %d attempts: %v",
			failedCopy.ID, failedCopy.Type, failedCopy.AttemptCount, err), err)
		q.sendDeadLetterAlert(failedCopy)
		return
	}

	// retry with exponential backoff: base * 2^attemptCount, capped
	job.Status = StatusPending
	job.ScheduledFor = q.nowFunc().UTC().Add(q.backoff(job.AttemptCount))
	attemptCopy := *job
	q.mu.Unlock()

	q.logger.Warn(fmt.Sprintf("job %s (%s) attempt %d/%d failed, retrying at %s: %v",
		attemptCopy.ID, attemptCopy.Type, attemptCopy.AttemptCount, attemptCopy.MaxAttempts,
		attemptCopy.ScheduledFor.Format(time.RFC3339), err), err)
}

func (q *Queue) backoff(attempts int) time.Duration {
	d := q.conf.Queue.BackoffBase << uint(attempts)
	if max := q.conf.Queue.BackoffMax; d > max {
		d = max
	}
	return d
}

// sendDeadLetterAlert notifies ops of a permanently failed job.
func (q *Queue) sendDeadLetterAlert(job Job) {
	if q.mailSvc == nil {
		return
	}
	q.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{q.opsEmail},
		Subject:      fmt.Sprintf("Job failed: %s", job.Type),
		TemplateName: "job-failed",
		TemplateData: job,
	})
}

// runHandler executes one attempt, converting a panic into an error so that
// one job's failure never takes down its siblings.
func runHandler(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func statusIn(s Status, statuses []Status) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
