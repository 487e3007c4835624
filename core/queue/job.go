package queue

import (
	"encoding/json"
	"regexp"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	jobTypeTag   = "jobtype"
	jobTypeText  = "only lowercase alphanumeric characters and hyphens are allowed"
	jobTypeRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Job is one unit of deferred work. Lower Priority means higher priority;
// jobs with equal priority run first-in-first-out. AttemptCount never exceeds
// MaxAttempts: once they meet on a failure the job is failed for good.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Priority     int             `json:"priority"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	Status       Status          `json:"status"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`     // UTC
	ScheduledFor time.Time       `json:"scheduled_for"`  // UTC
	CompletedAt  null.Time       `json:"completed_at"`   // UTC
}

// NewJob contains information needed to enqueue a Job.
// The type tag's handler is looked up at execution time, not here: handler
// registration is decoupled from enqueueing and may happen later.
type NewJob struct {
	Type         string          `json:"type" validate:"required,jobtype"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	ScheduledFor null.Time       `json:"scheduled_for"`
	MaxAttempts  int             `json:"max_attempts" validate:"omitempty,min=1"`
}

func (nj *NewJob) Validate(validate *validator.Validate) error {
	nj.Type = core.CleanString(nj.Type, true /* lower */)
	return validate.Struct(nj)
}

// InitValidators registers this package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(jobTypeTag, jobTypeValidation)
	core.RegisterCustomTranslation(validate, translator, jobTypeTag, jobTypeText)
}

func jobTypeValidation(fl validator.FieldLevel) bool {
	return jobTypeRegex.MatchString(fl.Field().String())
}
