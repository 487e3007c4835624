package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/student"
)

// NewTestConfig returns a Config with small intervals suited to tests.
func NewTestConfig() *core.Config {
	return &core.Config{
		Debug:    true,
		TestMode: true,
		Env:      "TEST",
		Build:    "test",
		AppName:  "Ngazi",
		Queue: core.QueueConfig{
			PollInterval:       10 * time.Millisecond,
			Concurrency:        5,
			MaxAttempts:        3,
			BackoffBase:        time.Second,
			BackoffMax:         time.Minute,
			CompletedRetention: time.Hour,
			CacheWarmInterval:  time.Minute,
			CleanupInterval:    time.Minute,
			AnalyticsInterval:  time.Minute,
			MetricsInterval:    time.Minute,
		},
		Progression: core.ProgressionConfig{
			ConflictRetries: 3,
			LeaderboardSize: 10,
		},
	}
}

type testLogger struct {
	std *log.Logger
}

var _ core.Logger = (*testLogger)(nil)

// NewLogger returns a quiet core.Logger for tests.
func NewLogger() core.Logger {
	return &testLogger{std: log.New(io.Discard, "", 0)}
}

func (l testLogger) Debug(msg string, args ...interface{}) { l.std.Println(msg) }
func (l testLogger) Info(msg string, args ...interface{})  { l.std.Println(msg) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.std.Println(msg) }
func (l testLogger) Error(msg string, args ...interface{}) { l.std.Println(msg) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.std.Fatal(msg) }

func CreateStudent(t *testing.T, repo student.Repository, name, email string, isActive bool) student.Student {
	t.Helper()

	now := time.Now().UTC()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		IsActive:     isActive,
		CurrentLevel: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

func CreateRecord(t *testing.T, repo progression.Repository, ownerID string, scope null.String, level, exp int) progression.Record {
	t.Helper()

	now := time.Now().UTC()
	rec, err := repo.CreateRecord(context.Background(), progression.Record{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Scope:       scope,
		Level:       level,
		Experience:  exp,
		NextLevelAt: progression.ThresholdForLevel(level),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return rec
}
