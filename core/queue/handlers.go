package queue

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/student"
)

// Recurring maintenance job types, self-scheduled by the Scheduler.
const (
	CacheWarmingJob         = "cache-warming"
	CleanupTasksJob         = "cleanup-tasks"
	AnalyticsAggregationJob = "analytics-aggregation"
	PerformanceMetricsJob   = "performance-metrics"
)

var queueStatsVar = expvar.NewMap("queue")

// MaintenanceDeps carries the collaborators the maintenance handlers act on.
type MaintenanceDeps struct {
	Conf        *core.Config
	Logger      core.Logger
	Progression *progression.Service
	Students    *student.Service
	Cache       core.CacheService
}

// RegisterMaintenanceHandlers binds the recurring maintenance handlers and the
// leaderboard-refresh handler to q.
func RegisterMaintenanceHandlers(q *Queue, deps MaintenanceDeps) {
	h := maintenanceHandlers{q: q, deps: deps}
	q.Register(progression.LeaderboardRefreshJob, h.refreshLeaderboard)
	q.Register(CacheWarmingJob, h.warmCaches)
	q.Register(CleanupTasksJob, h.cleanup)
	q.Register(AnalyticsAggregationJob, h.aggregateAnalytics)
	q.Register(PerformanceMetricsJob, h.publishMetrics)
}

type maintenanceHandlers struct {
	q    *Queue
	deps MaintenanceDeps
}

// refreshLeaderboard recomputes the top records for the payload's scope
// (global when absent) and warms the cache with them.
func (h maintenanceHandlers) refreshLeaderboard(ctx context.Context, job Job) error {
	var payload progression.LeaderboardRefreshPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return errors.Wrap(err, "unmarshalling leaderboard-refresh payload")
		}
	}
	return h.warmScope(ctx, payload.Scope)
}

// warmCaches warms the global leaderboard and every active scope's.
func (h maintenanceHandlers) warmCaches(ctx context.Context, _ Job) error {
	if err := h.warmScope(ctx, null.String{}); err != nil {
		return err
	}
	scopes, err := h.deps.Progression.ActiveScopes(ctx)
	if err != nil {
		return errors.Wrap(err, "listing active scopes")
	}
	for _, scope := range scopes {
		if err := h.warmScope(ctx, null.StringFrom(scope)); err != nil {
			return err
		}
	}
	return nil
}

func (h maintenanceHandlers) warmScope(ctx context.Context, scope null.String) error {
	records, err := h.deps.Progression.Leaderboard(ctx, scope, h.deps.Conf.Progression.LeaderboardSize)
	if err != nil {
		return errors.Wrap(err, "listing top records")
	}
	entries := make([]core.LeaderboardEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, core.LeaderboardEntry{
			OwnerID:    rec.OwnerID,
			Level:      rec.Level,
			Experience: rec.Experience,
		})
	}
	if err := h.deps.Cache.WarmLeaderboard(ctx, scope.String, entries); err != nil {
		return errors.Wrap(err, "warming leaderboard cache")
	}
	return nil
}

// cleanup purges expired completed jobs and deactivates the records of
// deactivated students.
func (h maintenanceHandlers) cleanup(ctx context.Context, _ Job) error {
	cutoff := h.q.nowFunc().UTC().Add(-h.deps.Conf.Queue.CompletedRetention)
	if purged := h.q.PurgeCompleted(cutoff); purged > 0 {
		h.deps.Logger.Info(fmt.Sprintf("purged %d completed jobs", purged))
	}

	students, err := h.deps.Students.QueryAll(ctx)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	for _, std := range students {
		if std.IsActive {
			continue
		}
		records, err := h.deps.Progression.ListByOwner(ctx, std.ID)
		if err != nil {
			return errors.Wrapf(err, "listing records for student %s", std.ID)
		}
		for _, rec := range records {
			if !rec.IsActive {
				continue
			}
			if err := h.deps.Progression.Deactivate(ctx, rec.ID); err != nil {
				return errors.Wrapf(err, "deactivating record %s", rec.ID)
			}
		}
	}
	return nil
}

// aggregateAnalytics re-syncs the denormalized student levels from their
// global records, healing any staleness left by failed dual-writes.
func (h maintenanceHandlers) aggregateAnalytics(ctx context.Context, _ Job) error {
	students, err := h.deps.Students.QueryAll(ctx)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	for _, std := range students {
		rec, err := h.deps.Progression.GetRecord(ctx, std.ID, null.String{})
		if err != nil {
			if errors.Cause(err) == progression.ErrRecordNotFound {
				continue
			}
			return errors.Wrapf(err, "getting global record for student %s", std.ID)
		}
		if rec.Level == std.CurrentLevel {
			continue
		}
		if err := h.deps.Students.SetCurrentLevel(ctx, std.ID, rec.Level); err != nil {
			return errors.Wrapf(err, "syncing level for student %s", std.ID)
		}
	}
	return nil
}

// publishMetrics surfaces queue stats under /debug/vars and logs a snapshot.
func (h maintenanceHandlers) publishMetrics(_ context.Context, _ Job) error {
	st := h.q.Stats()
	setStatVar("pending", int64(st.Pending))
	setStatVar("processing", int64(st.Processing))
	setStatVar("completed", int64(st.Completed))
	setStatVar("failed", int64(st.Failed))
	setStatVar("completed_total", st.CompletedTotal)
	setStatVar("failed_total", st.FailedTotal)
	setStatVar("attempts_total", st.AttemptsTotal)

	h.deps.Logger.Info("queue stats: " +
		"pending=" + strconv.Itoa(st.Pending) +
		" processing=" + strconv.Itoa(st.Processing) +
		" completed=" + strconv.Itoa(st.Completed) +
		" failed=" + strconv.Itoa(st.Failed))
	return nil
}

func setStatVar(name string, val int64) {
	v := new(expvar.Int)
	v.Set(val)
	queueStatsVar.Set(name, v)
}
