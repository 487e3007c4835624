package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
)

var (
	// errors
	ErrRecordNotFound = errors.New("progression record not found")
	ErrConflict       = errors.New("progression record was modified concurrently")

	errNegativeDelta = errors.New("experience delta cannot be negative")
)

type (
	Repository interface {
		// GetRecord returns the active record for (ownerID, scope); ErrRecordNotFound when absent.
		GetRecord(ctx context.Context, ownerID string, scope null.String) (Record, error)
		GetRecordByID(ctx context.Context, id string) (Record, error)
		// CreateRecord inserts rec; ErrConflict when an active record already
		// exists for the same (owner, scope) pair.
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		// UpdateRecord persists rec if its Version still matches the stored one;
		// ErrConflict on a stale version.
		UpdateRecord(ctx context.Context, rec Record) (Record, error)
		ListOwnerRecords(ctx context.Context, ownerID string) ([]Record, error)
		// ListTopRecords returns up to limit active records for scope, ordered by
		// (level DESC, experience DESC).
		ListTopRecords(ctx context.Context, scope null.String, limit int) ([]Record, error)
		// ListActiveScopes returns the distinct non-null scopes with active records.
		ListActiveScopes(ctx context.Context) ([]string, error)
		DeactivateRecord(ctx context.Context, id string) error
	}

	// ProfileUpdater denormalizes the current global level onto the owner's profile.
	ProfileUpdater interface {
		SetCurrentLevel(ctx context.Context, ownerID string, level int) error
	}

	// JobEnqueuer defers recomputation of dependent aggregates.
	JobEnqueuer interface {
		EnqueueJob(jobType string, payload interface{}, priority int) error
	}

	Service struct {
		repo     Repository
		profiles ProfileUpdater
		jobs     JobEnqueuer
		logger   core.Logger
		conf     *core.Config
	}
)

// LeaderboardRefreshPayload is the payload of a LeaderboardRefreshJob.
type LeaderboardRefreshPayload struct {
	Scope null.String `json:"scope"`
}

func NewService(repo Repository, profiles ProfileUpdater, jobs JobEnqueuer, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		jobs:     jobs,
		logger:   logger,
		conf:     conf,
	}
}

// AddExperience applies a non-negative experience delta to the record for
// (ownerID, scope), creating it lazily at level 1 when absent. Awards that
// cross one or more thresholds roll into higher levels in a single call.
// Concurrent awards to the same record are serialized with an optimistic
// version check; a stale write is re-read and retried a bounded number of
// times before ErrConflict surfaces.
func (svc *Service) AddExperience(ctx context.Context, ownerID string, scope null.String, delta int) (AwardResult, error) {
	if delta < 0 {
		return AwardResult{}, core.NewValidationError(
			errNegativeDelta, core.FieldError{Field: "delta", Error: errNegativeDelta.Error()})
	}
	ownerID = core.CleanString(ownerID)

	var res AwardResult
	for attempt := 0; ; attempt++ {
		rec, created, err := svc.getOrNewRecord(ctx, ownerID, scope)
		if err != nil {
			return AwardResult{}, err
		}

		res = applyAward(rec, delta)

		if created {
			res.Record, err = svc.repo.CreateRecord(ctx, res.Record)
		} else {
			res.Record, err = svc.repo.UpdateRecord(ctx, res.Record)
		}
		if err != nil {
			if errors.Cause(err) == ErrConflict && attempt < svc.conf.Progression.ConflictRetries {
				continue // lost the race; re-read and re-apply
			}
			return AwardResult{}, errors.Wrap(err, "persisting record")
		}
		break
	}

	if res.LeveledUp && res.Record.IsGlobal() {
		svc.denormalizeLevel(ctx, res.Record)
	}
	return res, nil
}

func (svc *Service) getOrNewRecord(ctx context.Context, ownerID string, scope null.String) (rec Record, created bool, err error) {
	rec, err = svc.repo.GetRecord(ctx, ownerID, scope)
	if err == nil {
		return rec, false, nil
	}
	if errors.Cause(err) != ErrRecordNotFound {
		return Record{}, false, errors.Wrap(err, "getting record")
	}

	now := time.Now().UTC()
	return Record{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Scope:       scope,
		Level:       1,
		Experience:  0,
		NextLevelAt: ThresholdForLevel(1),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, true, nil
}

// denormalizeLevel dual-writes the new global level onto the owner's profile and
// schedules a leaderboard refresh. The profile is a derived cache: failures here
// are tolerated staleness (healed by the analytics-aggregation job), never fatal.
func (svc *Service) denormalizeLevel(ctx context.Context, rec Record) {
	if svc.profiles != nil {
		if err := svc.profiles.SetCurrentLevel(ctx, rec.OwnerID, rec.Level); err != nil {
			svc.logger.Warn(fmt.Sprintf("denormalizing level for owner %s: %v", rec.OwnerID, err), err)
		}
	}
	if svc.jobs != nil {
		if err := svc.jobs.EnqueueJob(LeaderboardRefreshJob, LeaderboardRefreshPayload{}, 1); err != nil {
			svc.logger.Warn(fmt.Sprintf("enqueueing leaderboard refresh: %v", err), err)
		}
	}
}

func (svc *Service) GetRecord(ctx context.Context, ownerID string, scope null.String) (Record, error) {
	return svc.repo.GetRecord(ctx, core.CleanString(ownerID), scope)
}

func (svc *Service) GetRecordByID(ctx context.Context, id string) (Record, error) {
	return svc.repo.GetRecordByID(ctx, id)
}

func (svc *Service) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return svc.repo.ListOwnerRecords(ctx, core.CleanString(ownerID))
}

// Leaderboard returns the top active records for scope, best first.
func (svc *Service) Leaderboard(ctx context.Context, scope null.String, limit int) ([]Record, error) {
	if limit <= 0 || limit > svc.conf.Progression.LeaderboardSize {
		limit = svc.conf.Progression.LeaderboardSize
	}
	return svc.repo.ListTopRecords(ctx, scope, limit)
}

func (svc *Service) ActiveScopes(ctx context.Context) ([]string, error) {
	return svc.repo.ListActiveScopes(ctx)
}

// Deactivate retires a record. Records are never hard-deleted.
func (svc *Service) Deactivate(ctx context.Context, id string) error {
	return svc.repo.DeactivateRecord(ctx, id)
}

// applyAward rolls delta into rec, consuming as many thresholds as it crosses.
func applyAward(rec Record, delta int) AwardResult {
	prev := rec.Level
	rec.Experience += delta
	for rec.Experience >= rec.NextLevelAt {
		rec.Experience -= rec.NextLevelAt
		rec.Level++
		rec.NextLevelAt = ThresholdForLevel(rec.Level)
	}
	rec.UpdatedAt = time.Now().UTC()
	return AwardResult{Record: rec, LeveledUp: rec.Level > prev, PreviousLevel: prev}
}
