package core

import "context"

// LeaderboardEntry is one ranked row of a leaderboard, highest level first.
type LeaderboardEntry struct {
	OwnerID    string `json:"owner_id"`
	Level      int    `json:"level"`
	Experience int    `json:"experience"`
}

// Score ranks entries: level is dominant, experience breaks ties within a level.
func (e LeaderboardEntry) Score() float64 {
	return float64(e.Level)*1e9 + float64(e.Experience)
}

// CacheService is any service that can hold denormalized leaderboards for fast reads.
// scope "" refers to the global (unscoped) leaderboard.
type CacheService interface {
	// WarmLeaderboard replaces the cached leaderboard for scope with entries.
	WarmLeaderboard(ctx context.Context, scope string, entries []LeaderboardEntry) error
	// GetLeaderboard returns up to limit entries for scope, best first.
	GetLeaderboard(ctx context.Context, scope string, limit int) ([]LeaderboardEntry, error)
}
