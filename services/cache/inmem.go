package cachesvc

import (
	"context"
	"sync"

	"github.com/trezcool/ngazi/core"
)

// inMemService keeps leaderboards in process memory; used by tests and local dev.
type inMemService struct {
	mutex  sync.RWMutex
	boards map[string][]core.LeaderboardEntry
}

var _ core.CacheService = (*inMemService)(nil)

func NewInMemService() *inMemService {
	return &inMemService{boards: make(map[string][]core.LeaderboardEntry)}
}

func (svc *inMemService) WarmLeaderboard(_ context.Context, scope string, entries []core.LeaderboardEntry) error {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	board := make([]core.LeaderboardEntry, len(entries))
	copy(board, entries)
	svc.boards[leaderboardKey(scope)] = board
	return nil
}

func (svc *inMemService) GetLeaderboard(_ context.Context, scope string, limit int) ([]core.LeaderboardEntry, error) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	board := svc.boards[leaderboardKey(scope)]
	if len(board) > limit {
		board = board[:limit]
	}
	entries := make([]core.LeaderboardEntry, len(board))
	copy(entries, board)
	return entries, nil
}
