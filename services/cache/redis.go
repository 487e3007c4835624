package cachesvc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/ngazi/core"
)

const globalKey = "leaderboard:global"

type redisService struct {
	rdb *redis.Client
}

var _ core.CacheService = (*redisService)(nil)

func NewRedisService(conf *core.Config) *redisService {
	return &redisService{
		rdb: redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		}),
	}
}

func leaderboardKey(scope string) string {
	if scope == "" {
		return globalKey
	}
	return "leaderboard:scope:" + scope
}

func (svc *redisService) WarmLeaderboard(ctx context.Context, scope string, entries []core.LeaderboardEntry) error {
	key := leaderboardKey(scope)

	members := make([]redis.Z, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return errors.Wrap(err, "marshalling leaderboard entry")
		}
		members = append(members, redis.Z{Score: entry.Score(), Member: string(data)})
	}

	// replace atomically so readers never see a half-warmed board
	pipe := svc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "warming leaderboard")
	}
	return nil
}

func (svc *redisService) GetLeaderboard(ctx context.Context, scope string, limit int) ([]core.LeaderboardEntry, error) {
	members, err := svc.rdb.ZRevRange(ctx, leaderboardKey(scope), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading leaderboard")
	}

	entries := make([]core.LeaderboardEntry, 0, len(members))
	for _, member := range members {
		var entry core.LeaderboardEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			return nil, errors.Wrap(err, "unmarshalling leaderboard entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
