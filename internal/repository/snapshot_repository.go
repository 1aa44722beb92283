package repository

import (
	"context"
	"encoding/json"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/redis"
)

// SnapshotStore persists whale PnL snapshots
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *model.WhalePnLSnapshot) error
	ListRecent(ctx context.Context, address string, limit int) ([]*model.WhalePnLSnapshot, error)
}

// maxRedisSnapshots caps the per-address sorted set
const maxRedisSnapshots = 2000

// RedisSnapshotStore keeps snapshots in a per-address sorted set scored by capture time
type RedisSnapshotStore struct {
	redis *redis.Client
}

func NewRedisSnapshotStore(redisClient *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		redis: redisClient,
	}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snapshot *model.WhalePnLSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	key := redis.WhaleSnapshotsKey(snapshot.Address)
	if err := s.redis.ZAdd(ctx, key, redis.Z{
		Score:  float64(snapshot.CapturedAt.UnixMilli()),
		Member: string(data),
	}); err != nil {
		return err
	}

	// Drop the oldest entries beyond the cap
	return s.redis.ZRemRangeByRank(ctx, key, 0, -maxRedisSnapshots-1)
}

func (s *RedisSnapshotStore) ListRecent(ctx context.Context, address string, limit int) ([]*model.WhalePnLSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	members, err := s.redis.ZRevRange(ctx, redis.WhaleSnapshotsKey(address), 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}

	out := make([]*model.WhalePnLSnapshot, 0, len(members))
	for _, m := range members {
		var snap model.WhalePnLSnapshot
		if err := json.Unmarshal([]byte(m), &snap); err != nil {
			continue // Skip invalid entries
		}
		out = append(out, &snap)
	}
	return out, nil
}
