package repository

import (
	"context"
	"encoding/json"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/redis"
)

// AuditRepository stores admin actions in a sorted set scored by time
type AuditRepository struct {
	redis *redis.Client
}

func NewAuditRepository(redisClient *redis.Client) *AuditRepository {
	return &AuditRepository{
		redis: redisClient,
	}
}

// Append records an audit entry outside of a cycle transaction
func (r *AuditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	z, err := auditMember(entry)
	if err != nil {
		return err
	}
	return r.redis.ZAdd(ctx, redis.AuditLogKey(), z)
}

// ListRecent returns up to limit entries, newest first
func (r *AuditRepository) ListRecent(ctx context.Context, limit int64) ([]*model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	members, err := r.redis.ZRevRange(ctx, redis.AuditLogKey(), 0, limit-1)
	if err != nil {
		return nil, err
	}

	entries := make([]*model.AuditEntry, 0, len(members))
	for _, m := range members {
		var e model.AuditEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			continue // Skip invalid entries
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func auditMember(entry *model.AuditEntry) (redis.Z, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return redis.Z{}, err
	}
	return redis.Z{
		Score:  float64(entry.CreatedAt.UnixMilli()),
		Member: string(data),
	}, nil
}
