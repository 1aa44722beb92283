package repository

import (
	"context"
	"time"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/redis"
)

// CycleRepository stores cycles, accounts and progress. Every mutation goes
// through WithUserTx so a user's balance, progress and chance slots change together.
type CycleRepository struct {
	redis   *redis.Client
	retries int
}

func NewCycleRepository(redisClient *redis.Client) *CycleRepository {
	return &CycleRepository{
		redis:   redisClient,
		retries: redis.DefaultTxRetries,
	}
}

// GetCycle loads a cycle by ID
func (r *CycleRepository) GetCycle(ctx context.Context, cycleID string) (*model.Cycle, error) {
	var c model.Cycle
	if err := r.redis.GetJSON(ctx, redis.CycleKey(cycleID), &c); err != nil {
		if err == redis.Nil {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetAccount loads the account of userID, or a zeroed one when none exists yet
func (r *CycleRepository) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	if err := r.redis.GetJSON(ctx, redis.AccountKey(userID), &a); err != nil {
		if err == redis.Nil {
			return model.NewAccount(userID), nil
		}
		return nil, err
	}
	return &a, nil
}

// GetAccounts loads accounts for several users. Users without one get a zeroed account.
func (r *CycleRepository) GetAccounts(ctx context.Context, userIDs []string) (map[string]*model.Account, error) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = redis.AccountKey(id)
	}

	var accounts []*model.Account
	if err := mgetJSON(ctx, r.redis, keys, func() interface{} {
		a := &model.Account{}
		accounts = append(accounts, a)
		return a
	}); err != nil {
		return nil, err
	}

	out := make(map[string]*model.Account, len(userIDs))
	for _, a := range accounts {
		out[a.UserID] = a
	}
	for _, id := range userIDs {
		if _, ok := out[id]; !ok {
			out[id] = model.NewAccount(id)
		}
	}
	return out, nil
}

// SaveAccount overwrites an account. Used by seeding and deposits, never by the engine.
func (r *CycleRepository) SaveAccount(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now().UTC()
	return r.redis.SetJSON(ctx, redis.AccountKey(account.UserID), account, 0)
}

// GetProgress loads the progress of userID, or empty progress when none exists yet
func (r *CycleRepository) GetProgress(ctx context.Context, userID string) (*model.Progress, error) {
	var p model.Progress
	if err := r.redis.GetJSON(ctx, redis.ProgressKey(userID), &p); err != nil {
		if err == redis.Nil {
			return model.NewProgress(userID), nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByUser returns every cycle of userID, newest first
func (r *CycleRepository) ListByUser(ctx context.Context, userID string) ([]*model.Cycle, error) {
	ids, err := r.redis.ZRevRange(ctx, redis.UserCyclesKey(userID), 0, -1)
	if err != nil {
		return nil, err
	}
	return r.getCycles(ctx, ids)
}

// ListAll returns cycles newest first, optionally restricted to one status
func (r *CycleRepository) ListAll(ctx context.Context, status model.CycleStatus) ([]*model.Cycle, error) {
	indexKey := redis.AllCyclesKey()
	if status != "" {
		indexKey = redis.CyclesByStatusKey(string(status))
	}

	ids, err := r.redis.ZRevRange(ctx, indexKey, 0, -1)
	if err != nil {
		return nil, err
	}
	return r.getCycles(ctx, ids)
}

// ListDue returns up to limit active cycles whose end date is at or before now
func (r *CycleRepository) ListDue(ctx context.Context, now time.Time, limit int64) ([]*model.Cycle, error) {
	ids, err := r.redis.ZRangeByScore(ctx, redis.ActiveByEndKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatScore(now.UnixMilli()),
		Count: limit,
	})
	if err != nil {
		return nil, err
	}
	return r.getCycles(ctx, ids)
}

func (r *CycleRepository) getCycles(ctx context.Context, ids []string) ([]*model.Cycle, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redis.CycleKey(id)
	}

	cycles := make([]*model.Cycle, 0, len(ids))
	err := mgetJSON(ctx, r.redis, keys, func() interface{} {
		c := &model.Cycle{}
		cycles = append(cycles, c)
		return c
	})
	return cycles, err
}

// WithUserTx runs fn against a consistent view of userID's account, progress and
// chance slots, then commits everything fn staged in one MULTI/EXEC. When another
// writer touches any of those keys first, fn is re-run on fresh state. fn must only
// stage writes through tx; results it hands back must be overwritten on every run.
func (r *CycleRepository) WithUserTx(ctx context.Context, userID string, fn func(tx *UserTx) error) error {
	keys := []string{
		redis.AccountKey(userID),
		redis.ProgressKey(userID),
		redis.ActiveChanceKey(userID, 1),
		redis.ActiveChanceKey(userID, 2),
	}

	return r.redis.Watch(ctx, r.retries, func(rtx *redis.Tx) error {
		utx, err := loadUserTx(ctx, rtx, userID)
		if err != nil {
			return err
		}
		if err := fn(utx); err != nil {
			return err
		}
		return utx.commit()
	}, keys...)
}
