package repository

import (
	"context"
	"strconv"
	"time"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/redis"
)

// UserTx is one attempt of an optimistic transaction over a single user.
// Reads go through the watched connection; writes are staged until commit.
type UserTx struct {
	ctx    context.Context
	tx     *redis.Tx
	userID string

	Account  *model.Account
	Progress *model.Progress

	activeIDs map[int]string
	loaded    map[string]model.CycleStatus // cycle ID -> status when read

	dirtyAccount  bool
	dirtyProgress bool
	cycles        []*model.Cycle
	audit         []*model.AuditEntry
}

func loadUserTx(ctx context.Context, tx *redis.Tx, userID string) (*UserTx, error) {
	u := &UserTx{
		ctx:       ctx,
		tx:        tx,
		userID:    userID,
		activeIDs: make(map[int]string, 2),
		loaded:    make(map[string]model.CycleStatus),
	}

	account := &model.Account{}
	found, err := redis.TxGetJSON(ctx, tx, redis.AccountKey(userID), account)
	if err != nil {
		return nil, err
	}
	if !found {
		account = model.NewAccount(userID)
	}
	u.Account = account

	progress := &model.Progress{}
	found, err = redis.TxGetJSON(ctx, tx, redis.ProgressKey(userID), progress)
	if err != nil {
		return nil, err
	}
	if !found {
		progress = model.NewProgress(userID)
	}
	u.Progress = progress

	for chance := 1; chance <= 2; chance++ {
		id, err := tx.Get(ctx, redis.ActiveChanceKey(userID, chance)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		u.activeIDs[chance] = id
	}

	return u, nil
}

// ActiveCycleID returns the cycle occupying chance, if any
func (u *UserTx) ActiveCycleID(chance int) (string, bool) {
	id, ok := u.activeIDs[chance]
	return id, ok
}

// Cycle watches and loads a cycle. Cycles of other users are reported as not found.
func (u *UserTx) Cycle(cycleID string) (*model.Cycle, error) {
	key := redis.CycleKey(cycleID)
	if err := u.tx.Watch(u.ctx, key).Err(); err != nil {
		return nil, err
	}

	c := &model.Cycle{}
	found, err := redis.TxGetJSON(u.ctx, u.tx, key, c)
	if err != nil {
		return nil, err
	}
	if !found || c.UserID != u.userID {
		return nil, ErrCycleNotFound
	}

	u.loaded[c.ID] = c.Status
	return c, nil
}

// SaveAccount stages the account
func (u *UserTx) SaveAccount() {
	u.Account.UpdatedAt = time.Now().UTC()
	u.dirtyAccount = true
}

// SaveProgress stages the progress
func (u *UserTx) SaveProgress() {
	u.Progress.UpdatedAt = time.Now().UTC()
	u.dirtyProgress = true
}

// SaveCycle stages a new or modified cycle. Index and chance-slot maintenance
// follows from the cycle's status.
func (u *UserTx) SaveCycle(c *model.Cycle) {
	c.UpdatedAt = time.Now().UTC()
	u.cycles = append(u.cycles, c)
}

// AppendAudit stages an audit entry in the same commit
func (u *UserTx) AppendAudit(entry *model.AuditEntry) {
	u.audit = append(u.audit, entry)
}

func (u *UserTx) commit() error {
	ctx := u.ctx
	_, err := u.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if u.dirtyAccount {
			if err := redis.PipeSetJSON(ctx, pipe, redis.AccountKey(u.userID), u.Account, 0); err != nil {
				return err
			}
		}
		if u.dirtyProgress {
			if err := redis.PipeSetJSON(ctx, pipe, redis.ProgressKey(u.userID), u.Progress, 0); err != nil {
				return err
			}
		}

		for _, c := range u.cycles {
			if err := u.stageCycle(pipe, c); err != nil {
				return err
			}
		}

		for _, e := range u.audit {
			z, err := auditMember(e)
			if err != nil {
				return err
			}
			pipe.ZAdd(ctx, redis.AuditLogKey(), z)
		}
		return nil
	})
	return err
}

func (u *UserTx) stageCycle(pipe redis.Pipeliner, c *model.Cycle) error {
	ctx := u.ctx
	if err := redis.PipeSetJSON(ctx, pipe, redis.CycleKey(c.ID), c, 0); err != nil {
		return err
	}

	created := float64(c.CreatedAt.UnixMilli())
	prev, existed := u.loaded[c.ID]
	if !existed {
		pipe.ZAdd(ctx, redis.UserCyclesKey(c.UserID), redis.Z{Score: created, Member: c.ID})
		pipe.ZAdd(ctx, redis.AllCyclesKey(), redis.Z{Score: created, Member: c.ID})
	}
	if existed && prev != c.Status {
		pipe.ZRem(ctx, redis.CyclesByStatusKey(string(prev)), c.ID)
	}
	pipe.ZAdd(ctx, redis.CyclesByStatusKey(string(c.Status)), redis.Z{Score: created, Member: c.ID})

	chanceKey := redis.ActiveChanceKey(c.UserID, c.ChanceNumber)
	if c.IsActive() {
		pipe.Set(ctx, chanceKey, c.ID, 0)
		pipe.ZAdd(ctx, redis.ActiveByEndKey(), redis.Z{Score: float64(c.EndDate.UnixMilli()), Member: c.ID})
		return nil
	}

	if u.activeIDs[c.ChanceNumber] == c.ID {
		pipe.Del(ctx, chanceKey)
	}
	pipe.ZRem(ctx, redis.ActiveByEndKey(), c.ID)
	return nil
}

func formatScore(v int64) string {
	return strconv.FormatInt(v, 10)
}
