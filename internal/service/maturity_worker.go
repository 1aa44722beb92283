package service

import (
	"context"
	"sync"
	"time"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"
)

// maturityBatch bounds how many due cycles one sweep completes
const maturityBatch = 200

// MaturityWorker completes cycles whose end date has passed.
// Only one API instance sweeps at a time; the others skip while the Redis lock is held.
type MaturityWorker struct {
	cycles   *repository.CycleRepository
	engine   *CycleService
	redis    *redis.Client
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewMaturityWorker(cycles *repository.CycleRepository, engine *CycleService, redisClient *redis.Client, interval time.Duration, log *logger.Logger) *MaturityWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaturityWorker{
		cycles:   cycles,
		engine:   engine,
		redis:    redisClient,
		interval: interval,
		log:      log,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins sweeping every interval
func (w *MaturityWorker) Start(ctx context.Context) {
	w.ticker = time.NewTicker(w.interval)
	w.wg.Add(1)
	go w.loop(ctx)
	w.log.Infof("Maturity worker started (every %s)", w.interval)
}

// Stop stops the worker and waits for an in-flight sweep
func (w *MaturityWorker) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.done)
	w.wg.Wait()
	w.log.Info("Maturity worker stopped")
}

func (w *MaturityWorker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error("Maturity sweep failed", err)
			}
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// RunOnce completes every due cycle and returns how many it completed.
// It returns 0 without error when another instance holds the sweep lock.
func (w *MaturityWorker) RunOnce(ctx context.Context) (int, error) {
	locked, err := w.redis.LockKey(ctx, redis.MaturityLockKey(), w.interval)
	if err != nil {
		return 0, err
	}
	if !locked {
		return 0, nil
	}
	defer func() {
		if err := w.redis.UnlockKey(context.WithoutCancel(ctx), redis.MaturityLockKey()); err != nil {
			w.log.Warnf("Failed to release maturity lock: %v", err)
		}
	}()

	due, err := w.cycles.ListDue(ctx, w.now(), maturityBatch)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, c := range due {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.engine.CompleteCycle(ctx, model.ActorSystem, c.ID); err != nil {
			// raced with a withdrawal or an admin completion
			if util.HasCode(err, util.ErrCodeNotFound) {
				continue
			}
			w.log.WithField("cycle_id", c.ID).Error("Failed to complete matured cycle", err)
			continue
		}
		completed++
	}

	if completed > 0 {
		w.log.Infof("Maturity sweep completed %d cycles", completed)
	}
	return completed, nil
}
