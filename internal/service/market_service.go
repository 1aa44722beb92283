package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/coinglass"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"
)

// WhaleSource is the upstream whale data API
type WhaleSource interface {
	GetWhalePositions(ctx context.Context, address string) ([]coinglass.WhalePosition, error)
	GetWhaleAlerts(ctx context.Context, address string) ([]coinglass.WhaleAlert, error)
}

// MarketService proxies whale data for one configured wallet address
type MarketService struct {
	source    WhaleSource
	redis     *redis.Client
	snapshots repository.SnapshotStore
	address   string
	cacheTTL  time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewMarketService(source WhaleSource, redisClient *redis.Client, snapshots repository.SnapshotStore, address string, cacheTTL time.Duration, log *logger.Logger) *MarketService {
	return &MarketService{
		source:    source,
		redis:     redisClient,
		snapshots: snapshots,
		address:   address,
		cacheTTL:  cacheTTL,
		log:       log,
		now:       time.Now,
	}
}

// Address returns the tracked wallet
func (s *MarketService) Address() string {
	return s.address
}

// GetWhalePositions returns the open positions of the tracked wallet
func (s *MarketService) GetWhalePositions(ctx context.Context) ([]coinglass.WhalePosition, error) {
	if err := s.checkAddress(); err != nil {
		return nil, err
	}

	key := redis.CacheWhalePositionsKey(s.address)
	var positions []coinglass.WhalePosition
	if err := s.redis.GetJSON(ctx, key, &positions); err == nil {
		return positions, nil
	}

	positions, err := s.source.GetWhalePositions(ctx, s.address)
	if err != nil {
		return nil, s.upstreamError("whale positions", err)
	}
	if positions == nil {
		positions = []coinglass.WhalePosition{}
	}

	if err := s.redis.SetJSON(ctx, key, positions, s.cacheTTL); err != nil {
		s.log.Warnf("Failed to cache whale positions: %v", err)
	}
	return positions, nil
}

// GetWhaleAlerts returns recent large position events of the tracked wallet
func (s *MarketService) GetWhaleAlerts(ctx context.Context) ([]coinglass.WhaleAlert, error) {
	if err := s.checkAddress(); err != nil {
		return nil, err
	}

	key := redis.CacheWhaleAlertsKey(s.address)
	var alerts []coinglass.WhaleAlert
	if err := s.redis.GetJSON(ctx, key, &alerts); err == nil {
		return alerts, nil
	}

	alerts, err := s.source.GetWhaleAlerts(ctx, s.address)
	if err != nil {
		return nil, s.upstreamError("whale alerts", err)
	}
	if alerts == nil {
		alerts = []coinglass.WhaleAlert{}
	}

	if err := s.redis.SetJSON(ctx, key, alerts, s.cacheTTL); err != nil {
		s.log.Warnf("Failed to cache whale alerts: %v", err)
	}
	return alerts, nil
}

// SaveSnapshot captures the current PnL of the tracked wallet. Positions are
// fetched fresh, bypassing the cache.
func (s *MarketService) SaveSnapshot(ctx context.Context) (*model.WhalePnLSnapshot, error) {
	if err := s.checkAddress(); err != nil {
		return nil, err
	}

	positions, err := s.source.GetWhalePositions(ctx, s.address)
	if err != nil {
		return nil, s.upstreamError("whale positions", err)
	}

	snapshot := model.NewWhalePnLSnapshot(uuid.New().String(), s.address, positions, s.now())
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		s.log.WithField("address", s.address).Error("Failed to save whale snapshot", err)
		return nil, util.ErrInternalServer("Internal server error")
	}

	s.log.WithFields(map[string]interface{}{
		"address":   s.address,
		"positions": snapshot.PositionCount,
		"pnl":       snapshot.TotalUnrealizedPnL.String(),
	}).Debug("Whale snapshot saved")
	return snapshot, nil
}

// ListSnapshots returns the newest snapshots of the tracked wallet
func (s *MarketService) ListSnapshots(ctx context.Context, limit int) ([]*model.WhalePnLSnapshot, error) {
	if err := s.checkAddress(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	snapshots, err := s.snapshots.ListRecent(ctx, s.address, limit)
	if err != nil {
		s.log.WithField("address", s.address).Error("Failed to list whale snapshots", err)
		return nil, util.ErrInternalServer("Internal server error")
	}
	return snapshots, nil
}

func (s *MarketService) checkAddress() error {
	if s.address == "" {
		return util.NewAppError(http.StatusServiceUnavailable, util.ErrCodeUpstream, "Whale address is not configured")
	}
	return nil
}

func (s *MarketService) upstreamError(what string, err error) error {
	s.log.WithField("address", s.address).Error("Failed to fetch "+what, err)

	var apiErr *coinglass.APIError
	if errors.As(err, &apiErr) {
		return util.ErrUpstream(apiErr.StatusCode, "Market data provider error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return util.ErrUpstream(http.StatusGatewayTimeout, "Market data provider timed out", err)
	}
	return util.ErrUpstream(http.StatusBadGateway, "Market data provider unavailable", err)
}
