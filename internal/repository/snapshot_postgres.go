package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"whalecycle/backend/internal/model"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS whale_pnl_snapshots (
	id                   TEXT PRIMARY KEY,
	address              TEXT NOT NULL,
	total_unrealized_pnl NUMERIC(20, 2) NOT NULL,
	total_position_value NUMERIC(20, 2) NOT NULL,
	position_count       INTEGER NOT NULL,
	captured_at          TIMESTAMPTZ NOT NULL,
	positions            JSONB NOT NULL DEFAULT '[]'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_whale_pnl_snapshots_address_time
	ON whale_pnl_snapshots (address, captured_at DESC);
`

// PostgresSnapshotStore keeps snapshots in PostgreSQL
type PostgresSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSnapshotStore connects to connString and makes sure the table exists
func NewPostgresSnapshotStore(ctx context.Context, connString string) (*PostgresSnapshotStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createSnapshotsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return &PostgresSnapshotStore{pool: pool}, nil
}

// Ping checks the pool for the health endpoint
func (s *PostgresSnapshotStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresSnapshotStore) Close() {
	s.pool.Close()
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, snapshot *model.WhalePnLSnapshot) error {
	positions, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO whale_pnl_snapshots
			(id, address, total_unrealized_pnl, total_position_value, position_count, captured_at, positions)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7::jsonb)`,
		snapshot.ID,
		strings.ToLower(snapshot.Address),
		snapshot.TotalUnrealizedPnL.String(),
		snapshot.TotalPositionValue.String(),
		snapshot.PositionCount,
		snapshot.CapturedAt,
		string(positions),
	)
	return err
}

func (s *PostgresSnapshotStore) ListRecent(ctx context.Context, address string, limit int) ([]*model.WhalePnLSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, address, total_unrealized_pnl::text, total_position_value::text,
		       position_count, captured_at, positions::text
		FROM whale_pnl_snapshots
		WHERE address = $1
		ORDER BY captured_at DESC
		LIMIT $2`, strings.ToLower(address), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WhalePnLSnapshot
	for rows.Next() {
		var (
			snap            model.WhalePnLSnapshot
			pnl, value, pos string
		)
		if err := rows.Scan(&snap.ID, &snap.Address, &pnl, &value, &snap.PositionCount, &snap.CapturedAt, &pos); err != nil {
			return nil, err
		}
		if snap.TotalUnrealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, err
		}
		if snap.TotalPositionValue, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pos), &snap.Positions); err != nil {
			return nil, err
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}
