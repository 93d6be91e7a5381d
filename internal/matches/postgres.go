package matches

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore 以 PostgreSQL 保存對戰紀錄
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 使用既有連接池
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect 建立連接池並驗證連線
func Connect(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析 PostgreSQL 配置失敗: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	if minConns > 0 {
		config.MinConns = minConns
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("建立連接池失敗: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL 連線失敗: %w", err)
	}

	return pool, nil
}

const insertResult = `
INSERT INTO match_results (room_id, left_score, right_score, ticks, reason, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Save 寫入一筆紀錄
func (s *PostgresStore) Save(ctx context.Context, r Result) error {
	_, err := s.pool.Exec(ctx, insertResult,
		r.RoomID, r.Score[0], r.Score[1], r.Ticks, r.Reason, r.StartedAt, r.EndedAt)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

const selectRecent = `
SELECT room_id, left_score, right_score, ticks, reason, started_at, ended_at
FROM match_results
ORDER BY ended_at DESC, id DESC
LIMIT $1`

// Recent 返回最近結束的對戰，新的在前
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Result, error) {
	rows, err := s.pool.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query match results: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		err := row.Scan(&r.RoomID, &r.Score[0], &r.Score[1], &r.Ticks, &r.Reason, &r.StartedAt, &r.EndedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan match results: %w", err)
	}

	return results, nil
}
