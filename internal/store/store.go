package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// Store defines the contract for caching and persisting activation results.
type Store interface {
	SaveResult(ctx context.Context, result *model.ActivationResult) error
	LastResult(ctx context.Context, kind model.Kind, identifier string) (*model.ActivationResult, error)
	RecordRunFailure(ctx context.Context, kind model.Kind, account, phase, cause string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis     *redis.Client
	PG        *pgxpool.Pool
	logger    *zap.Logger
	resultTTL time.Duration
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store. Redis holds the
// latest result per account for fast API reads, Postgres keeps run history.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, resultTTL time.Duration, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger, resultTTL: resultTTL}, nil
}

func resultKey(kind model.Kind, identifier string) string {
	return fmt.Sprintf("loyalty:result:%s:%s", kind, identifier)
}

// SaveResult caches the result in Redis as the account's latest run and
// appends an immutable row to loyalty.activation_run. A Postgres failure does
// not fail the save as long as the cache write succeeded.
func (s *HybridStore) SaveResult(ctx context.Context, result *model.ActivationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, resultKey(result.Kind, result.Account), data, s.resultTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	if s.PG == nil {
		return nil
	}
	outcomes, err := json.Marshal(result.Outcomes)
	if err != nil {
		return err
	}
	_, err = s.PG.Exec(ctx, `
		INSERT INTO loyalty.activation_run (
			run_id, provider, account,
			activated, skipped, errored,
			points, expiring_points, next_expiry,
			outcomes, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, result.RunID, string(result.Kind), result.Account,
		result.Activated, result.Skipped, result.Errored,
		result.Balance.Points, result.Balance.ExpiringPoints, result.Balance.NextExpiry,
		outcomes, result.StartedAt, result.FinishedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_run_failed", zap.Error(err))
	}
	return nil
}

// LastResult returns the most recent cached result for the account, or nil
// when none is cached.
func (s *HybridStore) LastResult(ctx context.Context, kind model.Kind, identifier string) (*model.ActivationResult, error) {
	data, err := s.redis.Get(ctx, resultKey(kind, identifier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var result model.ActivationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordRunFailure appends a whole-run failure to loyalty.activation_failure.
func (s *HybridStore) RecordRunFailure(ctx context.Context, kind model.Kind, account, phase, cause string) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO loyalty.activation_failure (provider, account, phase, cause, failed_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, string(kind), account, phase, cause)
	if err != nil {
		s.logger.Error("store.pg.insert_failure_failed", zap.Error(err))
	}
	return err
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
