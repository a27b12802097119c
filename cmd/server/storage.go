package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/sales/internal/config"
	pgInfra "github.com/fastygo/sales/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/sales/internal/infrastructure/redis"
	"github.com/fastygo/sales/internal/services/lifecycle"
	"github.com/fastygo/sales/repository"
	boltRepo "github.com/fastygo/sales/repository/bolt"
	"github.com/fastygo/sales/repository/postgres"
	redisRepo "github.com/fastygo/sales/repository/redis"
)

type storage struct {
	sales       repository.SaleRepository
	outbox      repository.OutboxRepository
	idempotency repository.IdempotencyStore

	pool  *pgxpool.Pool
	redis *redislib.Client
	bolt  *boltRepo.Store
}

// openStorage connects the configured driver and registers a close hook for
// every connection it opens.
func openStorage(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, log *zap.Logger) (*storage, error) {
	s := &storage{}

	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		if err := pgInfra.RunMigrations(cfg, log); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		manager.Register("postgres", func(context.Context) error {
			pgInfra.Close(pool, log)
			return nil
		})
		s.pool = pool
		s.sales = postgres.NewSaleRepository(pool)
		s.outbox = postgres.NewOutboxRepository(pool)
		s.idempotency = postgres.NewIdempotencyStore(pool)

	case config.StorageDriverBolt:
		store, err := boltRepo.Open(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		manager.Register("bolt", func(context.Context) error {
			return store.Close()
		})
		s.bolt = store
		s.sales = boltRepo.NewSaleRepository(store)
		s.outbox = boltRepo.NewOutboxRepository(store)
		s.idempotency = boltRepo.NewIdempotencyStore(store)
		log.Info("bolt storage opened", zap.String("path", cfg.Storage.BoltPath))
	}

	if cfg.Idempotency.Backend == config.IdempotencyBackendRedis {
		client, err := redisInfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		manager.Register("redis", func(context.Context) error {
			return client.Close()
		})
		s.redis = client
		s.idempotency = redisRepo.NewIdempotencyStore(client, cfg.Idempotency.TTL)
	}

	return s, nil
}
