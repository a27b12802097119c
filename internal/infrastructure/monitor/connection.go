package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/sales/repository"
	"github.com/fastygo/sales/repository/bolt"
)

// Dependencies lists what the monitor checks. Nil entries are skipped.
type Dependencies struct {
	Postgres *pgxpool.Pool
	Redis    *redislib.Client
	Bolt     *bolt.Store
	Outbox   repository.OutboxRepository
}

type Monitor struct {
	deps Dependencies

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
	now      func() time.Time
}

func New(deps Dependencies, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		deps:     deps,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
		now:      time.Now,
	}
}

func (m *Monitor) Start() {
	m.refresh()
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether every configured storage dependency answered the last check.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	now := m.now()
	status := Status{
		PostgreSQL: m.checkPostgres(),
		Redis:      m.checkRedis(),
		Bolt:       m.checkBolt(),
		Outbox:     m.checkOutbox(now),
		LastCheck:  now,
	}
	if !status.healthy() {
		m.logger.Warn("dependency check failed", zap.Any("status", status))
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Monitor) checkPostgres() *bool {
	if m.deps.Postgres == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ok := m.deps.Postgres.Ping(ctx) == nil
	return &ok
}

func (m *Monitor) checkRedis() *bool {
	if m.deps.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok := m.deps.Redis.Ping(ctx).Err() == nil
	return &ok
}

func (m *Monitor) checkBolt() *bool {
	if m.deps.Bolt == nil {
		return nil
	}
	ok := m.deps.Bolt.Ping() == nil
	return &ok
}

func (m *Monitor) checkOutbox(now time.Time) OutboxStatus {
	if m.deps.Outbox == nil {
		return OutboxStatus{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stats, err := m.deps.Outbox.Stats(ctx)
	if err != nil {
		m.logger.Warn("outbox stats check failed", zap.Error(err))
		return OutboxStatus{}
	}
	status := OutboxStatus{
		Available: true,
		Pending:   stats.Pending,
		Failed:    stats.Failed,
		Processed: stats.Processed,
	}
	if stats.OldestPending != nil {
		status.OldestPendingAge = now.Sub(*stats.OldestPending).Seconds()
	}
	return status
}
