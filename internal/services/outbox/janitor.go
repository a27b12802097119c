package outbox

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/sales/repository"
)

// JanitorConfig controls housekeeping of the outbox and idempotency records.
type JanitorConfig struct {
	Schedule  string
	Retention time.Duration
	Timeout   time.Duration
}

// Janitor periodically removes processed outbox records past retention and
// expired idempotency records.
type Janitor struct {
	outbox      repository.OutboxRepository
	idempotency repository.IdempotencyStore
	cfg         JanitorConfig
	logger      *zap.Logger
	cron        *cron.Cron
	now         func() time.Time
}

func NewJanitor(outbox repository.OutboxRepository, idempotency repository.IdempotencyStore, cfg JanitorConfig, logger *zap.Logger) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Janitor{
		outbox:      outbox,
		idempotency: idempotency,
		cfg:         cfg,
		logger:      logger,
		cron:        cron.New(),
		now:         time.Now,
	}

	if _, err := j.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		j.Sweep(ctx)
	}); err != nil {
		return nil, err
	}
	return j, nil
}

// Start launches the cron scheduler.
func (j *Janitor) Start() {
	if j == nil || j.cron == nil {
		return
	}
	j.cron.Start()
	j.logger.Info("outbox janitor started", zap.String("schedule", j.cfg.Schedule))
}

// Stop waits for a running sweep or for ctx, whichever ends first.
func (j *Janitor) Stop(ctx context.Context) error {
	if j == nil || j.cron == nil {
		return nil
	}
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	j.logger.Info("outbox janitor stopped")
	return nil
}

// Sweep runs one housekeeping pass. Failures are logged and retried on the next tick.
func (j *Janitor) Sweep(ctx context.Context) {
	now := j.now()

	if j.outbox != nil {
		purged, err := j.outbox.PurgeProcessed(ctx, now.Add(-j.cfg.Retention))
		if err != nil {
			j.logger.Error("failed to purge processed outbox records", zap.Error(err))
		} else if purged > 0 {
			j.logger.Info("processed outbox records purged", zap.Int("count", purged))
		}
	}

	if j.idempotency != nil {
		purged, err := j.idempotency.PurgeExpired(ctx, now)
		if err != nil {
			j.logger.Error("failed to purge expired idempotency records", zap.Error(err))
		} else if purged > 0 {
			j.logger.Info("expired idempotency records purged", zap.Int("count", purged))
		}
	}
}
