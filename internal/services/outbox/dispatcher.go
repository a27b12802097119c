package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

// Subscriber reacts to a dispatched event. Handle must be idempotent: a record is
// delivered again whenever any subscriber failed on it.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, evt domain.Event) error
}

// Config controls how the outbox is drained.
type Config struct {
	BatchSize     int
	MaxRetries    int
	PollInterval  time.Duration
	ErrorCooldown time.Duration
}

// BatchResult counts what happened to the records of one batch.
type BatchResult struct {
	Fetched   int
	Processed int
	Failed    int
	Rejected  int
}

// Dispatcher polls the outbox and fans events out to subscribers.
type Dispatcher struct {
	outbox      repository.OutboxRepository
	subscribers []Subscriber
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time

	running  atomic.Bool
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(outbox repository.OutboxRepository, subscribers []Subscriber, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		outbox:      outbox,
		subscribers: subscribers,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		stopped:     make(chan struct{}),
	}
}

// Run drains the outbox until ctx is cancelled. A batch in flight always runs to
// completion; cancellation is observed while sleeping between batches.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.running.Store(true)
	defer d.stopOnce.Do(func() { close(d.stopped) })

	d.logger.Info("outbox dispatcher started",
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Int("max_retries", d.cfg.MaxRetries),
		zap.Duration("poll_interval", d.cfg.PollInterval),
	)

	for {
		if ctx.Err() != nil {
			break
		}

		wait := d.cfg.PollInterval
		if _, err := d.ProcessBatch(context.WithoutCancel(ctx)); err != nil {
			d.logger.Error("outbox batch failed", zap.Error(err), zap.Duration("cooldown", d.cfg.ErrorCooldown))
			wait = d.cfg.ErrorCooldown
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	d.logger.Info("outbox dispatcher stopped")
	return nil
}

// Wait blocks until Run has returned. It returns at once if Run was never started.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if !d.running.Load() {
		return nil
	}
	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessBatch dispatches one batch of eligible records, oldest first.
func (d *Dispatcher) ProcessBatch(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	records, err := d.outbox.FetchPending(ctx, d.cfg.BatchSize, d.cfg.MaxRetries)
	if err != nil {
		return result, fmt.Errorf("fetch pending outbox records: %w", err)
	}
	result.Fetched = len(records)

	for _, record := range records {
		log := d.logger.With(
			zap.String("outbox_id", record.ID),
			zap.String("event_type", record.EventType),
			zap.Int("retry_count", record.RetryCount),
		)

		evt, err := domain.DecodeEvent(record.EventType, record.EventData)
		if err != nil {
			log.Error("outbox record cannot be decoded, giving up", zap.Error(err))
			if markErr := d.outbox.MarkFailed(ctx, record.ID, err.Error(), true, d.cfg.MaxRetries); markErr != nil {
				return result, fmt.Errorf("mark outbox record %s failed: %w", record.ID, markErr)
			}
			result.Rejected++
			continue
		}

		if failures := d.deliver(ctx, log, evt); failures != nil {
			if markErr := d.outbox.MarkFailed(ctx, record.ID, failures.Error(), false, d.cfg.MaxRetries); markErr != nil {
				return result, fmt.Errorf("mark outbox record %s failed: %w", record.ID, markErr)
			}
			if record.RetryCount+1 >= d.cfg.MaxRetries {
				log.Warn("outbox record reached retry limit", zap.Error(failures))
			}
			result.Failed++
			continue
		}

		if err := d.outbox.MarkProcessed(ctx, record.ID, d.now()); err != nil {
			return result, fmt.Errorf("mark outbox record %s processed: %w", record.ID, err)
		}
		result.Processed++
	}

	if result.Fetched > 0 {
		d.logger.Debug("outbox batch dispatched",
			zap.Int("fetched", result.Fetched),
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
			zap.Int("rejected", result.Rejected),
		)
	}
	return result, nil
}

// deliver runs every subscriber in order and joins their errors.
func (d *Dispatcher) deliver(ctx context.Context, log *zap.Logger, evt domain.Event) error {
	var failures error
	for _, sub := range d.subscribers {
		if err := invoke(ctx, sub, evt); err != nil {
			log.Error("subscriber failed", zap.String("subscriber", sub.Name()), zap.Error(err))
			failures = errors.Join(failures, fmt.Errorf("%s: %w", sub.Name(), err))
		}
	}
	return failures
}

// invoke isolates a subscriber: a panic becomes an error.
func invoke(ctx context.Context, sub Subscriber, evt domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.Handle(ctx, evt)
}
