package repository

import (
	"context"
	"time"

	"github.com/fastygo/sales/domain"
)

// OutboxStats summarizes the outbox log for monitoring.
type OutboxStats struct {
	Pending       int        `json:"pending"`
	Failed        int        `json:"failed"`
	Processed     int        `json:"processed"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// OutboxRepository is the dispatcher's view of the outbox log.
type OutboxRepository interface {
	// FetchPending returns up to limit records that are pending or failed with
	// fewer than maxRetries attempts, oldest occurrence first.
	FetchPending(ctx context.Context, limit, maxRetries int) ([]domain.OutboxRecord, error)
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
	// MarkFailed records reason on the record. Transient failures bump the retry
	// count by one; permanent failures raise it to maxRetries so the record is
	// never polled again.
	MarkFailed(ctx context.Context, id string, reason string, permanent bool, maxRetries int) error
	Stats(ctx context.Context) (OutboxStats, error)
	PurgeProcessed(ctx context.Context, olderThan time.Time) (int, error)
}
