package repository

import (
	"context"
	"time"

	"github.com/fastygo/sales/domain"
)

// IdempotencyStore remembers which aggregate a client request id produced.
type IdempotencyStore interface {
	// Exists reports whether a non-expired record exists for requestID.
	Exists(ctx context.Context, requestID string) (bool, error)
	// Save inserts record; a concurrent insert of the same request id yields
	// domain.ErrDuplicateRequest.
	Save(ctx context.Context, record domain.IdempotencyRecord) error
	GetAggregateID(ctx context.Context, requestID string) (string, bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
