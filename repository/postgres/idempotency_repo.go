package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

type idempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore creates a Postgres-backed IdempotencyStore implementation.
func NewIdempotencyStore(pool *pgxpool.Pool) repository.IdempotencyStore {
	return &idempotencyStore{pool: pool}
}

func (r *idempotencyStore) Exists(ctx context.Context, requestID string) (bool, error) {
	const query = `
	SELECT EXISTS (
		SELECT 1 FROM idempotency_records
		WHERE request_id = $1 AND expires_at > NOW()
	)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, requestID).Scan(&exists)
	return exists, err
}

// Save inserts the record, or replaces an expired one. A live record with the
// same request id wins and the caller gets domain.ErrDuplicateRequest.
func (r *idempotencyStore) Save(ctx context.Context, record domain.IdempotencyRecord) error {
	if record.RequestID == "" {
		return domain.ErrRequestIDRequired
	}

	const query = `
	INSERT INTO idempotency_records (request_id, command_type, aggregate_id, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (request_id) DO UPDATE
	SET command_type = EXCLUDED.command_type,
		aggregate_id = EXCLUDED.aggregate_id,
		created_at = EXCLUDED.created_at,
		expires_at = EXCLUDED.expires_at
	WHERE idempotency_records.expires_at <= NOW()
	`
	tag, err := r.pool.Exec(ctx, query,
		record.RequestID,
		record.CommandType,
		record.AggregateID,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRequest
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateRequest
	}
	return nil
}

func (r *idempotencyStore) GetAggregateID(ctx context.Context, requestID string) (string, bool, error) {
	const query = `
	SELECT aggregate_id
	FROM idempotency_records
	WHERE request_id = $1 AND expires_at > NOW()
	`
	var aggregateID string
	if err := r.pool.QueryRow(ctx, query, requestID).Scan(&aggregateID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return aggregateID, true, nil
}

func (r *idempotencyStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
