package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates a Postgres-backed OutboxRepository implementation.
func NewOutboxRepository(pool *pgxpool.Pool) repository.OutboxRepository {
	return &outboxRepository{pool: pool}
}

func (r *outboxRepository) FetchPending(ctx context.Context, limit, maxRetries int) ([]domain.OutboxRecord, error) {
	const query = `
	SELECT id, event_type, event_data, occurred_at, status, retry_count, last_error, processed_at, created_at
	FROM outbox_messages
	WHERE status IN ('pending', 'failed')
	  AND retry_count < $1
	ORDER BY occurred_at ASC
	LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, maxRetries, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		record, err := scanOutboxRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	const query = `
	UPDATE outbox_messages
	SET status = 'processed', processed_at = $2
	WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, processedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxRecordNotFound
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string, permanent bool, maxRetries int) error {
	const query = `
	UPDATE outbox_messages
	SET status = 'failed',
		last_error = $2,
		retry_count = CASE WHEN $3 THEN GREATEST(retry_count, $4) ELSE retry_count + 1 END
	WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, reason, permanent, maxRetries)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxRecordNotFound
	}
	return nil
}

func (r *outboxRepository) Stats(ctx context.Context) (repository.OutboxStats, error) {
	const query = `
	SELECT
		COUNT(*) FILTER (WHERE status = 'pending'),
		COUNT(*) FILTER (WHERE status = 'failed'),
		COUNT(*) FILTER (WHERE status = 'processed'),
		MIN(occurred_at) FILTER (WHERE status = 'pending')
	FROM outbox_messages
	`
	var stats repository.OutboxStats
	err := r.pool.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Failed, &stats.Processed, &stats.OldestPending)
	return stats, err
}

func (r *outboxRepository) PurgeProcessed(ctx context.Context, olderThan time.Time) (int, error) {
	const query = `
	DELETE FROM outbox_messages
	WHERE status = 'processed' AND processed_at < $1
	`
	tag, err := r.pool.Exec(ctx, query, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanOutboxRecord(row rowScanner) (*domain.OutboxRecord, error) {
	var (
		record domain.OutboxRecord
		status string
		data   []byte
	)
	if err := row.Scan(
		&record.ID,
		&record.EventType,
		&data,
		&record.OccurredAt,
		&status,
		&record.RetryCount,
		&record.LastError,
		&record.ProcessedAt,
		&record.CreatedAt,
	); err != nil {
		return nil, err
	}
	record.Status = domain.OutboxStatus(status)
	record.EventData = make([]byte, len(data))
	copy(record.EventData, data)
	return &record, nil
}
