package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

type saleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository creates a Postgres-backed SaleRepository implementation.
func NewSaleRepository(pool *pgxpool.Pool) repository.SaleRepository {
	return &saleRepository{pool: pool}
}

func (r *saleRepository) Get(ctx context.Context, id string) (*domain.Sale, error) {
	const query = `
	SELECT id, number, customer_id, branch_id, status, items, version, created_at, updated_at
	FROM sales
	WHERE id = $1
	`
	return scanSale(r.pool.QueryRow(ctx, query, id))
}

func (r *saleRepository) Create(ctx context.Context, sale *domain.Sale, events []domain.Event) error {
	if sale == nil || sale.ID == "" || sale.BranchID == "" {
		return domain.ErrInvalidPayload
	}

	draft := sale.Clone()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextSaleNumber(ctx, tx, draft.BranchID)
		if err != nil {
			return err
		}
		created, err := draft.AssignNumber(number)
		if err != nil {
			return err
		}
		draft.Version = 1

		items, err := marshalItems(draft.Items)
		if err != nil {
			return err
		}

		const insertSale = `
		INSERT INTO sales (id, number, customer_id, branch_id, status, items, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), COALESCE($9, NOW()))
		RETURNING created_at, updated_at
		`
		if err := tx.QueryRow(ctx, insertSale,
			draft.ID,
			draft.Number,
			draft.CustomerID,
			draft.BranchID,
			string(draft.Status),
			items,
			draft.Version,
			nullTime(draft.CreatedAt),
			nullTime(draft.UpdatedAt),
		).Scan(&draft.CreatedAt, &draft.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConcurrencyConflict
			}
			return err
		}

		return insertOutbox(ctx, tx, append(created, events...))
	})
	if err != nil {
		return err
	}

	*sale = *draft
	return nil
}

func (r *saleRepository) Update(ctx context.Context, sale *domain.Sale, events []domain.Event) error {
	if sale == nil || sale.ID == "" {
		return domain.ErrInvalidPayload
	}

	draft := sale.Clone()
	draft.Version = sale.Version + 1
	items, err := marshalItems(draft.Items)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
		UPDATE sales
		SET status = $3, items = $4, version = $5, updated_at = COALESCE($6, NOW())
		WHERE id = $1 AND version = $2
		`
		tag, err := tx.Exec(ctx, query,
			draft.ID,
			sale.Version,
			string(draft.Status),
			items,
			draft.Version,
			nullTime(draft.UpdatedAt),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, draft.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrSaleNotFound
			}
			return domain.ErrConcurrencyConflict
		}

		return insertOutbox(ctx, tx, events)
	})
	if err != nil {
		return err
	}

	*sale = *draft
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	records, err := domain.NewOutboxRecords(events, time.Now())
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO outbox_messages (id, event_type, event_data, occurred_at, status, retry_count, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(query,
			record.ID,
			record.EventType,
			[]byte(record.EventData),
			record.OccurredAt,
			string(record.Status),
			record.RetryCount,
			record.CreatedAt,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var (
		sale   domain.Sale
		status string
		items  []byte
	)
	if err := row.Scan(
		&sale.ID,
		&sale.Number,
		&sale.CustomerID,
		&sale.BranchID,
		&status,
		&items,
		&sale.Version,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSaleNotFound
		}
		return nil, err
	}

	sale.Status = domain.SaleStatus(status)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &sale.Items); err != nil {
			return nil, err
		}
	}
	return &sale, nil
}
