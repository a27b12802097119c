package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fastygo/sales/domain"
)

// nextSaleNumber claims the next number of a branch with a compare-and-set on the
// counter version. Losing the race yields domain.ErrConcurrencyConflict; the
// caller decides whether to retry.
func nextSaleNumber(ctx context.Context, tx pgx.Tx, branchID string) (int64, error) {
	const selectQuery = `
	SELECT last_number, version
	FROM sale_sequences
	WHERE branch_id = $1
	`

	var lastNumber, version int64
	err := tx.QueryRow(ctx, selectQuery, branchID).Scan(&lastNumber, &version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return insertFirstNumber(ctx, tx, branchID)
	case err != nil:
		return 0, err
	}

	const updateQuery = `
	UPDATE sale_sequences
	SET last_number = $3, version = version + 1, updated_at = NOW()
	WHERE branch_id = $1 AND version = $2
	`
	tag, err := tx.Exec(ctx, updateQuery, branchID, version, lastNumber+1)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrConcurrencyConflict
	}
	return lastNumber + 1, nil
}

func insertFirstNumber(ctx context.Context, tx pgx.Tx, branchID string) (int64, error) {
	const query = `
	INSERT INTO sale_sequences (branch_id, last_number, version, updated_at)
	VALUES ($1, 1, 1, NOW())
	ON CONFLICT (branch_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, query, branchID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrConcurrencyConflict
	}
	return 1, nil
}
