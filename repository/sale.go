package repository

import (
	"context"

	"github.com/fastygo/sales/domain"
)

// SaleRepository persists the sale aggregate together with the events it raised.
// Both calls write the sale row(s) and one outbox record per event in a single
// atomic unit; on error nothing is written and the passed sale is left unchanged.
type SaleRepository interface {
	Get(ctx context.Context, id string) (*domain.Sale, error)

	// Create allocates the next number of the sale's branch, assigns it (raising
	// SaleCreated ahead of events) and inserts the sale. A lost allocation race is
	// reported as domain.ErrConcurrencyConflict.
	Create(ctx context.Context, sale *domain.Sale, events []domain.Event) error

	// Update writes the sale if its stored version still equals sale.Version and
	// bumps the version; a stale version yields domain.ErrConcurrencyConflict.
	Update(ctx context.Context, sale *domain.Sale, events []domain.Event) error
}
