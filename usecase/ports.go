package usecase

import "context"

// CustomerValidator answers whether a customer may buy. Implementations talk to
// the CRM; an error means the answer is unknown, not that the customer is invalid.
type CustomerValidator interface {
	CustomerExists(ctx context.Context, customerID string) (bool, error)
}

// StockReservation reserves units of a product for a sale.
type StockReservation interface {
	Reserve(ctx context.Context, productID string, quantity int) (bool, error)
}
