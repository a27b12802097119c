package transport

import "github.com/shopspring/decimal"

type SaleItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateSaleRequest opens a sale. RequestID is used when the Idempotency-Key
// header is absent.
type CreateSaleRequest struct {
	RequestID  string            `json:"request_id"`
	CustomerID string            `json:"customer_id"`
	BranchID   string            `json:"branch_id"`
	Items      []SaleItemRequest `json:"items"`
}

// UpdateSaleRequest replaces the item set of a sale.
type UpdateSaleRequest struct {
	RequestID string            `json:"request_id"`
	Items     []SaleItemRequest `json:"items"`
}

type ConfirmSaleRequest struct {
	RequestID string `json:"request_id"`
}

type CancelSaleRequest struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}
