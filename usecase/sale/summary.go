package sale

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fastygo/sales/domain"
)

type ItemSummary struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

// SaleSummary is the read model returned by every command and query.
type SaleSummary struct {
	ID          string          `json:"id"`
	Number      int64           `json:"number"`
	CustomerID  string          `json:"customer_id"`
	BranchID    string          `json:"branch_id"`
	Status      string          `json:"status"`
	Items       []ItemSummary   `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	// Replayed is set when the request id was already processed and nothing ran.
	Replayed bool `json:"replayed"`
}

func summarize(sale *domain.Sale, replayed bool) *SaleSummary {
	items := make([]ItemSummary, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, ItemSummary{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			Total:     item.Total(),
		})
	}
	return &SaleSummary{
		ID:          sale.ID,
		Number:      sale.Number,
		CustomerID:  sale.CustomerID,
		BranchID:    sale.BranchID,
		Status:      string(sale.Status),
		Items:       items,
		TotalAmount: sale.TotalAmount(),
		Version:     sale.Version,
		CreatedAt:   sale.CreatedAt,
		UpdatedAt:   sale.UpdatedAt,
		Replayed:    replayed,
	}
}
