package sale

import "github.com/shopspring/decimal"

// ItemInput is one requested product line.
type ItemInput struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateSaleCommand struct {
	RequestID  string
	CustomerID string
	BranchID   string
	Items      []ItemInput
}

// UpdateSaleCommand carries the desired item set of the sale. Products missing
// from Items are removed.
type UpdateSaleCommand struct {
	RequestID string
	SaleID    string
	Items     []ItemInput
}

type ConfirmSaleCommand struct {
	RequestID string
	SaleID    string
}

type CancelSaleCommand struct {
	RequestID string
	SaleID    string
	Reason    string
}

// consolidate merges inputs that name the same product, keeping first-seen order.
// The last unit price seen for a product wins.
func consolidate(items []ItemInput) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if idx, ok := index[item.ProductID]; ok {
			out[idx].Quantity += item.Quantity
			out[idx].UnitPrice = item.UnitPrice
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
