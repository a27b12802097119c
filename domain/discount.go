package domain

import "github.com/shopspring/decimal"

// MaxUnitsPerProduct is the upper bound of units of a single product in one sale.
const MaxUnitsPerProduct = 20

var (
	discountNone   = decimal.Zero
	discountTier10 = decimal.RequireFromString("0.10")
	discountTier20 = decimal.RequireFromString("0.20")
)

// AllowsQuantity reports whether a product may reach totalQuantity units in a sale.
func AllowsQuantity(totalQuantity int) bool {
	return totalQuantity <= MaxUnitsPerProduct
}

// CalculateDiscount maps the consolidated quantity of one product to its discount rate.
// Callers check AllowsQuantity first; quantities above the limit are a policy violation.
func CalculateDiscount(totalQuantity int) (decimal.Decimal, error) {
	switch {
	case !AllowsQuantity(totalQuantity):
		return decimal.Zero, ErrQuantityLimitExceeded
	case totalQuantity >= 10:
		return discountTier20, nil
	case totalQuantity >= 4:
		return discountTier10, nil
	default:
		return discountNone, nil
	}
}
