package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	SaleStatusActive            SaleStatus = "active"
	SaleStatusPendingValidation SaleStatus = "pending_validation"
	SaleStatusCancelled         SaleStatus = "cancelled"
)

// DefaultCancelReason is recorded when a cancellation carries no reason.
const DefaultCancelReason = "cancelled by request"

var maxUnitPrice = decimal.RequireFromString("999999.99")

// SaleItem is one consolidated product line.
type SaleItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

// Total is quantity x price x (1 - discount), rounded to cents.
func (i SaleItem) Total() decimal.Decimal {
	gross := i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	return gross.Mul(decimal.NewFromInt(1).Sub(i.Discount)).Round(2)
}

// Sale is the aggregate root. Mutations return the events they raised; the caller
// hands those events to the repository call that persists the same change.
type Sale struct {
	ID         string     `json:"id"`
	Number     int64      `json:"number"`
	CustomerID string     `json:"customer_id"`
	BranchID   string     `json:"branch_id"`
	Status     SaleStatus `json:"status"`
	Items      []SaleItem `json:"items"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewSale opens an active sale without a number.
func NewSale(customerID, branchID string) (*Sale, error) {
	if customerID == "" {
		return nil, ErrEmptyCustomerID
	}
	if branchID == "" {
		return nil, ErrEmptyBranchID
	}
	now := time.Now().UTC()
	return &Sale{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		BranchID:   branchID,
		Status:     SaleStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *Sale) Touch() {
	if s == nil {
		return
	}
	s.UpdatedAt = time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}
}

func (s *Sale) IsCancelled() bool {
	return s != nil && s.Status == SaleStatusCancelled
}

// TotalAmount sums every line total.
func (s *Sale) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.Total())
	}
	return total
}

// QuantityOf returns the units of productID held by the sale.
func (s *Sale) QuantityOf(productID string) int {
	if idx := s.itemIndex(productID); idx >= 0 {
		return s.Items[idx].Quantity
	}
	return 0
}

// ProductIDs lists the products in line order.
func (s *Sale) ProductIDs() []string {
	ids := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// AddItem adds quantity units of productID, consolidating into the existing line.
// The consolidated line takes the unit price of the latest addition.
func (s *Sale) AddItem(productID string, quantity int, unitPrice decimal.Decimal) ([]Event, error) {
	if s.IsCancelled() {
		return nil, ErrAddToCancelledSale
	}
	if productID == "" {
		return nil, ErrEmptyProductID
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !unitPrice.IsPositive() || unitPrice.GreaterThan(maxUnitPrice) {
		return nil, ErrInvalidUnitPrice
	}

	newQuantity := s.QuantityOf(productID) + quantity
	if !AllowsQuantity(newQuantity) {
		return nil, ErrQuantityLimitExceeded
	}
	discount, err := CalculateDiscount(newQuantity)
	if err != nil {
		return nil, err
	}

	line := SaleItem{
		ProductID: productID,
		Quantity:  newQuantity,
		UnitPrice: unitPrice,
		Discount:  discount,
	}
	if idx := s.itemIndex(productID); idx >= 0 {
		s.Items[idx] = line
	} else {
		s.Items = append(s.Items, line)
	}
	s.Touch()

	return []Event{SaleModified{
		EventMeta:  newEventMeta(s.ID),
		ProductIDs: []string{productID},
	}}, nil
}

// RemoveItem drops the whole line for productID.
func (s *Sale) RemoveItem(productID string) ([]Event, error) {
	if s.IsCancelled() {
		return nil, ErrRemoveFromCancelled
	}
	idx := s.itemIndex(productID)
	if idx < 0 {
		return nil, ErrProductNotInSale
	}
	return s.removeLine(idx), nil
}

// RemoveQuantity removes quantity units of productID. Removing everything the sale
// holds deletes the line.
func (s *Sale) RemoveQuantity(productID string, quantity int) ([]Event, error) {
	if s.IsCancelled() {
		return nil, ErrRemoveFromCancelled
	}
	idx := s.itemIndex(productID)
	if idx < 0 {
		return nil, ErrProductNotInSale
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	held := s.Items[idx].Quantity
	if quantity > held {
		return nil, ErrRemoveExceedsHeld
	}
	if quantity == held {
		return s.removeLine(idx), nil
	}

	remaining := held - quantity
	discount, err := CalculateDiscount(remaining)
	if err != nil {
		return nil, err
	}
	s.Items[idx].Quantity = remaining
	s.Items[idx].Discount = discount
	s.Touch()

	return []Event{SaleModified{
		EventMeta:  newEventMeta(s.ID),
		ProductIDs: []string{productID},
	}}, nil
}

// Cancel moves the sale to its terminal state.
func (s *Sale) Cancel(reason string) ([]Event, error) {
	if s.IsCancelled() {
		return nil, ErrSaleAlreadyCancelled
	}
	if reason == "" {
		reason = DefaultCancelReason
	}
	s.Status = SaleStatusCancelled
	s.Touch()

	return []Event{SaleCancelled{
		EventMeta: newEventMeta(s.ID),
		Reason:    reason,
	}}, nil
}

// AssignNumber records the branch sequence number and raises SaleCreated. Only
// repositories call it, right after the sequence allocator produced n.
func (s *Sale) AssignNumber(n int64) ([]Event, error) {
	if s.Number != 0 {
		return nil, ErrNumberAlreadyAssigned
	}
	if n <= 0 {
		return nil, ErrInvalidSaleNumber
	}
	s.Number = n
	s.Touch()

	return []Event{SaleCreated{
		EventMeta:  newEventMeta(s.ID),
		SaleNumber: n,
		CustomerID: s.CustomerID,
		BranchID:   s.BranchID,
	}}, nil
}

// MarkPendingValidation flags the sale for a later confirmation. No event is raised.
func (s *Sale) MarkPendingValidation() error {
	if s.IsCancelled() {
		return ErrSaleCancelled
	}
	s.Status = SaleStatusPendingValidation
	s.Touch()
	return nil
}

// Confirm returns a pending sale to active. Confirming an active sale is a no-op.
func (s *Sale) Confirm() ([]Event, error) {
	switch s.Status {
	case SaleStatusCancelled:
		return nil, ErrSaleCancelled
	case SaleStatusActive:
		return nil, nil
	}
	s.Status = SaleStatusActive
	s.Touch()

	return []Event{SaleModified{
		EventMeta:  newEventMeta(s.ID),
		ProductIDs: s.ProductIDs(),
	}}, nil
}

// Clone returns a deep copy.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = append([]SaleItem(nil), s.Items...)
	return &out
}

func (s *Sale) removeLine(idx int) []Event {
	productID := s.Items[idx].ProductID
	s.Items = append(s.Items[:idx], s.Items[idx+1:]...)
	s.Touch()
	return []Event{ItemCancelled{
		EventMeta: newEventMeta(s.ID),
		ProductID: productID,
	}}
}

func (s *Sale) itemIndex(productID string) int {
	for i, item := range s.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
