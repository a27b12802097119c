package projection

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

// CRMPublisher forwards sale events to the CRM.
type CRMPublisher interface {
	PublishSaleEvent(ctx context.Context, evt domain.Event) error
}

// StockReleaser frees reserved stock.
type StockReleaser interface {
	ReleaseReservation(ctx context.Context, saleID string, productIDs []string) error
}

// Log writes every dispatched event to the service log.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (p *Log) Name() string { return "log" }

func (p *Log) Handle(_ context.Context, evt domain.Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(evt.Type())),
		zap.String("event_id", evt.Meta().EventID),
		zap.String("sale_id", evt.Meta().SaleID),
		zap.Time("occurred_at", evt.Meta().OccurredAt),
	}
	switch e := evt.(type) {
	case domain.SaleCreated:
		fields = append(fields, zap.Int64("sale_number", e.SaleNumber), zap.String("branch_id", e.BranchID))
	case domain.SaleModified:
		fields = append(fields, zap.Strings("product_ids", e.ProductIDs))
	case domain.SaleCancelled:
		fields = append(fields, zap.String("reason", e.Reason))
	case domain.ItemCancelled:
		fields = append(fields, zap.String("product_id", e.ProductID))
	}
	p.logger.Info("sale event", fields...)
	return nil
}

// CRM pushes every sale event to the CRM. A CRM outage is logged and the event
// is not redelivered.
type CRM struct {
	crm    CRMPublisher
	logger *zap.Logger
}

func NewCRM(crm CRMPublisher, logger *zap.Logger) *CRM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CRM{crm: crm, logger: logger}
}

func (p *CRM) Name() string { return "crm" }

func (p *CRM) Handle(ctx context.Context, evt domain.Event) error {
	if err := p.crm.PublishSaleEvent(ctx, evt); err != nil {
		p.logger.Warn("crm projection skipped",
			zap.String("event_type", string(evt.Type())),
			zap.String("sale_id", evt.Meta().SaleID),
			zap.Error(err),
		)
	}
	return nil
}

// Inventory releases stock held by cancelled sales and cancelled lines.
type Inventory struct {
	sales     repository.SaleRepository
	inventory StockReleaser
	logger    *zap.Logger
}

func NewInventory(sales repository.SaleRepository, inventory StockReleaser, logger *zap.Logger) *Inventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inventory{sales: sales, inventory: inventory, logger: logger}
}

func (p *Inventory) Name() string { return "inventory" }

func (p *Inventory) Handle(ctx context.Context, evt domain.Event) error {
	var productIDs []string
	switch e := evt.(type) {
	case domain.ItemCancelled:
		productIDs = []string{e.ProductID}
	case domain.SaleCancelled:
		sale, err := p.sales.Get(ctx, e.SaleID)
		if err != nil {
			p.logger.Warn("inventory projection could not load sale", zap.String("sale_id", e.SaleID), zap.Error(err))
			return nil
		}
		productIDs = sale.ProductIDs()
	default:
		return nil
	}
	if len(productIDs) == 0 {
		return nil
	}

	if err := p.inventory.ReleaseReservation(ctx, evt.Meta().SaleID, productIDs); err != nil {
		p.logger.Warn("inventory release skipped",
			zap.String("sale_id", evt.Meta().SaleID),
			zap.Strings("product_ids", productIDs),
			zap.Error(err),
		)
	}
	return nil
}
