package sale

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/pkg/logger"
	"github.com/fastygo/sales/pkg/retry"
	"github.com/fastygo/sales/repository"
	"github.com/fastygo/sales/usecase"
)

// Options tunes the command handlers.
type Options struct {
	Retry          retry.Config
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

// UseCase executes sale commands. Each command is idempotent per request id and
// persists the aggregate together with the events it raised.
type UseCase struct {
	sales       repository.SaleRepository
	idempotency repository.IdempotencyStore
	customers   usecase.CustomerValidator
	stock       usecase.StockReservation
	retry       retry.Config
	ttl         time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func New(
	sales repository.SaleRepository,
	idempotency repository.IdempotencyStore,
	customers usecase.CustomerValidator,
	stock usecase.StockReservation,
	opts Options,
) *UseCase {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = domain.DefaultIdempotencyTTL
	}
	return &UseCase{
		sales:       sales,
		idempotency: idempotency,
		customers:   customers,
		stock:       stock,
		retry:       opts.Retry,
		ttl:         opts.IdempotencyTTL,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

func (uc *UseCase) GetSale(ctx context.Context, id string) (*SaleSummary, error) {
	sale, err := uc.sales.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return summarize(sale, false), nil
}

func (uc *UseCase) CreateSale(ctx context.Context, cmd CreateSaleCommand) (*SaleSummary, error) {
	return uc.execute(ctx, cmd.RequestID, domain.CommandCreateSale, func(ctx context.Context) (*domain.Sale, error) {
		if len(cmd.Items) == 0 {
			return nil, domain.ErrSaleItemsRequired
		}

		sale, err := domain.NewSale(cmd.CustomerID, cmd.BranchID)
		if err != nil {
			return nil, err
		}
		var events []domain.Event
		for _, item := range cmd.Items {
			raised, err := sale.AddItem(item.ProductID, item.Quantity, item.UnitPrice)
			if err != nil {
				return nil, err
			}
			events = append(events, raised...)
		}

		validated, err := uc.validate(ctx, sale)
		if err != nil {
			return nil, err
		}
		if !validated {
			if err := sale.MarkPendingValidation(); err != nil {
				return nil, err
			}
		}

		if err := retry.Do(ctx, uc.retryConfig(ctx, "create"), func(ctx context.Context) error {
			return uc.sales.Create(ctx, sale, events)
		}); err != nil {
			return nil, err
		}

		logger.WithRequestID(ctx, uc.logger).Info("sale created",
			zap.String("sale_id", sale.ID),
			zap.Int64("number", sale.Number),
			zap.String("branch_id", sale.BranchID),
			zap.String("status", string(sale.Status)),
		)
		return sale, nil
	})
}

func (uc *UseCase) UpdateSale(ctx context.Context, cmd UpdateSaleCommand) (*SaleSummary, error) {
	return uc.execute(ctx, cmd.RequestID, domain.CommandUpdateSale, func(ctx context.Context) (*domain.Sale, error) {
		if len(cmd.Items) == 0 {
			return nil, domain.ErrSaleItemsRequired
		}
		desired := consolidate(cmd.Items)
		for _, item := range desired {
			if item.ProductID == "" {
				return nil, domain.ErrEmptyProductID
			}
			if item.Quantity <= 0 {
				return nil, domain.ErrInvalidQuantity
			}
		}

		return uc.mutate(ctx, cmd.SaleID, "update", func(sale *domain.Sale) ([]domain.Event, error) {
			return applyItemSet(sale, desired)
		})
	})
}

func (uc *UseCase) ConfirmSale(ctx context.Context, cmd ConfirmSaleCommand) (*SaleSummary, error) {
	return uc.execute(ctx, cmd.RequestID, domain.CommandConfirmSale, func(ctx context.Context) (*domain.Sale, error) {
		sale, err := uc.sales.Get(ctx, cmd.SaleID)
		if err != nil {
			return nil, err
		}
		switch sale.Status {
		case domain.SaleStatusCancelled:
			return nil, domain.ErrSaleCancelled
		case domain.SaleStatusActive:
			return sale, nil
		}

		validated, err := uc.validate(ctx, sale)
		if err != nil {
			return nil, err
		}
		if !validated {
			return nil, domain.ErrSaleNotValidated
		}

		return uc.mutate(ctx, cmd.SaleID, "confirm", func(sale *domain.Sale) ([]domain.Event, error) {
			return sale.Confirm()
		})
	})
}

func (uc *UseCase) CancelSale(ctx context.Context, cmd CancelSaleCommand) (*SaleSummary, error) {
	return uc.execute(ctx, cmd.RequestID, domain.CommandCancelSale, func(ctx context.Context) (*domain.Sale, error) {
		return uc.mutate(ctx, cmd.SaleID, "cancel", func(sale *domain.Sale) ([]domain.Event, error) {
			return sale.Cancel(cmd.Reason)
		})
	})
}

// execute wraps a command with the request-id check and the idempotency record.
func (uc *UseCase) execute(ctx context.Context, requestID, commandType string, run func(ctx context.Context) (*domain.Sale, error)) (*SaleSummary, error) {
	if requestID == "" {
		return nil, domain.ErrRequestIDRequired
	}
	log := logger.WithRequestID(ctx, uc.logger).With(
		zap.String("idempotency_key", requestID),
		zap.String("command", commandType),
	)

	if replayed, err := uc.replay(ctx, requestID); err != nil || replayed != nil {
		if replayed != nil {
			log.Info("request already processed, returning recorded sale", zap.String("sale_id", replayed.ID))
		}
		return replayed, err
	}

	sale, err := run(ctx)
	if err != nil {
		return nil, err
	}

	record := domain.NewIdempotencyRecord(requestID, commandType, sale.ID, uc.now(), uc.ttl)
	if err := uc.idempotency.Save(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			log.Debug("idempotency record already present", zap.String("sale_id", sale.ID))
		} else {
			log.Error("failed to save idempotency record", zap.String("sale_id", sale.ID), zap.Error(err))
		}
	}
	return summarize(sale, false), nil
}

// replay returns the recorded sale for requestID, or nil when the request is new.
// GetAggregateID only sees non-expired records, so one lookup answers both.
func (uc *UseCase) replay(ctx context.Context, requestID string) (*SaleSummary, error) {
	saleID, ok, err := uc.idempotency.GetAggregateID(ctx, requestID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "idempotency store unavailable", err)
	}
	if !ok {
		return nil, nil
	}
	sale, err := uc.sales.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return summarize(sale, true), nil
}

// mutate loads the sale, applies change and saves it with the raised events. A
// version conflict reloads the sale and applies change again.
func (uc *UseCase) mutate(ctx context.Context, saleID, operation string, change func(sale *domain.Sale) ([]domain.Event, error)) (*domain.Sale, error) {
	sale, err := retry.DoValue(ctx, uc.retryConfig(ctx, operation), func(ctx context.Context) (*domain.Sale, error) {
		sale, err := uc.sales.Get(ctx, saleID)
		if err != nil {
			return nil, err
		}
		events, err := change(sale)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return sale, nil
		}
		if err := uc.sales.Update(ctx, sale, events); err != nil {
			return nil, err
		}
		return sale, nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithRequestID(ctx, uc.logger).Info("sale updated",
		zap.String("sale_id", sale.ID),
		zap.String("operation", operation),
		zap.String("status", string(sale.Status)),
		zap.Int("version", sale.Version),
	)
	return sale, nil
}

// validate asks the collaborators about the customer and every line. Only a
// definite "customer does not exist" is an error; anything uncertain leaves the
// sale for a later confirmation.
func (uc *UseCase) validate(ctx context.Context, sale *domain.Sale) (bool, error) {
	log := logger.WithRequestID(ctx, uc.logger).With(zap.String("sale_id", sale.ID))

	exists, err := uc.customers.CustomerExists(ctx, sale.CustomerID)
	if err != nil {
		log.Warn("customer validation unavailable", zap.String("customer_id", sale.CustomerID), zap.Error(err))
		return false, nil
	}
	if !exists {
		return false, domain.ErrCustomerNotFound
	}

	validated := true
	for _, item := range sale.Items {
		reserved, err := uc.stock.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			log.Warn("stock reservation unavailable", zap.String("product_id", item.ProductID), zap.Error(err))
			validated = false
			continue
		}
		if !reserved {
			log.Info("stock not reserved", zap.String("product_id", item.ProductID), zap.Int("quantity", item.Quantity))
			validated = false
		}
	}
	return validated, nil
}

func (uc *UseCase) retryConfig(ctx context.Context, operation string) retry.Config {
	cfg := uc.retry
	log := logger.WithRequestID(ctx, uc.logger)
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("concurrent write detected, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return cfg
}

// applyItemSet turns the sale's lines into desired. Removals run first so a
// product can be lowered and another raised in one request.
func applyItemSet(sale *domain.Sale, desired []ItemInput) ([]domain.Event, error) {
	if sale.IsCancelled() {
		return nil, domain.ErrSaleCancelled
	}
	wanted := make(map[string]ItemInput, len(desired))
	for _, item := range desired {
		wanted[item.ProductID] = item
	}

	var events []domain.Event
	for _, productID := range sale.ProductIDs() {
		if _, ok := wanted[productID]; ok {
			continue
		}
		raised, err := sale.RemoveItem(productID)
		if err != nil {
			return nil, err
		}
		events = append(events, raised...)
	}

	for _, item := range desired {
		held := sale.QuantityOf(item.ProductID)
		var (
			raised []domain.Event
			err    error
		)
		switch {
		case item.Quantity < held:
			raised, err = sale.RemoveQuantity(item.ProductID, held-item.Quantity)
		case item.Quantity > held:
			raised, err = sale.AddItem(item.ProductID, item.Quantity-held, item.UnitPrice)
		}
		if err != nil {
			return nil, err
		}
		events = append(events, raised...)
	}
	return events, nil
}
