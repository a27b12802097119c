package bolt

import (
	"context"
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

type saleRepository struct {
	store *Store
}

// NewSaleRepository creates a Bolt-backed SaleRepository implementation.
func NewSaleRepository(store *Store) repository.SaleRepository {
	return &saleRepository{store: store}
}

func (r *saleRepository) Get(ctx context.Context, id string) (*domain.Sale, error) {
	if err := r.store.open(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sale domain.Sale
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketSales), []byte(id), &sale)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrSaleNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepository) Create(ctx context.Context, sale *domain.Sale, events []domain.Event) error {
	if sale == nil || sale.ID == "" || sale.BranchID == "" {
		return domain.ErrInvalidPayload
	}
	if err := r.store.open(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	observed, err := r.store.readSequence(sale.BranchID)
	if err != nil {
		return err
	}
	if r.store.afterSequenceRead != nil {
		r.store.afterSequenceRead()
	}

	draft := sale.Clone()
	created, err := draft.AssignNumber(observed.LastNumber + 1)
	if err != nil {
		return err
	}
	draft.Version = 1
	records, err := domain.NewOutboxRecords(append(created, events...), r.store.now())
	if err != nil {
		return err
	}

	err = r.store.db.Update(func(tx *bbolt.Tx) error {
		number, err := claimSequence(tx, draft.BranchID, observed)
		if err != nil {
			return err
		}
		if number != draft.Number {
			return domain.ErrConcurrencyConflict
		}

		sales := tx.Bucket(bucketSales)
		if sales.Get([]byte(draft.ID)) != nil {
			return fmt.Errorf("sale %s already exists", draft.ID)
		}
		numbers := tx.Bucket(bucketSaleNumbers)
		numberKey := saleNumberKey(draft.BranchID, draft.Number)
		if numbers.Get(numberKey) != nil {
			return domain.ErrConcurrencyConflict
		}

		if err := putJSON(sales, []byte(draft.ID), draft); err != nil {
			return err
		}
		if err := numbers.Put(numberKey, []byte(draft.ID)); err != nil {
			return err
		}
		return appendOutbox(tx, records)
	})
	if err != nil {
		return err
	}

	*sale = *draft
	return nil
}

func (r *saleRepository) Update(ctx context.Context, sale *domain.Sale, events []domain.Event) error {
	if sale == nil || sale.ID == "" {
		return domain.ErrInvalidPayload
	}
	if err := r.store.open(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	draft := sale.Clone()
	draft.Version = sale.Version + 1
	records, err := domain.NewOutboxRecords(events, r.store.now())
	if err != nil {
		return err
	}

	err = r.store.db.Update(func(tx *bbolt.Tx) error {
		sales := tx.Bucket(bucketSales)
		var stored domain.Sale
		found, err := getJSON(sales, []byte(draft.ID), &stored)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrSaleNotFound
		}
		if stored.Version != sale.Version {
			return domain.ErrConcurrencyConflict
		}
		if err := putJSON(sales, []byte(draft.ID), draft); err != nil {
			return err
		}
		return appendOutbox(tx, records)
	})
	if err != nil {
		return err
	}

	*sale = *draft
	return nil
}
