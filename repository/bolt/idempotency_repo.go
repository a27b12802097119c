package bolt

import (
	"context"
	"encoding/json"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

type idempotencyStore struct {
	store *Store
}

// NewIdempotencyStore creates a Bolt-backed IdempotencyStore implementation.
func NewIdempotencyStore(store *Store) repository.IdempotencyStore {
	return &idempotencyStore{store: store}
}

func (r *idempotencyStore) Exists(ctx context.Context, requestID string) (bool, error) {
	record, err := r.get(ctx, requestID)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

func (r *idempotencyStore) Save(ctx context.Context, record domain.IdempotencyRecord) error {
	if record.RequestID == "" {
		return domain.ErrRequestIDRequired
	}
	if err := r.store.open(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := r.store.now()
	return r.store.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		var existing domain.IdempotencyRecord
		found, err := getJSON(bucket, []byte(record.RequestID), &existing)
		if err != nil {
			return err
		}
		if found && !existing.IsExpired(now) {
			return domain.ErrDuplicateRequest
		}
		return putJSON(bucket, []byte(record.RequestID), record)
	})
}

func (r *idempotencyStore) GetAggregateID(ctx context.Context, requestID string) (string, bool, error) {
	record, err := r.get(ctx, requestID)
	if err != nil || record == nil {
		return "", false, err
	}
	return record.AggregateID, true, nil
}

func (r *idempotencyStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if err := r.store.open(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var purged int
	err := r.store.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		var expired [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var record domain.IdempotencyRecord
			if err := json.Unmarshal(v, &record); err != nil || record.IsExpired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, key := range expired {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		purged = len(expired)
		return nil
	})
	return purged, err
}

func (r *idempotencyStore) get(ctx context.Context, requestID string) (*domain.IdempotencyRecord, error) {
	if err := r.store.open(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record domain.IdempotencyRecord
	var found bool
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		var err error
		found, err = getJSON(tx.Bucket(bucketIdempotency), []byte(requestID), &record)
		return err
	})
	if err != nil || !found || record.IsExpired(r.store.now()) {
		return nil, err
	}
	return &record, nil
}
