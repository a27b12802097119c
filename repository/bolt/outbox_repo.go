package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

type outboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a Bolt-backed OutboxRepository implementation.
func NewOutboxRepository(store *Store) repository.OutboxRepository {
	return &outboxRepository{store: store}
}

// appendOutbox writes records inside the caller's transaction. Keys sort by
// occurrence time so a cursor walk yields the oldest events first.
func appendOutbox(tx *bbolt.Tx, records []domain.OutboxRecord) error {
	log := tx.Bucket(bucketOutbox)
	keys := tx.Bucket(bucketOutboxKeys)
	for _, record := range records {
		key := outboxKey(record)
		if err := putJSON(log, key, record); err != nil {
			return err
		}
		if err := keys.Put([]byte(record.ID), key); err != nil {
			return err
		}
	}
	return nil
}

func (r *outboxRepository) FetchPending(ctx context.Context, limit, maxRetries int) ([]domain.OutboxRecord, error) {
	if err := r.store.open(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var records []domain.OutboxRecord
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketOutbox).Cursor()
		for k, v := c.First(); k != nil && len(records) < limit; k, v = c.Next() {
			var record domain.OutboxRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			if record.Eligible(maxRetries) {
				records = append(records, record)
			}
		}
		return nil
	})
	return records, err
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	return r.modify(ctx, id, func(record *domain.OutboxRecord) {
		at := processedAt.UTC()
		record.Status = domain.OutboxStatusProcessed
		record.ProcessedAt = &at
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string, permanent bool, maxRetries int) error {
	return r.modify(ctx, id, func(record *domain.OutboxRecord) {
		record.Status = domain.OutboxStatusFailed
		record.LastError = &reason
		if !permanent {
			record.RetryCount++
			return
		}
		if record.RetryCount < maxRetries {
			record.RetryCount = maxRetries
		}
	})
}

func (r *outboxRepository) Stats(ctx context.Context) (repository.OutboxStats, error) {
	var stats repository.OutboxStats
	if err := r.store.open(); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	err := r.store.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(k, v []byte) error {
			var record domain.OutboxRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil
			}
			switch record.Status {
			case domain.OutboxStatusPending:
				stats.Pending++
				if stats.OldestPending == nil {
					at := record.OccurredAt
					stats.OldestPending = &at
				}
			case domain.OutboxStatusFailed:
				stats.Failed++
			case domain.OutboxStatusProcessed:
				stats.Processed++
			}
			return nil
		})
	})
	return stats, err
}

func (r *outboxRepository) PurgeProcessed(ctx context.Context, olderThan time.Time) (int, error) {
	if err := r.store.open(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var purged int
	err := r.store.db.Update(func(tx *bbolt.Tx) error {
		log := tx.Bucket(bucketOutbox)
		keys := tx.Bucket(bucketOutboxKeys)

		var stale []domain.OutboxRecord
		if err := log.ForEach(func(k, v []byte) error {
			var record domain.OutboxRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil
			}
			if record.Status == domain.OutboxStatusProcessed && record.ProcessedAt != nil && record.ProcessedAt.Before(olderThan) {
				stale = append(stale, record)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, record := range stale {
			if err := log.Delete(outboxKey(record)); err != nil {
				return err
			}
			if err := keys.Delete([]byte(record.ID)); err != nil {
				return err
			}
		}
		purged = len(stale)
		return nil
	})
	return purged, err
}

func (r *outboxRepository) modify(ctx context.Context, id string, apply func(record *domain.OutboxRecord)) error {
	if err := r.store.open(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.store.db.Update(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketOutboxKeys).Get([]byte(id))
		if key == nil {
			return domain.ErrOutboxRecordNotFound
		}
		key = append([]byte(nil), key...)

		log := tx.Bucket(bucketOutbox)
		var record domain.OutboxRecord
		found, err := getJSON(log, key, &record)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrOutboxRecordNotFound
		}
		apply(&record)
		return putJSON(log, key, record)
	})
}

func outboxKey(record domain.OutboxRecord) []byte {
	return []byte(fmt.Sprintf("%020d_%s", record.OccurredAt.UnixNano(), record.ID))
}
