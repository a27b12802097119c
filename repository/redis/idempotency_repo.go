package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
)

type idempotencyStore struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewIdempotencyStore creates a Redis-backed IdempotencyStore. Keys expire on
// their own, so PurgeExpired has nothing to do.
func NewIdempotencyStore(client *redislib.Client, ttl time.Duration) repository.IdempotencyStore {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return &idempotencyStore{
		client: client,
		prefix: "idempotency:",
		ttl:    ttl,
	}
}

func (r *idempotencyStore) Exists(ctx context.Context, requestID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(requestID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *idempotencyStore) Save(ctx context.Context, record domain.IdempotencyRecord) error {
	if record.RequestID == "" {
		return domain.ErrRequestIDRequired
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ttl := time.Until(record.ExpiresAt)
	if record.ExpiresAt.IsZero() {
		ttl = r.ttl
	}
	if ttl <= 0 {
		return domain.WrapError(domain.ErrCodeInvalid, "idempotency record already expired", domain.ErrInvalidPayload)
	}

	ok, err := r.client.SetNX(ctx, r.key(record.RequestID), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDuplicateRequest
	}
	return nil
}

func (r *idempotencyStore) GetAggregateID(ctx context.Context, requestID string) (string, bool, error) {
	result, err := r.client.Get(ctx, r.key(requestID)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", false, nil
		}
		return "", false, err
	}

	var record domain.IdempotencyRecord
	if err := json.Unmarshal([]byte(result), &record); err != nil {
		return "", false, err
	}
	return record.AggregateID, true, nil
}

func (r *idempotencyStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *idempotencyStore) key(id string) string {
	return fmt.Sprintf("%s%s", r.prefix, id)
}
