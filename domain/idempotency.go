package domain

import "time"

// DefaultIdempotencyTTL is how long a processed request id is remembered.
const DefaultIdempotencyTTL = 7 * 24 * time.Hour

// Command type tags stored with idempotency records.
const (
	CommandCreateSale  = "CreateSale"
	CommandUpdateSale  = "UpdateSale"
	CommandConfirmSale = "ConfirmSale"
	CommandCancelSale  = "CancelSale"
)

// IdempotencyRecord maps a client request id to the aggregate it produced.
type IdempotencyRecord struct {
	RequestID   string    `json:"request_id"`
	CommandType string    `json:"command_type"`
	AggregateID string    `json:"aggregate_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewIdempotencyRecord stamps a record created at now that lives for ttl.
func NewIdempotencyRecord(requestID, commandType, aggregateID string, now time.Time, ttl time.Duration) IdempotencyRecord {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	now = now.UTC()
	return IdempotencyRecord{
		RequestID:   requestID,
		CommandType: commandType,
		AggregateID: aggregateID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (r *IdempotencyRecord) IsExpired(reference time.Time) bool {
	if r == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !r.ExpiresAt.After(reference)
}
