package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus tracks delivery of a captured event.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxRecord is one serialized event waiting for, or done with, dispatch.
type OutboxRecord struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	EventData   json.RawMessage `json:"event_data"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Status      OutboxStatus    `json:"status"`
	RetryCount  int             `json:"retry_count"`
	LastError   *string         `json:"last_error,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewOutboxRecord captures evt as a pending record.
func NewOutboxRecord(evt Event, now time.Time) (OutboxRecord, error) {
	data, err := EncodeEvent(evt)
	if err != nil {
		return OutboxRecord{}, err
	}
	return OutboxRecord{
		ID:         uuid.NewString(),
		EventType:  string(evt.Type()),
		EventData:  data,
		OccurredAt: evt.Meta().OccurredAt,
		Status:     OutboxStatusPending,
		CreatedAt:  now.UTC(),
	}, nil
}

// outboxOrderStep separates records written together; postgres keeps microseconds.
const outboxOrderStep = time.Microsecond

// NewOutboxRecords captures events written in one transaction. The dispatcher
// polls by OccurredAt, so each record is stamped strictly after the previous one
// and the slice order is the delivery order, even when an event raised later
// (SaleCreated on number assignment) is placed ahead of earlier ones.
func NewOutboxRecords(events []Event, now time.Time) ([]OutboxRecord, error) {
	records := make([]OutboxRecord, 0, len(events))
	var prev time.Time
	for i, evt := range events {
		record, err := NewOutboxRecord(evt, now)
		if err != nil {
			return nil, err
		}
		at := record.OccurredAt.UTC().Truncate(outboxOrderStep)
		if i > 0 && !at.After(prev) {
			at = prev.Add(outboxOrderStep)
		}
		record.OccurredAt = at
		prev = at
		records = append(records, record)
	}
	return records, nil
}

// Eligible reports whether the dispatcher may still pick the record up.
func (r OutboxRecord) Eligible(maxRetries int) bool {
	if r.Status == OutboxStatusProcessed {
		return false
	}
	return r.RetryCount < maxRetries
}
