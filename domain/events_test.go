package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRecordRoundTrip(t *testing.T) {
	sale, err := NewSale("customer-1", "branch-1")
	require.NoError(t, err)

	var events []Event
	added, err := sale.AddItem("X", 2, price("9.99"))
	require.NoError(t, err)
	events = append(events, added...)
	created, err := sale.AssignNumber(3)
	require.NoError(t, err)
	events = append(events, created...)
	removed, err := sale.RemoveItem("X")
	require.NoError(t, err)
	events = append(events, removed...)
	cancelled, err := sale.Cancel("customer request")
	require.NoError(t, err)
	events = append(events, cancelled...)

	records, err := NewOutboxRecords(events, time.Now())
	require.NoError(t, err)
	require.Len(t, records, len(events))

	for i, record := range records {
		assert.Equal(t, OutboxStatusPending, record.Status)
		assert.Zero(t, record.RetryCount)
		assert.Contains(t, string(record.EventData), sale.ID)

		decoded, err := DecodeEvent(record.EventType, record.EventData)
		require.NoError(t, err)
		assert.Equal(t, events[i].Type(), decoded.Type())
		assert.Equal(t, events[i].Meta().EventID, decoded.Meta().EventID)
	}

	decoded, err := DecodeEvent(records[1].EventType, records[1].EventData)
	require.NoError(t, err)
	assert.Equal(t, int64(3), decoded.(SaleCreated).SaleNumber)
}

func TestNewOutboxRecordsKeepSliceOrder(t *testing.T) {
	sale, err := NewSale("customer-1", "branch-1")
	require.NoError(t, err)

	added, err := sale.AddItem("X", 2, price("9.99"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	created, err := sale.AssignNumber(1)
	require.NoError(t, err)
	require.True(t, created[0].Meta().OccurredAt.After(added[0].Meta().OccurredAt))

	records, err := NewOutboxRecords(append(created, added...), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, string(EventSaleCreated), records[0].EventType)
	assert.Equal(t, string(EventSaleModified), records[1].EventType)
	assert.True(t, records[1].OccurredAt.After(records[0].OccurredAt))
	assert.Equal(t, records[0].OccurredAt, records[0].OccurredAt.Truncate(time.Microsecond))
}

func TestDecodeEventUnknownTag(t *testing.T) {
	_, err := DecodeEvent("SaleCreatedEvent", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.False(t, KnownEventType("SaleCreatedEvent"))
	assert.True(t, KnownEventType(string(EventSaleCancelled)))
}

func TestDecodeEventBadPayload(t *testing.T) {
	_, err := DecodeEvent(string(EventSaleCancelled), []byte(`{"reason":`))
	require.Error(t, err)
	assert.True(t, IsDomainError(err, ErrCodeInvalid))

	_, err = DecodeEvent(string(EventSaleCancelled), []byte(`{"reason":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestOutboxRecordEligible(t *testing.T) {
	record := OutboxRecord{Status: OutboxStatusFailed, RetryCount: 4}
	assert.True(t, record.Eligible(5))
	record.RetryCount = 5
	assert.False(t, record.Eligible(5))
	record = OutboxRecord{Status: OutboxStatusProcessed}
	assert.False(t, record.Eligible(5))
}

func TestPublicMessageHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "sale not found", PublicMessage(ErrSaleNotFound))
	assert.Equal(t, "internal error", PublicMessage(assert.AnError))
	wrapped := WrapError(ErrCodeConflict, "could not save", assert.AnError)
	assert.Equal(t, "could not save", PublicMessage(wrapped))
}
