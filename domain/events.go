package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the tag persisted next to every serialized event.
type EventType string

const (
	EventSaleCreated   EventType = "sale.created"
	EventSaleModified  EventType = "sale.modified"
	EventSaleCancelled EventType = "sale.cancelled"
	EventItemCancelled EventType = "sale.item_cancelled"
)

// Event is the closed set of facts raised by the sale aggregate.
type Event interface {
	Type() EventType
	Meta() EventMeta
}

// EventMeta is shared by every event variant.
type EventMeta struct {
	EventID    string    `json:"event_id"`
	SaleID     string    `json:"sale_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newEventMeta(saleID string) EventMeta {
	return EventMeta{
		EventID:    uuid.NewString(),
		SaleID:     saleID,
		OccurredAt: time.Now().UTC(),
	}
}

type SaleCreated struct {
	EventMeta
	SaleNumber int64  `json:"sale_number"`
	CustomerID string `json:"customer_id"`
	BranchID   string `json:"branch_id"`
}

func (e SaleCreated) Type() EventType { return EventSaleCreated }
func (e SaleCreated) Meta() EventMeta { return e.EventMeta }

type SaleModified struct {
	EventMeta
	ProductIDs []string `json:"product_ids"`
}

func (e SaleModified) Type() EventType { return EventSaleModified }
func (e SaleModified) Meta() EventMeta { return e.EventMeta }

type SaleCancelled struct {
	EventMeta
	Reason string `json:"reason"`
}

func (e SaleCancelled) Type() EventType { return EventSaleCancelled }
func (e SaleCancelled) Meta() EventMeta { return e.EventMeta }

type ItemCancelled struct {
	EventMeta
	ProductID string `json:"product_id"`
}

func (e ItemCancelled) Type() EventType { return EventItemCancelled }
func (e ItemCancelled) Meta() EventMeta { return e.EventMeta }

type eventDecoder func(data []byte) (Event, error)

func decodeAs[T Event](data []byte) (Event, error) {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// eventRegistry is the complete list of tags the outbox can carry.
var eventRegistry = map[EventType]eventDecoder{
	EventSaleCreated:   decodeAs[SaleCreated],
	EventSaleModified:  decodeAs[SaleModified],
	EventSaleCancelled: decodeAs[SaleCancelled],
	EventItemCancelled: decodeAs[ItemCancelled],
}

// KnownEventType reports whether tag resolves to an event variant.
func KnownEventType(tag string) bool {
	_, ok := eventRegistry[EventType(tag)]
	return ok
}

// EncodeEvent serializes an event payload for the outbox.
func EncodeEvent(evt Event) ([]byte, error) {
	if evt == nil {
		return nil, ErrInvalidPayload
	}
	if _, ok := eventRegistry[evt.Type()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, evt.Type())
	}
	return json.Marshal(evt)
}

// DecodeEvent resolves tag through the registry and decodes data into the variant.
func DecodeEvent(tag string, data []byte) (Event, error) {
	decode, ok := eventRegistry[EventType(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, tag)
	}
	evt, err := decode(data)
	if err != nil {
		return nil, WrapError(ErrCodeInvalid, "invalid event payload", err)
	}
	if evt.Meta().SaleID == "" {
		return nil, fmt.Errorf("%w: missing sale id", ErrInvalidPayload)
	}
	return evt, nil
}
