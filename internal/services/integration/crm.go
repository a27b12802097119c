package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/sales/domain"
)

// SaleEventEnvelope is the body posted to the CRM for every sale event.
type SaleEventEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	SaleID     string          `json:"sale_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewSaleEventEnvelope wraps evt for delivery to external systems.
func NewSaleEventEnvelope(evt domain.Event) (SaleEventEnvelope, error) {
	payload, err := domain.EncodeEvent(evt)
	if err != nil {
		return SaleEventEnvelope{}, err
	}
	meta := evt.Meta()
	return SaleEventEnvelope{
		EventID:    meta.EventID,
		EventType:  string(evt.Type()),
		SaleID:     meta.SaleID,
		OccurredAt: meta.OccurredAt,
		Payload:    payload,
	}, nil
}

// CRMClient talks to the customer relationship service.
type CRMClient struct {
	http *httpClient
}

func NewCRMClient(cfg ClientConfig, logger *zap.Logger) *CRMClient {
	if cfg.Name == "" {
		cfg.Name = "crm"
	}
	return &CRMClient{http: newHTTPClient(cfg, logger)}
}

// CustomerExists asks the CRM for the customer. 404 means the customer is unknown.
func (c *CRMClient) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	status, err := c.http.do(ctx, fasthttp.MethodGet, "/api/v1/customers/"+url.PathEscape(customerID), nil, nil, fasthttp.StatusNotFound)
	if err != nil {
		return false, err
	}
	return status != fasthttp.StatusNotFound, nil
}

// PublishSaleEvent forwards a sale event to the CRM timeline.
func (c *CRMClient) PublishSaleEvent(ctx context.Context, evt domain.Event) error {
	envelope, err := NewSaleEventEnvelope(evt)
	if err != nil {
		return fmt.Errorf("build crm envelope: %w", err)
	}
	_, err = c.http.do(ctx, fasthttp.MethodPost, "/api/v1/sales/events", envelope, nil)
	return err
}

// MockCRM accepts every customer and logs published events.
type MockCRM struct {
	logger *zap.Logger
}

func NewMockCRM(logger *zap.Logger) *MockCRM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockCRM{logger: logger}
}

func (m *MockCRM) CustomerExists(_ context.Context, customerID string) (bool, error) {
	m.logger.Debug("mock crm: customer accepted", zap.String("customer_id", customerID))
	return true, nil
}

func (m *MockCRM) PublishSaleEvent(_ context.Context, evt domain.Event) error {
	m.logger.Info("mock crm: sale event received",
		zap.String("event_type", string(evt.Type())),
		zap.String("sale_id", evt.Meta().SaleID),
	)
	return nil
}
