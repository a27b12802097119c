package integration

import (
	"context"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type reserveRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type reserveResponse struct {
	Reserved bool `json:"reserved"`
}

type releaseRequest struct {
	SaleID     string   `json:"sale_id"`
	ProductIDs []string `json:"product_ids"`
}

// InventoryClient reserves and releases stock in the inventory service.
type InventoryClient struct {
	http *httpClient
}

func NewInventoryClient(cfg ClientConfig, logger *zap.Logger) *InventoryClient {
	if cfg.Name == "" {
		cfg.Name = "inventory"
	}
	return &InventoryClient{http: newHTTPClient(cfg, logger)}
}

// Reserve asks for quantity units of productID. 409 means not enough stock.
func (c *InventoryClient) Reserve(ctx context.Context, productID string, quantity int) (bool, error) {
	var out reserveResponse
	status, err := c.http.do(ctx, fasthttp.MethodPost, "/api/v1/reservations",
		reserveRequest{ProductID: productID, Quantity: quantity}, &out, fasthttp.StatusConflict)
	if err != nil {
		return false, err
	}
	if status == fasthttp.StatusConflict {
		return false, nil
	}
	return out.Reserved, nil
}

// ReleaseReservation frees the stock held for the given products of a sale.
func (c *InventoryClient) ReleaseReservation(ctx context.Context, saleID string, productIDs []string) error {
	_, err := c.http.do(ctx, fasthttp.MethodPost, "/api/v1/reservations/release",
		releaseRequest{SaleID: saleID, ProductIDs: productIDs}, nil)
	return err
}

// MockInventory reserves everything and logs releases.
type MockInventory struct {
	logger *zap.Logger
}

func NewMockInventory(logger *zap.Logger) *MockInventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockInventory{logger: logger}
}

func (m *MockInventory) Reserve(_ context.Context, productID string, quantity int) (bool, error) {
	m.logger.Debug("mock inventory: reserved", zap.String("product_id", productID), zap.Int("quantity", quantity))
	return true, nil
}

func (m *MockInventory) ReleaseReservation(_ context.Context, saleID string, productIDs []string) error {
	m.logger.Info("mock inventory: reservation released", zap.String("sale_id", saleID), zap.Strings("product_ids", productIDs))
	return nil
}
