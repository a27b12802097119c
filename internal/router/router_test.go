package router

import (
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap/zaptest"

	apiHandler "github.com/fastygo/sales/api/handler"
	"github.com/fastygo/sales/internal/infrastructure/monitor"
	"github.com/fastygo/sales/internal/middleware"
	"github.com/fastygo/sales/internal/services/integration"
	"github.com/fastygo/sales/pkg/httpcontext"
	"github.com/fastygo/sales/repository/bolt"
	saleUC "github.com/fastygo/sales/usecase/sale"
)

type envelope struct {
	Status string                 `json:"status"`
	Code   string                 `json:"code"`
	Data   map[string]interface{} `json:"data"`
	Error  interface{}            `json:"error"`
}

type apiFixture struct {
	client *fasthttp.Client
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	store, err := bolt.Open(filepath.Join(t.TempDir(), "sales.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	uc := saleUC.New(
		bolt.NewSaleRepository(store),
		bolt.NewIdempotencyStore(store),
		integration.NewMockCRM(log),
		integration.NewMockInventory(log),
		saleUC.Options{Logger: log},
	)

	mon := monitor.New(monitor.Dependencies{Bolt: store, Outbox: bolt.NewOutboxRepository(store)}, time.Minute, log)
	mon.Start()
	t.Cleanup(mon.Stop)

	adapter := httpcontext.NewAdapter(time.Second)
	r := New(Handlers{
		Sale:   apiHandler.NewSaleHandler(uc, adapter, log),
		Health: apiHandler.NewHealthHandler(mon, adapter, log),
	}, middleware.JWTAuth("", "", log))

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: r.Handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() {
		_ = server.Shutdown()
		_ = ln.Close()
	})

	return &apiFixture{client: &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}}
}

func (f *apiFixture) call(t *testing.T, method, path, idempotencyKey string, body interface{}) (int, envelope) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://sales.test" + path)
	req.Header.SetMethod(method)
	if idempotencyKey != "" {
		req.Header.Set(httpcontext.HeaderIdempotencyKey, idempotencyKey)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	require.NoError(t, f.client.DoTimeout(req, resp, 2*time.Second))

	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body(), &env))
	return resp.StatusCode(), env
}

func createBody() map[string]interface{} {
	return map[string]interface{}{
		"customer_id": "cust-1",
		"branch_id":   "branch-1",
		"items": []map[string]interface{}{
			{"product_id": "p-1", "quantity": 2, "unit_price": "10.00"},
		},
	}
}

func TestSalesAPI_CreateReplayAndGet(t *testing.T) {
	f := newAPIFixture(t)

	status, created := f.call(t, http.MethodPost, "/api/v1/sales", "req-1", createBody())
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "success", created.Status)
	assert.Equal(t, "active", created.Data["status"])
	assert.EqualValues(t, 1, created.Data["number"])
	saleID, _ := created.Data["id"].(string)
	require.NotEmpty(t, saleID)

	status, replayed := f.call(t, http.MethodPost, "/api/v1/sales", "req-1", createBody())
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, saleID, replayed.Data["id"])
	assert.Equal(t, true, replayed.Data["replayed"])

	status, fetched := f.call(t, http.MethodGet, "/api/v1/sales/"+saleID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cust-1", fetched.Data["customer_id"])
}

func TestSalesAPI_RequestIDFromBody(t *testing.T) {
	f := newAPIFixture(t)

	body := createBody()
	body["request_id"] = "body-req"
	status, first := f.call(t, http.MethodPost, "/api/v1/sales", "", body)
	require.Equal(t, http.StatusCreated, status)

	status, second := f.call(t, http.MethodPost, "/api/v1/sales", "", body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.Data["id"], second.Data["id"])
}

func TestSalesAPI_UpdateAndCancel(t *testing.T) {
	f := newAPIFixture(t)

	_, created := f.call(t, http.MethodPost, "/api/v1/sales", "req-1", createBody())
	saleID, _ := created.Data["id"].(string)

	status, updated := f.call(t, http.MethodPut, "/api/v1/sales/"+saleID, "req-2", map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": "p-1", "quantity": 1, "unit_price": "10.00"},
			{"product_id": "p-2", "quantity": 1, "unit_price": "5.50"},
		},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "15.5", updated.Data["total_amount"])

	status, cancelled := f.call(t, http.MethodPost, "/api/v1/sales/"+saleID+"/cancel", "req-3", map[string]string{"reason": "customer left"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", cancelled.Data["status"])

	status, rejected := f.call(t, http.MethodPut, "/api/v1/sales/"+saleID, "req-4", map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": "p-3", "quantity": 1, "unit_price": "1.00"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", rejected.Status)
}

func TestSalesAPI_Errors(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.call(t, http.MethodGet, "/api/v1/sales/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Code)

	status, env = f.call(t, http.MethodPost, "/api/v1/sales", "", createBody())
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID", env.Code)

	body := createBody()
	body["items"] = []map[string]interface{}{{"product_id": "p-1", "quantity": 25, "unit_price": "1.00"}}
	status, env = f.call(t, http.MethodPost, "/api/v1/sales", "req-big", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "POLICY_VIOLATION", env.Code)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.call(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Status)
	assert.Contains(t, env.Data, "services")
}
