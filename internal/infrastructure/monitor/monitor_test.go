package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository/bolt"
)

func TestMonitor_ReportsBoltAndOutbox(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "sales.db"))
	require.NoError(t, err)

	sale, err := domain.NewSale("customer-1", "branch-1")
	require.NoError(t, err)
	events, err := sale.AddItem("product-1", 1, decimal.RequireFromString("1.00"))
	require.NoError(t, err)
	require.NoError(t, bolt.NewSaleRepository(store).Create(context.Background(), sale, events))

	m := New(Dependencies{Bolt: store, Outbox: bolt.NewOutboxRepository(store)}, time.Hour, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	status := m.GetStatus()
	assert.True(t, m.IsOnline())
	assert.Nil(t, status.PostgreSQL)
	assert.Nil(t, status.Redis)
	require.NotNil(t, status.Bolt)
	assert.True(t, *status.Bolt)
	assert.True(t, status.Outbox.Available)
	assert.Equal(t, 2, status.Outbox.Pending)
	assert.GreaterOrEqual(t, status.Outbox.OldestPendingAge, 0.0)

	require.NoError(t, store.Close())
	m.refresh()
	assert.False(t, m.IsOnline())
	assert.False(t, m.GetStatus().Outbox.Available)
}
