package outbox

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

func TestJanitor_Sweep(t *testing.T) {
	ctx := context.Background()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "sales.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sales := bolt.NewSaleRepository(store)
	outboxRepo := bolt.NewOutboxRepository(store)
	idempotency := bolt.NewIdempotencyStore(store)

	sale, err := domain.NewSale("customer-1", "branch-1")
	require.NoError(t, err)
	events, err := sale.AddItem("product-1", 1, decimal.RequireFromString("1.00"))
	require.NoError(t, err)
	require.NoError(t, sales.Create(ctx, sale, events))

	records, err := outboxRepo.FetchPending(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NoError(t, outboxRepo.MarkProcessed(ctx, records[0].ID, time.Now().Add(-10*24*time.Hour)))
	require.NoError(t, outboxRepo.MarkProcessed(ctx, records[1].ID, time.Now()))

	expired := domain.NewIdempotencyRecord("req-old", domain.CommandCreateSale, sale.ID, time.Now().Add(-8*24*time.Hour), domain.DefaultIdempotencyTTL)
	require.NoError(t, idempotency.Save(ctx, expired))

	janitor, err := NewJanitor(outboxRepo, idempotency, JanitorConfig{Retention: 7 * 24 * time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, err)
	janitor.Sweep(ctx)

	stats, err := outboxRepo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	purged, err := idempotency.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestJanitor_RejectsBadSchedule(t *testing.T) {
	_, err := NewJanitor(nil, nil, JanitorConfig{Schedule: "every now and then"}, nil)
	assert.Error(t, err)
}

func TestJanitor_StartStop(t *testing.T) {
	janitor, err := NewJanitor(nil, nil, JanitorConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	janitor.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, janitor.Stop(ctx))
}
