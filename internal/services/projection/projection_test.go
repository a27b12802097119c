package projection

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository/bolt"
)

type fakeCRM struct {
	err       error
	published []domain.Event
}

func (f *fakeCRM) PublishSaleEvent(_ context.Context, evt domain.Event) error {
	f.published = append(f.published, evt)
	return f.err
}

type release struct {
	saleID     string
	productIDs []string
}

type fakeReleaser struct {
	err      error
	releases []release
}

func (f *fakeReleaser) ReleaseReservation(_ context.Context, saleID string, productIDs []string) error {
	f.releases = append(f.releases, release{saleID: saleID, productIDs: productIDs})
	return f.err
}

func TestLog_WritesEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLog(zap.New(core))

	sale := &domain.Sale{ID: "sale-1", Status: domain.SaleStatusActive}
	events, err := sale.Cancel("damaged")
	require.NoError(t, err)

	require.NoError(t, p.Handle(context.Background(), events[0]))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "sale event", entry.Message)
	assert.Equal(t, "damaged", entry.ContextMap()["reason"])
}

func TestCRM_SwallowsDownstreamFailure(t *testing.T) {
	crm := &fakeCRM{err: errors.New("crm down")}
	p := NewCRM(crm, zaptest.NewLogger(t))

	sale := &domain.Sale{ID: "sale-1", Status: domain.SaleStatusActive}
	events, err := sale.Cancel("")
	require.NoError(t, err)

	assert.NoError(t, p.Handle(context.Background(), events[0]))
	assert.Len(t, crm.published, 1)
}

func TestInventory_ReleasesStock(t *testing.T) {
	ctx := context.Background()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "sales.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	sales := bolt.NewSaleRepository(store)

	sale, err := domain.NewSale("customer-1", "branch-1")
	require.NoError(t, err)
	var events []domain.Event
	for _, productID := range []string{"p1", "p2"} {
		raised, err := sale.AddItem(productID, 2, decimal.RequireFromString("3.00"))
		require.NoError(t, err)
		events = append(events, raised...)
	}
	require.NoError(t, sales.Create(ctx, sale, events))

	releaser := &fakeReleaser{}
	p := NewInventory(sales, releaser, zaptest.NewLogger(t))

	removed, err := sale.RemoveItem("p2")
	require.NoError(t, err)
	require.NoError(t, p.Handle(ctx, removed[0]))

	cancelled, err := sale.Cancel("")
	require.NoError(t, err)
	require.NoError(t, p.Handle(ctx, cancelled[0]))

	require.Len(t, releaser.releases, 2)
	assert.Equal(t, []string{"p2"}, releaser.releases[0].productIDs)
	// The stored sale still holds both lines; the cancelled event reads storage.
	assert.Equal(t, []string{"p1", "p2"}, releaser.releases[1].productIDs)

	modified, err := domain.NewSale("customer-1", "branch-1")
	require.NoError(t, err)
	added, err := modified.AddItem("p9", 1, decimal.RequireFromString("1.00"))
	require.NoError(t, err)
	require.NoError(t, p.Handle(ctx, added[0]))
	assert.Len(t, releaser.releases, 2)

	releaser.err = errors.New("inventory down")
	assert.NoError(t, p.Handle(ctx, removed[0]))

	missing := &domain.Sale{ID: "missing", Status: domain.SaleStatusActive}
	orphan, err := missing.Cancel("")
	require.NoError(t, err)
	assert.NoError(t, p.Handle(ctx, orphan[0]))
}
