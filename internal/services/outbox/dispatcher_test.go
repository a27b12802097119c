package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fastygo/sales/domain"
	"github.com/fastygo/sales/repository"
	"github.com/fastygo/sales/repository/bolt"
)

type memoryOutbox struct {
	mu       sync.Mutex
	records  map[string]*domain.OutboxRecord
	fetchErr error
	fetches  int
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{records: map[string]*domain.OutboxRecord{}}
}

func (m *memoryOutbox) add(t *testing.T, record domain.OutboxRecord) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = &record
}

func (m *memoryOutbox) get(id string) domain.OutboxRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *memoryOutbox) FetchPending(_ context.Context, limit, maxRetries int) ([]domain.OutboxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []domain.OutboxRecord
	for _, record := range m.records {
		if record.Eligible(maxRetries) {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryOutbox) MarkProcessed(_ context.Context, id string, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return domain.ErrOutboxRecordNotFound
	}
	record.Status = domain.OutboxStatusProcessed
	record.ProcessedAt = &processedAt
	return nil
}

func (m *memoryOutbox) MarkFailed(_ context.Context, id string, reason string, permanent bool, maxRetries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return domain.ErrOutboxRecordNotFound
	}
	record.Status = domain.OutboxStatusFailed
	record.LastError = &reason
	if permanent {
		record.RetryCount = max(record.RetryCount, maxRetries)
	} else {
		record.RetryCount++
	}
	return nil
}

func (m *memoryOutbox) Stats(context.Context) (repository.OutboxStats, error) {
	return repository.OutboxStats{}, nil
}

func (m *memoryOutbox) PurgeProcessed(context.Context, time.Time) (int, error) {
	return 0, nil
}

type recordingSubscriber struct {
	name string
	mu   sync.Mutex
	seen []domain.Event
	fail func(call int) error
	boom bool
}

func (s *recordingSubscriber) Name() string { return s.name }

func (s *recordingSubscriber) Handle(_ context.Context, evt domain.Event) error {
	s.mu.Lock()
	s.seen = append(s.seen, evt)
	call := len(s.seen)
	s.mu.Unlock()
	if s.boom {
		panic("subscriber exploded")
	}
	if s.fail != nil {
		return s.fail(call)
	}
	return nil
}

func (s *recordingSubscriber) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func cancelledRecord(t *testing.T, saleID string) domain.OutboxRecord {
	t.Helper()
	sale := &domain.Sale{ID: saleID, CustomerID: "c", BranchID: "b", Status: domain.SaleStatusActive}
	events, err := sale.Cancel("test")
	require.NoError(t, err)
	record, err := domain.NewOutboxRecord(events[0], time.Now())
	require.NoError(t, err)
	return record
}

func testConfig() Config {
	return Config{BatchSize: 10, MaxRetries: 3, PollInterval: 5 * time.Millisecond, ErrorCooldown: 5 * time.Millisecond}
}

func TestProcessBatch_DeliversToEverySubscriber(t *testing.T) {
	store := newMemoryOutbox()
	record := cancelledRecord(t, "sale-1")
	store.add(t, record)

	first := &recordingSubscriber{name: "first"}
	second := &recordingSubscriber{name: "second"}
	d := NewDispatcher(store, []Subscriber{first, second}, testConfig(), zaptest.NewLogger(t))

	result, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Fetched: 1, Processed: 1}, result)

	require.Equal(t, 1, first.calls())
	require.Equal(t, 1, second.calls())
	cancelled, ok := first.seen[0].(domain.SaleCancelled)
	require.True(t, ok)
	assert.Equal(t, "test", cancelled.Reason)
	assert.Equal(t, "sale-1", cancelled.SaleID)

	stored := store.get(record.ID)
	assert.Equal(t, domain.OutboxStatusProcessed, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestProcessBatch_SubscriberFailureIsRetried(t *testing.T) {
	store := newMemoryOutbox()
	record := cancelledRecord(t, "sale-1")
	store.add(t, record)

	flaky := &recordingSubscriber{name: "flaky", fail: func(call int) error {
		if call == 1 {
			return errors.New("temporarily unavailable")
		}
		return nil
	}}
	steady := &recordingSubscriber{name: "steady"}
	d := NewDispatcher(store, []Subscriber{flaky, steady}, testConfig(), zaptest.NewLogger(t))

	result, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, steady.calls())

	stored := store.get(record.ID)
	assert.Equal(t, domain.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "temporarily unavailable")

	result, err = d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, steady.calls())
	assert.Equal(t, domain.OutboxStatusProcessed, store.get(record.ID).Status)
}

func TestProcessBatch_PanicIsIsolated(t *testing.T) {
	store := newMemoryOutbox()
	record := cancelledRecord(t, "sale-1")
	store.add(t, record)

	broken := &recordingSubscriber{name: "broken", boom: true}
	after := &recordingSubscriber{name: "after"}
	d := NewDispatcher(store, []Subscriber{broken, after}, testConfig(), zaptest.NewLogger(t))

	result, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, after.calls())
	assert.Contains(t, *store.get(record.ID).LastError, "subscriber panic")
}

func TestProcessBatch_UnknownEventTypeIsTerminal(t *testing.T) {
	store := newMemoryOutbox()
	record := cancelledRecord(t, "sale-1")
	record.EventType = "sale.teleported"
	store.add(t, record)
	broken := cancelledRecord(t, "sale-2")
	broken.EventData = []byte(`{"sale_id":`)
	store.add(t, broken)

	sub := &recordingSubscriber{name: "sub"}
	d := NewDispatcher(store, []Subscriber{sub}, testConfig(), zaptest.NewLogger(t))

	result, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rejected)
	assert.Zero(t, sub.calls())

	for _, id := range []string{record.ID, broken.ID} {
		stored := store.get(id)
		assert.Equal(t, domain.OutboxStatusFailed, stored.Status)
		assert.Equal(t, 3, stored.RetryCount)
	}

	result, err = d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Fetched)
}

func TestProcessBatch_StopsAfterRetryCap(t *testing.T) {
	store := newMemoryOutbox()
	record := cancelledRecord(t, "sale-1")
	store.add(t, record)

	sub := &recordingSubscriber{name: "down", fail: func(int) error { return errors.New("down") }}
	d := NewDispatcher(store, []Subscriber{sub}, testConfig(), zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		_, err := d.ProcessBatch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, sub.calls())
	assert.Equal(t, 3, store.get(record.ID).RetryCount)
}

func TestProcessBatch_OldestFirst(t *testing.T) {
	store := newMemoryOutbox()
	newer := cancelledRecord(t, "sale-new")
	older := cancelledRecord(t, "sale-old")
	older.OccurredAt = newer.OccurredAt.Add(-time.Minute)
	store.add(t, newer)
	store.add(t, older)

	sub := &recordingSubscriber{name: "sub"}
	d := NewDispatcher(store, []Subscriber{sub}, testConfig(), zaptest.NewLogger(t))

	_, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sub.calls())
	assert.Equal(t, "sale-old", sub.seen[0].Meta().SaleID)
	assert.Equal(t, "sale-new", sub.seen[1].Meta().SaleID)
}

func TestRun_StopsOnCancelAndSurvivesPollErrors(t *testing.T) {
	store := newMemoryOutbox()
	store.fetchErr = errors.New("database unavailable")

	d := NewDispatcher(store, nil, testConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.fetches >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

type blockingSubscriber struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSubscriber) Name() string { return "blocking" }

func (s *blockingSubscriber) Handle(context.Context, domain.Event) error {
	close(s.entered)
	<-s.release
	return nil
}

func TestRun_CancelWaitsForBatchInFlight(t *testing.T) {
	store := newMemoryOutbox()
	record := cancelledRecord(t, "sale-1")
	store.add(t, record)

	sub := &blockingSubscriber{entered: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(store, []Subscriber{sub}, testConfig(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-sub.entered
	cancel()

	waited := make(chan error, 1)
	go func() { waited <- d.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Run returned while a batch was in flight")
	case <-waited:
		t.Fatal("Wait returned while a batch was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sub.release)
	require.NoError(t, <-done)
	require.NoError(t, <-waited)
	assert.Equal(t, domain.OutboxStatusProcessed, store.get(record.ID).Status)
}

func TestWait_ReturnsWhenNeverStarted(t *testing.T) {
	d := NewDispatcher(newMemoryOutbox(), nil, testConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Wait(ctx))
}

func TestDispatcher_WithBoltOutbox(t *testing.T) {
	ctx := context.Background()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "sales.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sales := bolt.NewSaleRepository(store)
	outboxRepo := bolt.NewOutboxRepository(store)

	sale, err := domain.NewSale("customer-1", "branch-1")
	require.NoError(t, err)
	events, err := sale.AddItem("product-1", 2, decimal.RequireFromString("9.99"))
	require.NoError(t, err)
	require.NoError(t, sales.Create(ctx, sale, events))

	sub := &recordingSubscriber{name: "sub"}
	d := NewDispatcher(outboxRepo, []Subscriber{sub}, testConfig(), zaptest.NewLogger(t))

	result, err := d.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	stats, err := outboxRepo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Zero(t, stats.Pending)
}
