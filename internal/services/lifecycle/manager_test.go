package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_ShutdownRunsHooksInReverse(t *testing.T) {
	m := New(time.Second, zaptest.NewLogger(t))

	var order []string
	m.Register("storage", func(context.Context) error {
		order = append(order, "storage")
		return nil
	})
	m.Register("dispatcher", func(context.Context) error {
		order = append(order, "dispatcher")
		return errors.New("still draining")
	})
	m.Register("http", func(context.Context) error {
		order = append(order, "http")
		return nil
	})
	m.Register("ignored", nil)

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still draining")
	assert.Equal(t, []string{"http", "dispatcher", "storage"}, order)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestManager_HooksSeeDeadline(t *testing.T) {
	m := New(50*time.Millisecond, zaptest.NewLogger(t))
	m.Register("slow", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		return ctx.Err()
	})

	err := m.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_SignalContextCancel(t *testing.T) {
	m := New(time.Second, zaptest.NewLogger(t))
	ctx, cancel := m.SignalContext(context.Background())
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}
