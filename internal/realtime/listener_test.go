package realtime_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"nexochat/backend/internal/models"
	"nexochat/backend/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_DeliversUntilClosed(t *testing.T) {
	ctx := context.Background()
	b := realtime.NewMemoryBroker()
	sub, err := b.Subscribe(ctx, "topic")
	require.NoError(t, err)

	var calls atomic.Int32
	l := realtime.Listen(sub, func(models.ChangeEvent) { calls.Add(1) })

	require.NoError(t, b.Publish(ctx, "topic", event("1")))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	l.Close()
	l.Close()
	<-l.Done()
	assert.NoError(t, l.Err())

	// Nothing is delivered after Close returns.
	require.NoError(t, b.Publish(ctx, "topic", event("2")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestListener_ReportsTransportFailure(t *testing.T) {
	ctx := context.Background()
	b := realtime.NewMemoryBroker()
	sub, err := b.Subscribe(ctx, "topic")
	require.NoError(t, err)

	l := realtime.Listen(sub, func(models.ChangeEvent) {})
	b.Disconnect()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
	assert.ErrorIs(t, l.Err(), realtime.ErrDisconnected)
}
