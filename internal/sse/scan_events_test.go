package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/models"
)

func TestEmit_ReachesAllSubscribers(t *testing.T) {
	e := NewScanEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := e.Subscribe(ctx)
	b := e.Subscribe(ctx)
	assert.Equal(t, 2, e.ClientCount())

	require.NoError(t, e.PublishScanEvent(ctx, models.ScanEvent{EventID: "ev-1", UniqueID: "tkt-1"}))

	for _, ch := range []chan models.ScanEvent{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "ev-1", ev.EventID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestEmit_DoesNotBlockOnSlowClient(t *testing.T) {
	e := NewScanEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			e.Emit(models.ScanEvent{UniqueID: "tkt-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full client buffer")
	}
	assert.Len(t, ch, cap(ch))
}

func TestSubscribe_RemovedOnCancel(t *testing.T) {
	e := NewScanEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
	assert.Equal(t, 0, e.ClientCount())
}
