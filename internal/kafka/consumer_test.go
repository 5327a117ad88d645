package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// fakeReader serves queued messages, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func eventMessage(t *testing.T, offset int64, eventID string) kafka.Message {
	t.Helper()
	ev := sampleEvent()
	ev.EventID = eventID
	msg, err := encodeScanEvent(ev)
	require.NoError(t, err)
	msg.Offset = offset
	return msg
}

func newTestConsumer(r MessageReader) *Consumer {
	return &Consumer{
		Reader:       r,
		Topic:        "checkin.ticket.scanned",
		Logger:       logger.NewWithWriter(io.Discard),
		RetryBackoff: time.Millisecond,
		MaxBackoff:   5 * time.Millisecond,
	}
}

func runConsumer(t *testing.T, c *Consumer, handler func(context.Context, models.ScanEvent) error) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, handler) }()
	return cancel, done
}

func TestConsumer_RetriesFailedHandlerBeforeCommitting(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		eventMessage(t, 5, "ev-5"),
		eventMessage(t, 6, "ev-6"),
	}}

	var mu sync.Mutex
	var handled []string
	failuresLeft := 3
	handler := func(_ context.Context, ev models.ScanEvent) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, ev.EventID)
		if ev.EventID == "ev-5" && failuresLeft > 0 {
			failuresLeft--
			assert.Empty(t, reader.commits(), "nothing may be committed while ev-5 is failing")
			return errors.New("database blip")
		}
		return nil
	}

	cancel, done := runConsumer(t, newTestConsumer(reader), handler)
	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{5, 6}, reader.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ev-5", "ev-5", "ev-5", "ev-5", "ev-6"}, handled)
}

func TestConsumer_DoesNotCommitWhenStoppedMidRetry(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, 9, "ev-9")}}

	attempts := make(chan struct{}, 100)
	handler := func(context.Context, models.ScanEvent) error {
		attempts <- struct{}{}
		return errors.New("still down")
	}

	cancel, done := runConsumer(t, newTestConsumer(reader), handler)
	for i := 0; i < 3; i++ {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatal("handler was not retried")
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, reader.commits())
}

func TestConsumer_SkipsMalformedAndSurvivesFetchErrors(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker unavailable"), errors.New("broker unavailable")},
		queue: []kafka.Message{
			{Offset: 1, Value: []byte("not json")},
			eventMessage(t, 2, "ev-2"),
		},
	}

	var got []string
	var mu sync.Mutex
	handler := func(_ context.Context, ev models.ScanEvent) error {
		mu.Lock()
		got = append(got, ev.EventID)
		mu.Unlock()
		return nil
	}

	cancel, done := runConsumer(t, newTestConsumer(reader), handler)
	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2}, reader.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ev-2"}, got)
}
