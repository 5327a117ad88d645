package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func sampleEvent() models.ScanEvent {
	ts := int64(1_699_999_999_000)
	return models.ScanEvent{
		EventID:         "ev-1",
		UniqueID:        "tkt-42",
		Status:          "success",
		Outcome:         "accepted",
		Message:         "Ticket successfully scanned - First check-in!",
		ScannerIdentity: "Gate-A",
		CheckinCounter:  1,
		ClientTimestamp: &ts,
		ServerTimestamp: time.UnixMilli(1_700_000_000_000).UTC(),
	}
}

func TestPublishScanEvent_KeyedByTicket(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, Topic: "checkin.ticket.scanned"}

	require.NoError(t, p.PublishScanEvent(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "tkt-42", string(msg.Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "accepted", decoded["outcome"])
	assert.Equal(t, "Gate-A", decoded["scannerIdentity"])

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "ticket.scanned", headers["event-type"])
	assert.Equal(t, "accepted", headers["outcome"])
}

func TestPublishScanEvent_PropagatesWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	p := &Producer{Writer: &fakeWriter{err: boom}}
	assert.ErrorIs(t, p.PublishScanEvent(context.Background(), sampleEvent()), boom)
}

func TestDecodeScanEvent(t *testing.T) {
	msg, err := encodeScanEvent(sampleEvent())
	require.NoError(t, err)

	ev, err := decodeScanEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", ev.EventID)
	assert.Equal(t, int64(1_699_999_999_000), *ev.ClientTimestamp)
	assert.True(t, ev.ServerTimestamp.Equal(time.UnixMilli(1_700_000_000_000)))

	// Ticket id falls back to the message key.
	ev, err = decodeScanEvent(kafka.Message{Key: []byte("from-key"), Value: []byte(`{"eventId":"e2"}`)})
	require.NoError(t, err)
	assert.Equal(t, "from-key", ev.UniqueID)

	_, err = decodeScanEvent(kafka.Message{Value: []byte(`{"uniqueId":"x"}`)})
	assert.Error(t, err)

	_, err = decodeScanEvent(kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
}
