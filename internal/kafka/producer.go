package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{Writer: writer, Topic: topic}
}

// PublishScanEvent streams a processed scan keyed by ticket, so one ticket's events stay ordered.
func (p *Producer) PublishScanEvent(ctx context.Context, event models.ScanEvent) error {
	msg, err := encodeScanEvent(event)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

func encodeScanEvent(event models.ScanEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.UniqueID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("ticket.scanned")},
			{Key: "outcome", Value: []byte(event.Outcome)},
		},
	}, nil
}
