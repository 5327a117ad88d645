package history

import (
	"context"
	"fmt"

	"ms-checkin/internal/models"
)

type Store interface {
	RecordScan(ctx context.Context, entry models.ScanHistory) error
}

// Recorder writes scan events to the scan_history audit table. It is used directly as a scan
// observer when Kafka is off, and as the handler of the audit consumer when it is on.
type Recorder struct {
	Store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{Store: store}
}

func (r *Recorder) Record(ctx context.Context, event models.ScanEvent) error {
	if event.EventID == "" || event.UniqueID == "" {
		return fmt.Errorf("scan event missing ids: %+v", event)
	}
	if err := r.Store.RecordScan(ctx, models.NewScanHistory(event)); err != nil {
		return fmt.Errorf("record scan %s: %w", event.EventID, err)
	}
	return nil
}

func (r *Recorder) PublishScanEvent(ctx context.Context, event models.ScanEvent) error {
	return r.Record(ctx, event)
}
