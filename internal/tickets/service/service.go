package tickets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
	"ms-checkin/internal/tickets/scan"
)

// ErrScanContention is returned when the ticket kept changing underneath every attempt.
var ErrScanContention = errors.New("ticket modified concurrently, scan not applied")

type TicketDBLayer interface {
	FindByUniqueID(ctx context.Context, uniqueID string) (*models.Ticket, error)
	PatchScan(ctx context.Context, uniqueID string, expectedCounter int, patch models.ScanPatch) (bool, error)
	GetStats(ctx context.Context) (models.TicketStats, error)
	ListScanHistory(ctx context.Context, uniqueID string, limit int) ([]models.ScanHistory, error)
}

// Locker serializes work on one key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ScanObserver is told about every processed scan. Errors are logged, never returned to the scanner.
type ScanObserver interface {
	PublishScanEvent(ctx context.Context, event models.ScanEvent) error
}

type TicketService struct {
	DB        TicketDBLayer
	Locker    Locker
	Observers []ScanObserver
	Logger    *logger.Logger

	Now             func() time.Time
	RapidFireWindow time.Duration
	MaxAttempts     int
	// NotifyTimeout bounds how long one event may spend in the observers.
	NotifyTimeout time.Duration

	notifying sync.WaitGroup
}

func NewTicketService(db TicketDBLayer, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:              db,
		Logger:          log,
		Now:             time.Now,
		RapidFireWindow: scan.RapidFireWindow,
		MaxAttempts:     5,
		NotifyTimeout:   10 * time.Second,
	}
}

// Scan runs the scan state machine for uniqueID on behalf of scanner (empty when unknown).
// clientTimestamp is advisory and only recorded; the service clock decides everything.
func (s *TicketService) Scan(ctx context.Context, uniqueID, scanner string, clientTimestamp *int64) (models.ScanResult, error) {
	result, at, err := s.scanLocked(ctx, uniqueID, scanner)
	if err != nil {
		s.Logger.Error("SCAN", fmt.Sprintf("Scan of %s by %q failed: %v", uniqueID, scanner, err))
		return models.ScanResult{}, err
	}

	s.Logger.LogScan(uniqueID, scanner, result.Outcome, result.Message)
	s.notify(models.ScanEvent{
		EventID:         uuid.NewString(),
		UniqueID:        uniqueID,
		Status:          result.Status.WireStatus(),
		Outcome:         result.Outcome,
		Message:         result.Message,
		ScannerIdentity: scanner,
		CheckinCounter:  counterOf(result),
		ClientTimestamp: clientTimestamp,
		ServerTimestamp: at,
	})
	return result, nil
}

func (s *TicketService) scanLocked(ctx context.Context, uniqueID, scanner string) (models.ScanResult, time.Time, error) {
	if s.Locker != nil {
		release, err := s.Locker.Acquire(ctx, uniqueID)
		if err != nil {
			return models.ScanResult{}, time.Time{}, fmt.Errorf("lock ticket %s: %w", uniqueID, err)
		}
		defer release()
	}

	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		ticket, err := s.DB.FindByUniqueID(ctx, uniqueID)
		if errors.Is(err, db.ErrTicketNotFound) {
			ticket = nil
		} else if err != nil {
			return models.ScanResult{}, time.Time{}, fmt.Errorf("load ticket %s: %w", uniqueID, err)
		}

		now := s.now()
		decision := scan.Decide(ticket, scanner, now, s.window())
		if decision.Patch == nil {
			return decision.Result(), now, nil
		}

		applied, err := s.DB.PatchScan(ctx, uniqueID, ticket.CheckinCounter, *decision.Patch)
		if err != nil {
			return models.ScanResult{}, time.Time{}, fmt.Errorf("update ticket %s: %w", uniqueID, err)
		}
		if applied {
			return decision.Result(), now, nil
		}
		s.Logger.Debug("SCAN", fmt.Sprintf("Ticket %s changed during scan (attempt %d/%d), re-evaluating", uniqueID, attempt, attempts))
	}

	return models.ScanResult{}, time.Time{}, fmt.Errorf("%w: %s", ErrScanContention, uniqueID)
}

// notify hands event to the observers in the background. The scan is already committed, so a slow
// broker must not hold the scanner's response.
func (s *TicketService) notify(event models.ScanEvent) {
	if len(s.Observers) == 0 {
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s.notifying.Add(1)
	go func() {
		defer s.notifying.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		for _, o := range s.Observers {
			if err := o.PublishScanEvent(ctx, event); err != nil {
				s.Logger.Warn("SCAN", fmt.Sprintf("Failed to publish scan event %s for %s: %v", event.EventID, event.UniqueID, err))
			}
		}
	}()
}

// Drain waits for in-flight observer deliveries. Call it before closing the observers.
func (s *TicketService) Drain() {
	s.notifying.Wait()
}

func (s *TicketService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *TicketService) window() time.Duration {
	if s.RapidFireWindow <= 0 {
		return scan.RapidFireWindow
	}
	return s.RapidFireWindow
}

func counterOf(r models.ScanResult) int {
	if r.Ticket == nil {
		return 0
	}
	return r.Ticket.CheckinCounter
}

func (s *TicketService) GetTicket(ctx context.Context, uniqueID string) (*models.TicketSnapshot, error) {
	ticket, err := s.DB.FindByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", uniqueID, err)
	}
	snap := ticket.Snapshot()
	return &snap, nil
}

func (s *TicketService) GetStats(ctx context.Context) (models.TicketStats, error) {
	stats, err := s.DB.GetStats(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load ticket stats: %w", err)
	}
	return stats, nil
}

func (s *TicketService) GetScanHistory(ctx context.Context, uniqueID string, limit int) ([]models.ScanHistory, error) {
	entries, err := s.DB.ListScanHistory(ctx, uniqueID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scan history for %s: %w", uniqueID, err)
	}
	return entries, nil
}
