package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ScanStatus string

const (
	ScanStatusNotFound ScanStatus = "not_found"
	ScanStatusSuccess  ScanStatus = "success"
	ScanStatusWarning  ScanStatus = "warning"
)

// WireStatus is the status string sent to scanner clients. A missing ticket is reported as "error".
func (s ScanStatus) WireStatus() string {
	if s == ScanStatusNotFound {
		return "error"
	}
	return string(s)
}

// ScanResult is the outcome of one scan request.
type ScanResult struct {
	Status  ScanStatus
	Message string
	// Outcome names the rule that produced the result (accepted, replay, rapid_fire, conflict, not_found).
	Outcome string
	Ticket  *TicketSnapshot
}

type ScanRequest struct {
	UniqueID  string `json:"uniqueId"`
	Timestamp *int64 `json:"timestamp,omitempty"`
	ScannedBy string `json:"scannedBy,omitempty"`
}

type ScanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Ticket  *TicketSnapshot `json:"ticket,omitempty"`
}

func (r ScanResult) Response() ScanResponse {
	return ScanResponse{
		Status:  r.Status.WireStatus(),
		Message: r.Message,
		Ticket:  r.Ticket,
	}
}

// ScanEvent is published for every processed scan, accepted or not.
type ScanEvent struct {
	EventID         string    `json:"eventId"`
	UniqueID        string    `json:"uniqueId"`
	Status          string    `json:"status"`
	Outcome         string    `json:"outcome"`
	Message         string    `json:"message"`
	ScannerIdentity string    `json:"scannerIdentity,omitempty"`
	CheckinCounter  int       `json:"checkinCounter"`
	ClientTimestamp *int64    `json:"clientTimestamp,omitempty"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
}

// ScanHistory is the audit row written for each scan event.
type ScanHistory struct {
	bun.BaseModel `bun:"table:scan_history"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID         string    `bun:"event_id,unique,notnull" json:"eventId"`
	UniqueID        string    `bun:"unique_id,notnull" json:"uniqueId"`
	Status          string    `bun:"status,notnull" json:"status"`
	Outcome         string    `bun:"outcome,notnull" json:"outcome"`
	Message         string    `bun:"message" json:"message"`
	ScannerIdentity string    `bun:"scanner_identity,nullzero" json:"scannerIdentity,omitempty"`
	CheckinCounter  int       `bun:"checkin_counter,notnull" json:"checkinCounter"`
	ClientTimestamp *int64    `bun:"client_timestamp" json:"clientTimestamp,omitempty"`
	ScannedAt       time.Time `bun:"scanned_at,notnull" json:"scannedAt"`
}

func NewScanHistory(ev ScanEvent) ScanHistory {
	return ScanHistory{
		EventID:         ev.EventID,
		UniqueID:        ev.UniqueID,
		Status:          ev.Status,
		Outcome:         ev.Outcome,
		Message:         ev.Message,
		ScannerIdentity: ev.ScannerIdentity,
		CheckinCounter:  ev.CheckinCounter,
		ClientTimestamp: ev.ClientTimestamp,
		ScannedAt:       ev.ServerTimestamp,
	}
}
