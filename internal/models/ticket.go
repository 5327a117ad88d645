package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is one team's entry credential. Only the scan path mutates it after creation.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	UniqueID        string     `bun:"unique_id,pk" json:"uniqueId"`
	TeamName        string     `bun:"team_name,notnull" json:"teamName"`
	LeaderName      string     `bun:"leader_name,notnull" json:"leaderName"`
	TeamMemberCount *int       `bun:"team_member_count" json:"teamMemberCount,omitempty"`
	RoomNumber      string     `bun:"room_number,nullzero" json:"roomNumber,omitempty"`
	SlotNumber      string     `bun:"slot_number,nullzero" json:"slotNumber,omitempty"`
	IsCheckedIn     bool       `bun:"is_checked_in,notnull,default:false" json:"isCheckedIn"`
	CheckedInAt     *time.Time `bun:"checked_in_at" json:"checkedInAt,omitempty"`
	CheckinCounter  int        `bun:"checkin_counter,notnull,default:0" json:"checkinCounter"`
	LastScanTime    int64      `bun:"last_scan_time,notnull,default:0" json:"lastScanTime"` // unix ms
	ScannedBy       string     `bun:"scanned_by,nullzero" json:"scannedBy,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// TicketSnapshot is the public view of a ticket returned to scanners.
type TicketSnapshot struct {
	TeamName        string     `json:"teamName"`
	LeaderName      string     `json:"leaderName"`
	TeamMemberCount *int       `json:"teamMemberCount,omitempty"`
	RoomNumber      string     `json:"roomNumber,omitempty"`
	SlotNumber      string     `json:"slotNumber,omitempty"`
	CheckedInAt     *time.Time `json:"checkedInAt,omitempty"`
	CheckinCounter  int        `json:"checkinCounter"`
	ScannedBy       string     `json:"scannedBy,omitempty"`
}

func (t Ticket) Snapshot() TicketSnapshot {
	return TicketSnapshot{
		TeamName:        t.TeamName,
		LeaderName:      t.LeaderName,
		TeamMemberCount: t.TeamMemberCount,
		RoomNumber:      t.RoomNumber,
		SlotNumber:      t.SlotNumber,
		CheckedInAt:     t.CheckedInAt,
		CheckinCounter:  t.CheckinCounter,
		ScannedBy:       t.ScannedBy,
	}
}

// ScanPatch holds the five fields an accepted scan writes in one statement.
type ScanPatch struct {
	IsCheckedIn    bool
	CheckedInAt    time.Time
	CheckinCounter int
	LastScanTime   int64
	ScannedBy      string
}

// TicketStats summarises check-in progress across all tickets.
type TicketStats struct {
	Total      int `json:"total"`
	CheckedIn  int `json:"checkedIn"`
	TotalScans int `json:"totalScans"`
}
