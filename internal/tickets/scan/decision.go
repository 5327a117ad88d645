// Package scan holds the ticket scan state machine. It is pure: no storage, no clock.
package scan

import (
	"fmt"
	"time"

	"ms-checkin/internal/models"
)

// RapidFireWindow is how long after an accepted scan a repeat read is treated as the same gesture.
const RapidFireWindow = 3000 * time.Millisecond

const (
	MessageNotFound         = "Ticket not found"
	MessageFirstCheckin     = "Ticket successfully scanned - First check-in!"
	MessageAlreadyCheckedIn = "Welcome! You are already checked in"
)

func conflictMessage(existing string) string {
	return fmt.Sprintf("Ticket already scanned by %s", existing)
}

func multipleScansMessage(attempts int) string {
	return fmt.Sprintf("Ticket scanned multiple times (%d attempts)", attempts)
}

// ScannerMatch relates the requesting scanner to the one recorded on the ticket.
type ScannerMatch int

const (
	// ScannerUnrecorded: the ticket has no owning scanner yet.
	ScannerUnrecorded ScannerMatch = iota
	// ScannerSame: requester equals the recorded owner.
	ScannerSame
	// ScannerAnonymous: an owner is recorded but the request carries no identity.
	ScannerAnonymous
	// ScannerConflict: both sides are set and differ.
	ScannerConflict
)

func (m ScannerMatch) String() string {
	switch m {
	case ScannerUnrecorded:
		return "unrecorded"
	case ScannerSame:
		return "same"
	case ScannerAnonymous:
		return "anonymous"
	case ScannerConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

func MatchScanner(existing, requested string) ScannerMatch {
	switch {
	case existing == "":
		return ScannerUnrecorded
	case requested == "":
		return ScannerAnonymous
	case existing == requested:
		return ScannerSame
	default:
		return ScannerConflict
	}
}

// Kind names the rule that fired.
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindConflict  Kind = "conflict"
	KindReplay    Kind = "replay"
	KindRapidFire Kind = "rapid_fire"
	KindAccepted  Kind = "accepted"
)

type Input struct {
	Found        bool
	Match        ScannerMatch
	WithinWindow bool
	Counter      int
}

type Transition struct {
	Status models.ScanStatus
	Kind   Kind
	Mutate bool
}

// Classify is the transition table. Rules are checked in order; the first match wins.
func Classify(in Input) Transition {
	switch {
	case !in.Found:
		return Transition{Status: models.ScanStatusNotFound, Kind: KindNotFound}
	case in.Match == ScannerConflict:
		return Transition{Status: models.ScanStatusWarning, Kind: KindConflict}
	case in.Counter > 0 && in.WithinWindow:
		if in.Counter == 1 && (in.Match == ScannerSame || in.Match == ScannerUnrecorded) {
			return Transition{Status: models.ScanStatusSuccess, Kind: KindReplay}
		}
		return Transition{Status: models.ScanStatusWarning, Kind: KindRapidFire}
	case in.Counter == 0:
		return Transition{Status: models.ScanStatusSuccess, Kind: KindAccepted, Mutate: true}
	default:
		return Transition{Status: models.ScanStatusWarning, Kind: KindAccepted, Mutate: true}
	}
}

// Decision is the full result of applying a scan to a ticket state.
type Decision struct {
	Transition
	Message string
	// Patch is non-nil only when the scan is accepted.
	Patch *models.ScanPatch
	// Ticket is the state to report back: the stored ticket, with Patch applied when present.
	Ticket *models.Ticket
}

func (d Decision) Result() models.ScanResult {
	res := models.ScanResult{
		Status:  d.Status,
		Message: d.Message,
		Outcome: string(d.Kind),
	}
	if d.Ticket != nil {
		snap := d.Ticket.Snapshot()
		res.Ticket = &snap
	}
	return res
}

// Decide applies one scan by requested (empty for none) at now to ticket t (nil when not found).
func Decide(t *models.Ticket, requested string, now time.Time, window time.Duration) Decision {
	if t == nil {
		tr := Classify(Input{Found: false})
		return Decision{Transition: tr, Message: MessageNotFound}
	}

	nowMs := now.UnixMilli()
	in := Input{
		Found:        true,
		Match:        MatchScanner(t.ScannedBy, requested),
		WithinWindow: nowMs-t.LastScanTime < window.Milliseconds(),
		Counter:      t.CheckinCounter,
	}
	tr := Classify(in)
	view := *t

	switch tr.Kind {
	case KindConflict:
		return Decision{Transition: tr, Message: conflictMessage(t.ScannedBy), Ticket: &view}

	case KindReplay:
		if view.CheckedInAt == nil {
			at := now
			view.CheckedInAt = &at
		}
		return Decision{Transition: tr, Message: MessageFirstCheckin, Ticket: &view}

	case KindRapidFire:
		msg := MessageAlreadyCheckedIn
		if t.CheckinCounter != 1 {
			msg = multipleScansMessage(t.CheckinCounter)
		}
		return Decision{Transition: tr, Message: msg, Ticket: &view}
	}

	newCounter := t.CheckinCounter + 1
	scannedBy := t.ScannedBy
	if scannedBy == "" {
		scannedBy = requested
	}
	checkedInAt := now
	if t.CheckedInAt != nil {
		checkedInAt = *t.CheckedInAt
	}
	patch := &models.ScanPatch{
		IsCheckedIn:    true,
		CheckedInAt:    checkedInAt,
		CheckinCounter: newCounter,
		LastScanTime:   nowMs,
		ScannedBy:      scannedBy,
	}
	view.IsCheckedIn = true
	view.CheckedInAt = &checkedInAt
	view.CheckinCounter = newCounter
	view.LastScanTime = nowMs
	view.ScannedBy = scannedBy

	var msg string
	switch t.CheckinCounter {
	case 0:
		msg = MessageFirstCheckin
	case 1:
		msg = MessageAlreadyCheckedIn
	default:
		msg = multipleScansMessage(newCounter)
	}
	return Decision{Transition: tr, Message: msg, Patch: patch, Ticket: &view}
}
