// Package occupancy implements the check-in / occupancy state machine: a pure
// state evaluator, the countdown engine and the monitor that polls the booking
// backend and drives both.
package occupancy

import (
	"time"

	"github.com/ThxTiger/roomkiosk/internal/models"
)

// CountdownSlot identifies which of the two countdown timers a Result arms
type CountdownSlot int

const (
	// SlotNone means no countdown is armed; both timers are disarmed
	SlotNone CountdownSlot = iota
	// SlotCheckIn is the banner countdown (time to start, or check-in deadline)
	SlotCheckIn
	// SlotMeetingEnd is the locked-overlay countdown to the meeting's end
	SlotMeetingEnd
)

// ExpiredLabel is rendered when the check-in deadline passes
const ExpiredLabel = "EXPIRED"

// Memory is the session-scoped state the evaluator consults. Evaluate never
// mutates it; the monitor applies the directives in the Result instead.
type Memory struct {
	// LockedEvent is the snapshot captured when check-in succeeded, held
	// for the duration of the lock
	LockedEvent *models.MeetingSnapshot
	// ReleasedEventID suppresses re-locking on an event the organizer just
	// manually ended, until a poll observes a different event id
	ReleasedEventID string
	// ShownSubject is the repaired subject currently on screen, kept per
	// event so a later corrupted poll cannot regress the display
	ShownSubject        string
	ShownSubjectEventID string
}

// Result is the outcome of one evaluation pass. State and the countdown
// directive fully describe what the display should do; the boolean directives
// tell the monitor which session memory to update.
type Result struct {
	State models.OccupancyState

	// Subject is the repaired subject; all UI uses this, never the raw one
	Subject   string
	Organizer string
	Start     time.Time
	End       time.Time

	// Countdown directive: which slot to arm, at what target, with what
	// label on expiry. SlotNone disarms both slots.
	Slot        CountdownSlot
	Target      time.Time
	ExpiryLabel string

	// Lock asks the monitor to capture the snapshot as the locked event
	Lock bool
	// ClearReleased asks the monitor to forget the released event id
	// because a different event was observed
	ClearReleased bool
}

// Evaluate computes the occupancy state for one poll. It is a pure function
// of the snapshot, the wall clock and the session memory; rules are applied
// in order and the first match wins.
func Evaluate(snapshot *models.MeetingSnapshot, now time.Time, mem Memory, grace time.Duration) Result {
	// No meeting, or a meeting the backend has not rolled off yet: free.
	if snapshot == nil {
		return Result{State: models.StateFree, ClearReleased: mem.ReleasedEventID != ""}
	}
	if snapshot.HasEnded(now) {
		return Result{State: models.StateFree}
	}

	cached := ""
	if mem.ShownSubjectEventID == snapshot.EventID {
		cached = mem.ShownSubject
	}
	subject := RepairSubject(snapshot.Subject, snapshot.Organizer.Name, snapshot.BodyPreview, cached)

	res := Result{
		Subject:   subject,
		Organizer: snapshot.Organizer.Name,
		Start:     snapshot.StartTime,
		End:       snapshot.EndTime,
	}

	if !snapshot.HasStarted(now) {
		res.State = models.StateUpcoming
		res.Slot = SlotCheckIn
		res.Target = snapshot.StartTime
		// When the start passes the slot holds a zero reading until the
		// next poll flips the state to pending check-in.
		res.ExpiryLabel = FormatRemaining(0)
		return res
	}

	if snapshot.IsCheckedIn && snapshot.EventID != mem.ReleasedEventID {
		res.State = models.StateOccupiedLocked
		res.Slot = SlotMeetingEnd
		res.Target = snapshot.EndTime
		res.Lock = true
		res.ClearReleased = mem.ReleasedEventID != ""
		return res
	}

	// Started but not checked in, or manually released and the backend has
	// not caught up yet.
	res.State = models.StatePendingCheckIn
	res.Slot = SlotCheckIn
	res.Target = snapshot.CheckInDeadline(grace)
	res.ExpiryLabel = ExpiredLabel
	if mem.ReleasedEventID != "" && snapshot.EventID != mem.ReleasedEventID {
		res.ClearReleased = true
	}
	return res
}
