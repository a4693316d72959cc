package models

// OccupancyState represents the derived occupancy of a room. It is never
// stored; it is recomputed from the latest snapshot on every poll.
type OccupancyState int

const (
	// StateFree means no meeting is active or due
	StateFree OccupancyState = iota
	// StateUpcoming means a meeting exists but has not started yet
	StateUpcoming
	// StatePendingCheckIn means a meeting has started and is waiting for
	// someone to check in before the grace period runs out
	StatePendingCheckIn
	// StateOccupiedLocked means a checked-in meeting is in progress and the
	// room display is locked to it
	StateOccupiedLocked
)

// String returns the string representation of an occupancy state
func (s OccupancyState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateUpcoming:
		return "upcoming"
	case StatePendingCheckIn:
		return "pending_check_in"
	case StateOccupiedLocked:
		return "occupied_locked"
	}
	return "unknown"
}
