package models

import (
	"strings"
	"time"
)

// Organizer identifies the person who booked a meeting
type Organizer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Attendee is an invitee on a meeting
type Attendee struct {
	Email string `json:"email"`
}

// MeetingSnapshot is the authoritative description of what is happening in a
// room right now, as returned by the backend's active-meeting query. It is
// replaced wholesale on every poll; no field is updated in place.
type MeetingSnapshot struct {
	EventID     string     `json:"event_id"`
	Subject     string     `json:"subject"`
	Organizer   Organizer  `json:"organizer"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	IsCheckedIn bool       `json:"is_checked_in"`
	BodyPreview string     `json:"body_preview,omitempty"`
}

// HasEnded reports whether the meeting's end time has passed. The backend can
// lag rolling a finished meeting off, so this is checked locally on every poll.
func (m *MeetingSnapshot) HasEnded(now time.Time) bool {
	return !now.Before(m.EndTime)
}

// HasStarted reports whether the meeting's start time has passed
func (m *MeetingSnapshot) HasStarted(now time.Time) bool {
	return !now.Before(m.StartTime)
}

// CheckInDeadline is the instant by which someone must check in before the
// reservation counts as abandoned
func (m *MeetingSnapshot) CheckInDeadline(grace time.Duration) time.Time {
	return m.StartTime.Add(grace)
}

// Authorizes reports whether the given identity may perform identity-gated
// actions on this meeting. The organizer and every invitee qualify; the
// comparison is case-insensitive.
func (m *MeetingSnapshot) Authorizes(email string) bool {
	if email == "" {
		return false
	}
	if strings.EqualFold(email, m.Organizer.Email) {
		return true
	}
	for _, a := range m.Attendees {
		if strings.EqualFold(email, a.Email) {
			return true
		}
	}
	return false
}
