package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotTimeline(t *testing.T) {
	snap := &MeetingSnapshot{
		StartTime: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC),
	}

	before := time.Date(2026, 8, 31, 8, 59, 0, 0, time.UTC)
	during := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	atEnd := snap.EndTime

	assert.False(t, snap.HasStarted(before))
	assert.True(t, snap.HasStarted(snap.StartTime), "start is inclusive")
	assert.False(t, snap.HasEnded(during))
	assert.True(t, snap.HasEnded(atEnd), "end is inclusive")

	assert.Equal(t, time.Date(2026, 8, 31, 9, 5, 0, 0, time.UTC), snap.CheckInDeadline(5*time.Minute))
}

func TestSnapshotAuthorizes(t *testing.T) {
	snap := &MeetingSnapshot{
		Organizer: Organizer{Email: "Maria.Rossi@example.com"},
		Attendees: []Attendee{
			{Email: "jan.kowalski@example.com"},
			{Email: "sam.chen@example.com"},
		},
	}

	assert.True(t, snap.Authorizes("maria.rossi@example.com"))
	assert.True(t, snap.Authorizes("MARIA.ROSSI@EXAMPLE.COM"))
	assert.True(t, snap.Authorizes("Jan.Kowalski@example.com"))
	assert.False(t, snap.Authorizes("intruder@example.com"))
	assert.False(t, snap.Authorizes(""))
}

func TestSessionActive(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	var nilSession *Session
	assert.False(t, nilSession.Active(now))

	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).Active(now), "empty identity is signed out")
	assert.True(t, (&Session{Identity: "maria.rossi@example.com", ExpiresAt: now.Add(time.Minute)}).Active(now))
	assert.False(t, (&Session{Identity: "maria.rossi@example.com", ExpiresAt: now}).Active(now), "expiry is inclusive")
}

func TestOccupancyStateString(t *testing.T) {
	assert.Equal(t, "free", StateFree.String())
	assert.Equal(t, "upcoming", StateUpcoming.String())
	assert.Equal(t, "pending_check_in", StatePendingCheckIn.String())
	assert.Equal(t, "occupied_locked", StateOccupiedLocked.String())
}

func TestRoomLabel(t *testing.T) {
	plain := Room{DisplayName: "Aquarium"}
	assert.Equal(t, "Aquarium", plain.Label())

	located := Room{DisplayName: "Aquarium", Department: "Vertrieb", Floor: "2"}
	assert.Equal(t, "Aquarium  [ Vertrieb - 2 ]", located.Label())
}
