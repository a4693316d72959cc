package occupancy_test

import (
	"testing"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/config"
	"github.com/ThxTiger/roomkiosk/internal/models"
	"github.com/ThxTiger/roomkiosk/internal/occupancy"
	"github.com/stretchr/testify/assert"
)

func snapshotAt(now time.Time, startOffset, endOffset time.Duration, checkedIn bool) *models.MeetingSnapshot {
	return &models.MeetingSnapshot{
		EventID: "E1",
		Subject: "Filiale Nord: Planung",
		Organizer: models.Organizer{
			Name:  "Maria Rossi",
			Email: "maria.rossi@example.com",
		},
		Attendees:   []models.Attendee{{Email: "jan.kowalski@example.com"}},
		StartTime:   now.Add(startOffset),
		EndTime:     now.Add(endOffset),
		IsCheckedIn: checkedIn,
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	grace := config.DefaultCheckInGrace

	t.Run("NoSnapshotIsFree", func(t *testing.T) {
		res := occupancy.Evaluate(nil, now, occupancy.Memory{}, grace)
		assert.Equal(t, models.StateFree, res.State)
		assert.Equal(t, occupancy.SlotNone, res.Slot)
	})

	t.Run("LapsedMeetingIsFreeEvenWhenCheckedIn", func(t *testing.T) {
		snap := snapshotAt(now, -time.Hour, -time.Minute, true)
		res := occupancy.Evaluate(snap, now, occupancy.Memory{}, grace)
		assert.Equal(t, models.StateFree, res.State)
		assert.Equal(t, occupancy.SlotNone, res.Slot)
	})

	t.Run("MeetingEndingExactlyNowIsFree", func(t *testing.T) {
		snap := snapshotAt(now, -time.Hour, 0, true)
		res := occupancy.Evaluate(snap, now, occupancy.Memory{}, grace)
		assert.Equal(t, models.StateFree, res.State)
	})

	t.Run("FutureMeetingIsUpcoming", func(t *testing.T) {
		snap := snapshotAt(now, 10*time.Minute, 40*time.Minute, false)
		res := occupancy.Evaluate(snap, now, occupancy.Memory{}, grace)
		assert.Equal(t, models.StateUpcoming, res.State)
		assert.Equal(t, occupancy.SlotCheckIn, res.Slot)
		assert.Equal(t, snap.StartTime, res.Target)
		// The slot holds a zero reading once the start passes, never a
		// blank line.
		assert.Equal(t, occupancy.FormatRemaining(0), res.ExpiryLabel)
	})

	t.Run("StartedCheckedInIsLocked", func(t *testing.T) {
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, true)
		res := occupancy.Evaluate(snap, now, occupancy.Memory{}, grace)
		assert.Equal(t, models.StateOccupiedLocked, res.State)
		assert.True(t, res.Lock)
		assert.Equal(t, occupancy.SlotMeetingEnd, res.Slot)
		assert.Equal(t, snap.EndTime, res.Target)
	})

	t.Run("StartedNotCheckedInIsPending", func(t *testing.T) {
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, false)
		res := occupancy.Evaluate(snap, now, occupancy.Memory{}, grace)
		assert.Equal(t, models.StatePendingCheckIn, res.State)
		assert.False(t, res.Lock)
		assert.Equal(t, occupancy.SlotCheckIn, res.Slot)
		assert.Equal(t, snap.StartTime.Add(grace), res.Target)
		assert.Equal(t, occupancy.ExpiredLabel, res.ExpiryLabel)
	})

	t.Run("ReleasedEventNeverRelocks", func(t *testing.T) {
		// Backend lag: the meeting was manually ended but the poll still
		// reports it checked in under the same event id.
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, true)
		mem := occupancy.Memory{ReleasedEventID: "E1"}
		res := occupancy.Evaluate(snap, now, mem, grace)
		assert.Equal(t, models.StatePendingCheckIn, res.State)
		assert.False(t, res.Lock)
		assert.False(t, res.ClearReleased)
	})

	t.Run("DifferentEventClearsReleaseSuppression", func(t *testing.T) {
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, false)
		mem := occupancy.Memory{ReleasedEventID: "E-old"}
		res := occupancy.Evaluate(snap, now, mem, grace)
		assert.Equal(t, models.StatePendingCheckIn, res.State)
		assert.True(t, res.ClearReleased)
	})

	t.Run("DifferentEventLockClearsSuppression", func(t *testing.T) {
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, true)
		mem := occupancy.Memory{ReleasedEventID: "E-old"}
		res := occupancy.Evaluate(snap, now, mem, grace)
		assert.Equal(t, models.StateOccupiedLocked, res.State)
		assert.True(t, res.Lock)
		assert.True(t, res.ClearReleased)
	})

	t.Run("NoMeetingClearsReleaseSuppression", func(t *testing.T) {
		res := occupancy.Evaluate(nil, now, occupancy.Memory{ReleasedEventID: "E1"}, grace)
		assert.Equal(t, models.StateFree, res.State)
		assert.True(t, res.ClearReleased)
	})

	t.Run("Idempotence", func(t *testing.T) {
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, false)
		mem := occupancy.Memory{}
		first := occupancy.Evaluate(snap, now, mem, grace)
		second := occupancy.Evaluate(snap, now, mem, grace)
		assert.Equal(t, first, second)
	})

	t.Run("CorruptedSubjectRepairedFromMemory", func(t *testing.T) {
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, false)
		snap.Subject = "Maria Rossi" // overwritten by the backend
		mem := occupancy.Memory{
			ShownSubject:        "Filiale Nord: Planung",
			ShownSubjectEventID: "E1",
		}
		res := occupancy.Evaluate(snap, now, mem, grace)
		assert.Equal(t, "Filiale Nord: Planung", res.Subject)
	})

	t.Run("CachedSubjectIgnoredForDifferentEvent", func(t *testing.T) {
		snap := snapshotAt(now, -time.Minute, 29*time.Minute, false)
		snap.Subject = ""
		snap.BodyPreview = "Filiale: West"
		mem := occupancy.Memory{
			ShownSubject:        "Filiale Nord: Planung",
			ShownSubjectEventID: "E-other",
		}
		res := occupancy.Evaluate(snap, now, mem, grace)
		assert.Equal(t, "Filiale: West", res.Subject)
	})
}
