package occupancy_test

import (
	"testing"

	"github.com/ThxTiger/roomkiosk/internal/occupancy"
	"github.com/stretchr/testify/assert"
)

func TestRepairSubject(t *testing.T) {
	t.Run("WellFormedSubjectIsKept", func(t *testing.T) {
		subject := occupancy.RepairSubject("Filiale Nord: Quartalsplanung", "Maria Rossi", "irrelevant", "")
		assert.Equal(t, "Filiale Nord: Quartalsplanung", subject)
	})

	t.Run("RepairIsIdempotent", func(t *testing.T) {
		once := occupancy.RepairSubject("", "Maria Rossi", "Filiale: Nord", "")
		twice := occupancy.RepairSubject(once, "Maria Rossi", "Filiale: Nord", once)
		assert.Equal(t, once, twice)
	})

	t.Run("SubjectEqualToOrganizerNameIsCorrupted", func(t *testing.T) {
		// Known backend defect: Outlook overwrites the subject with the
		// organizer's display name.
		subject := occupancy.RepairSubject("Maria Rossi", "Maria Rossi", "", "Filiale Nord: Planung")
		assert.Equal(t, "Filiale Nord: Planung", subject)
	})

	t.Run("CachedSubjectPreferredOverBody", func(t *testing.T) {
		subject := occupancy.RepairSubject("", "Maria Rossi", "Filiale: Sued", "Filiale Nord: Planung")
		assert.Equal(t, "Filiale Nord: Planung", subject)
	})

	t.Run("MalformedCacheFallsThroughToBodyToken", func(t *testing.T) {
		subject := occupancy.RepairSubject("", "Maria Rossi", "Besprechung Filiale: Sued. Details folgen", "no separator here")
		assert.Equal(t, "Filiale: Sued", subject)
	})

	t.Run("BodyPreviewTruncated", func(t *testing.T) {
		long := "Langer Freitext ohne das erwartete Muster, der deutlich mehr als sechzig Zeichen enthaelt und gekuerzt werden muss"
		subject := occupancy.RepairSubject("", "Maria Rossi", long, "")
		assert.Len(t, []rune(subject), 63) // 60 runes + "..."
		assert.Contains(t, subject, "Langer Freitext")
	})

	t.Run("FallbackLabel", func(t *testing.T) {
		subject := occupancy.RepairSubject("", "Maria Rossi", "", "")
		assert.Equal(t, occupancy.FallbackSubject, subject)
	})

	t.Run("WhitespaceOnlySubjectIsCorrupted", func(t *testing.T) {
		subject := occupancy.RepairSubject("   ", "Maria Rossi", "", "")
		assert.Equal(t, occupancy.FallbackSubject, subject)
	})
}
