package occupancy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FallbackSubject is shown when no usable subject can be recovered at all
const FallbackSubject = "Private Meeting"

// previewLimit caps how much of the body preview is promoted into a subject
const previewLimit = 60

// filialePattern extracts the "Filiale: X" token the booking form writes into
// the event body. The backend sometimes overwrites the subject with the
// organizer's display name, so the body is the only place the label survives.
var filialePattern = regexp.MustCompile(`(?i)filiale\s*:\s*([^\r\n.;]+)`)

// SubjectWellFormed reports whether a subject looks like one produced by the
// booking form ("Filiale : Description"). A well-formed subject is kept as-is,
// which makes repair idempotent.
func SubjectWellFormed(subject string) bool {
	return strings.Contains(subject, ":") && strings.TrimSpace(subject) != ""
}

// RepairSubject recovers a displayable subject from a possibly corrupted
// snapshot. A subject equal to the organizer's display name is a known
// backend defect and treated the same as an empty one. Recovery order:
// the subject already on screen for the same event (if well-formed), a
// "Filiale: X" token parsed from the body preview, a truncated body preview,
// and finally FallbackSubject.
func RepairSubject(subject, organizerName, bodyPreview, cachedSubject string) string {
	trimmed := strings.TrimSpace(subject)
	corrupted := trimmed == "" || strings.EqualFold(trimmed, strings.TrimSpace(organizerName))
	if !corrupted {
		return subject
	}

	if SubjectWellFormed(cachedSubject) {
		return cachedSubject
	}

	if m := filialePattern.FindStringSubmatch(bodyPreview); m != nil {
		return "Filiale: " + strings.TrimSpace(m[1])
	}

	if preview := strings.TrimSpace(bodyPreview); preview != "" {
		return truncate(preview, previewLimit)
	}

	return FallbackSubject
}

// truncate shortens s to at most limit runes, marking the cut
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
