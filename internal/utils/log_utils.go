package utils

import (
	"strings"
	"unicode"
)

// MaxLogStringLength defines the maximum length for user-provided strings in logs
const MaxLogStringLength = 200

// SanitizeLogString sanitizes a user-controlled string (meeting subjects,
// identities, event ids) for safe logging. It truncates long input, replaces
// control characters and escapes format specifiers so a crafted subject cannot
// forge log lines.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	if len(input) > MaxLogStringLength {
		input = input[:MaxLogStringLength] + "... (truncated)"
	}

	// Pre-process CRLF to avoid double spaces
	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	// Replace % with %% to prevent format string issues
	return strings.ReplaceAll(sanitized, "%", "%%")
}
