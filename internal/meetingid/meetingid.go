// Package meetingid canonicalizes Zoom meeting identifiers into the spaced form used by the ledger
package meetingid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidIdentifier is returned when a raw meeting ID cannot be normalized
var ErrInvalidIdentifier = errors.New("invalid meeting identifier")

// groupings maps a digit count to the size of each space separated group
var groupings = map[int][]int{
	10: {3, 3, 4},
	11: {3, 4, 4},
}

// Normalize converts a raw numeric meeting ID into its canonical spaced form.
// 11 digits become 3-4-4 groups and 10 digits become 3-3-4 groups.
func Normalize(raw string) (string, error) {
	if !isDigits(raw) {
		return "", fmt.Errorf("%w: %q is not numeric", ErrInvalidIdentifier, raw)
	}

	groups, ok := groupings[len(raw)]
	if !ok {
		return "", fmt.Errorf("%w: %q has %d digits, expected 10 or 11", ErrInvalidIdentifier, raw, len(raw))
	}

	parts := make([]string, 0, len(groups))
	offset := 0
	for _, size := range groups {
		parts = append(parts, raw[offset:offset+size])
		offset += size
	}

	return strings.Join(parts, " "), nil
}

// FromInt normalizes a meeting ID as returned by the Zoom API
func FromInt(id int64) (string, error) {
	return Normalize(strconv.FormatInt(id, 10))
}

// IsNormalized reports whether s is already in canonical spaced form
func IsNormalized(s string) bool {
	normalized, err := Normalize(strings.ReplaceAll(s, " ", ""))
	return err == nil && normalized == s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
