package core

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidID = errors.New("id must be a positive integer")

// maxAmount keeps sums of a month's records far away from int64 overflow.
const maxAmount = int64(1e15)

// ParseAmount converts a whole-won amount string to an integer.
//
// Surrounding spaces and thousands separators ("12,000") are accepted. Signs,
// decimals and anything that is not a digit are rejected.
//
//	ParseAmount("12000")  -> 12000, nil
//	ParseAmount("12,000") -> 12000, nil
//	ParseAmount("0")      -> 0, nil
//	ParseAmount("-5")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.Contains(s, ",") {
		if !groupedThousands(s) {
			return 0, ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v > maxAmount {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// groupedThousands reports whether commas in s separate groups of exactly three digits.
func groupedThousands(s string) bool {
	parts := strings.Split(s, ",")
	if len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// FormatAmount renders an amount with thousands separators, as shown in tables.
func FormatAmount(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// ParseID parses a positive record or reference identifier.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}
