package graph

import (
	"strconv"
	"strings"
)

// Coerce converts a command-line value into a typed value. The rules are
// tried in order and the first match wins:
//
//   - "true" / "false" in any case become a bool;
//   - an all-digit string becomes an int64 (uint64 when it does not fit);
//   - digits with exactly one '.' and an optional leading '-' become a float64;
//   - anything else stays a string.
//
// Coerce never fails; values that cannot be represented stay strings.
func Coerce(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}

	if isDigits(raw) {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return u
		}
		return raw
	}

	if isDecimal(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if strings.Count(s, ".") != 1 {
		return false
	}
	return isDigits(strings.Replace(s, ".", "", 1))
}
