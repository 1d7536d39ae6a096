package types

import (
	"strconv"
	"strings"
	"time"
)

// ParseUnixSeconds reads a provider timestamp given as unix seconds, either
// quoted or bare. The result is UTC; ok is false when value is empty or not
// a number.
func ParseUnixSeconds(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(int64(f), 0).UTC(), true
}

// UnixSecondsOr is ParseUnixSeconds with a fallback for unusable input.
func UnixSecondsOr(value string, fallback time.Time) time.Time {
	if t, ok := ParseUnixSeconds(value); ok {
		return t
	}
	return fallback.UTC()
}
