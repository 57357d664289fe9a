package main

import (
	"strings"
	"time"
)

// datetimeLayout is the ledger timestamp format, local time with milliseconds.
const datetimeLayout = "2006-01-02 15:04:05.000"

func formatDatetime(t time.Time) string {
	return t.Local().Format(datetimeLayout)
}

// parseDatetime reads a ledger timestamp. Older ledgers may carry RFC3339 times.
func parseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(datetimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
