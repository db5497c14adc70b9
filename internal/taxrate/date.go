package taxrate

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultMinDate is the earliest delivery date rates are published for.
var DefaultMinDate = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

// Timestamp errors. They are returned unwrapped.
var (
	ErrInvalidTimestamp = eris.New("taxrate: invalid timestamp")
	ErrBeforeMinDate    = eris.New("taxrate: timestamp before minimum supported date")
)

// timestampLayouts are the ISO 8601 forms accepted for row timestamps. The
// fractional second is optional and may have any number of digits.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO 8601 date or date-time and checks that its
// calendar date, in its own offset, is not before minDate. Timestamps
// without an offset are returned in UTC.
func ParseTimestamp(raw string, minDate time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if n := len(s); s[n-1] == 'z' {
		s = s[:n-1] + "Z"
	}

	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if !minDate.IsZero() && dateBefore(ts, minDate) {
			return time.Time{}, ErrBeforeMinDate
		}
		return ts, nil
	}
	return time.Time{}, ErrInvalidTimestamp
}

func dateBefore(ts, floor time.Time) bool {
	y, m, d := ts.Date()
	my, mm, md := floor.Date()
	if y != my {
		return y < my
	}
	if m != mm {
		return m < mm
	}
	return d < md
}
