// Package naive handles the zone-less wall-clock timestamps exchanged with the
// clinic API ("2026-02-11T12:00:00"). Values are never converted between
// zones: the hour and minute the user typed are the hour and minute sent.
package naive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// Layout is the wire format for timestamps.
	Layout = "2006-01-02T15:04:05"
	// InputLayout is the value format of a date-time input control.
	InputLayout = "2006-01-02T15:04"
	// DateLayout is a calendar date.
	DateLayout = "2006-01-02"
	// DisplayLayout is used when a timestamp is shown to the user.
	DisplayLayout = "2006-01-02 15:04"
	// ClockLayout is a slot time as returned by the availability endpoint.
	ClockLayout = "15:04"
)

// parse layouts, most specific first. Offsets are parsed so they can be
// dropped; the wall-clock fields are kept as written.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	Layout,
	InputLayout,
	"2006-01-02 15:04:05",
	DisplayLayout,
	DateLayout,
}

// Parse reads any of the timestamp shapes the API or an input control may
// produce. The result carries the same year/month/day/hour/minute/second as
// the input; any zone designator is discarded, not applied.
func Parse(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Time{}, nil
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return Time{wall(t)}, nil
		}
	}
	return Time{}, fmt.Errorf("naive: cannot parse %q as a timestamp", s)
}

// wall rebuilds t from its own fields in a fixed container location so two
// values with the same wall clock compare equal regardless of source offset.
func wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ToNaiveLocalString converts a date-time control value ("2026-02-11T12:00")
// into the wire format ("2026-02-11T12:00:00"). Seconds default to 00. Empty
// or unparseable input yields "".
func ToNaiveLocalString(value string) string {
	t, err := Parse(value)
	if err != nil || t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// FromTime formats t using its own wall-clock fields.
func FromTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// ToDateTimeInputValue joins a date ("2026-11-11") and a clock ("10:30") into
// a date-time control value ("2026-11-11T10:30").
func ToDateTimeInputValue(date, clock string) string {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return ""
	}
	return date + "T" + clock
}

// ToCalendarDateString truncates an ISO-prefixed string to its date part.
// Strings shorter than a date are returned unchanged.
func ToCalendarDateString(s string) string {
	if len(s) < len(DateLayout) {
		return s
	}
	return s[:len(DateLayout)]
}

// CalendarDateOf returns the YYYY-MM-DD of t in t's own location.
func CalendarDateOf(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Today is the calendar date of now, read in now's location.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// Range returns the inclusive [from, to] date window of the given number of
// days ending on now's date.
func Range(days int, now time.Time) (from, to string) {
	if days <= 0 {
		days = 1
	}
	start := now.AddDate(0, 0, -(days - 1))
	return start.Format(DateLayout), now.Format(DateLayout)
}

// Time is a zone-less timestamp. The embedded time.Time always lives in UTC
// as a neutral container; its fields are the wall clock.
type Time struct {
	time.Time
}

// Of wraps t, keeping its wall-clock fields.
func Of(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{wall(t)}
}

// Date returns the YYYY-MM-DD part, or "" for the zero value.
func (t Time) Date() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// String returns the wire format.
func (t Time) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// Display returns "YYYY-MM-DD HH:mm", or "" for the zero value.
func (t Time) Display() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayLayout)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(Layout))
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("naive: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
