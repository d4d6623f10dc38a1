package scheduling

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	// localLayout is RFC3339 without an offset; the calendar service pairs
	// it with an explicit timeZone field so displayed times stay correct
	// regardless of where the server runs.
	localLayout = "2006-01-02T15:04:05"
)

// ClockMinutes parses an HH:mm wall-clock string into minutes since midnight.
func ClockMinutes(clock string) (int, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:mm: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// MinutesClock is the inverse of ClockMinutes.
func MinutesClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate validates a YYYY-MM-DD calendar day.
func ParseDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", date, err)
	}
	return nil
}

// ComposeLocal builds the instant at date+clock in the clinic timezone.
func ComposeLocal(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(localLayout, date+"T"+clock+":00", loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("compose %q %q: %w", date, clock, err)
	}
	return t, nil
}

// ToExternalTimestamp renders date+clock the way the calendar service
// expects: a local RFC3339 datetime with no offset. The caller attaches the
// zone name alongside it.
func ToExternalTimestamp(date, clock string) (string, error) {
	t, err := time.Parse(localLayout, date+"T"+clock+":00")
	if err != nil {
		return "", fmt.Errorf("compose timestamp %q %q: %w", date, clock, err)
	}
	return t.Format(localLayout), nil
}

// FromExternalTimestamp extracts the clinic-local calendar day and
// minute-precision time from a timestamp that may carry its own offset.
func FromExternalTimestamp(ts string, loc *time.Location) (date, clock string, err error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		// The calendar service also hands back offset-less local datetimes.
		t, err = time.ParseInLocation(localLayout, ts, loc)
		if err != nil {
			return "", "", fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		return t.Format(dateLayout), t.Format(clockLayout), nil
	}
	t = t.In(loc)
	return t.Format(dateLayout), t.Format(clockLayout), nil
}
