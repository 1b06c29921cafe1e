// Package window decides when live location sharing is permitted for a
// booking. It is pure and shared by the server and the device client.
package window

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// LeadTime is how long before the scheduled start sharing opens.
	LeadTime = 10 * time.Minute
	// DefaultEvaluationInterval is how often a mounted client re-evaluates.
	DefaultEvaluationInterval = 30 * time.Second
)

// ErrInvalidSchedule is returned for a scheduled date or time that cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ClosePolicy controls whether an open window ever closes on its own.
// The zero value never closes: sharing runs until it is stopped or the
// booking leaves the confirmed state.
type ClosePolicy struct {
	After time.Duration
}

// CloseNever keeps the window open indefinitely once it opens.
var CloseNever = ClosePolicy{}

// CloseAfter ends the window d after the scheduled start.
func CloseAfter(d time.Duration) ClosePolicy {
	return ClosePolicy{After: d}
}

func (p ClosePolicy) String() string {
	if p.After <= 0 {
		return "never"
	}
	return "after " + p.After.String()
}

// Window is the result of one evaluation.
type Window struct {
	Open                  bool    `json:"open"`
	Ended                 bool    `json:"ended"`
	MinutesUntil          float64 `json:"minutesUntil"`
	MinutesUntilAvailable *int    `json:"minutesUntilAvailable"`
}

// ParseClock converts a free-text clock time ("2:30 PM", "12:00am",
// "14:00", "14:00:00") into 24-hour hour and minute.
func ParseClock(scheduledTime string) (int, int, error) {
	raw := strings.TrimSpace(scheduledTime)
	lower := strings.ReplaceAll(strings.ToLower(raw), ".", "")
	isPM := strings.Contains(lower, "pm")
	isAM := strings.Contains(lower, "am")

	cleaned := strings.NewReplacer("am", "", "pm", "").Replace(lower)
	cleaned = strings.TrimSpace(cleaned)

	parts := strings.Split(cleaned, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("%w: time %q has no minutes", ErrInvalidSchedule, scheduledTime)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: hour in %q", ErrInvalidSchedule, scheduledTime)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: minute in %q", ErrInvalidSchedule, scheduledTime)
	}

	if isPM && hour != 12 {
		hour += 12
	}
	if isAM && hour == 12 {
		hour = 0
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time %q out of range", ErrInvalidSchedule, scheduledTime)
	}
	return hour, minute, nil
}

// ParseDate reads the calendar date of scheduledDate. Both plain dates
// and RFC 3339 timestamps are accepted; only year, month and day are kept.
func ParseDate(scheduledDate string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(scheduledDate)
	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSchedule, scheduledDate)
}

// SessionStart combines a booking's scheduled date and time into an instant.
func SessionStart(scheduledDate, scheduledTime string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(scheduledDate, loc)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseClock(scheduledTime)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location()), nil
}

// Evaluate reports whether now falls inside the sharing window of a
// session starting at start.
func Evaluate(start, now time.Time, policy ClosePolicy) Window {
	minutesUntil := float64(start.Sub(now).Milliseconds()) / 60000
	lead := LeadTime.Minutes()

	if minutesUntil <= lead {
		w := Window{Open: true, MinutesUntil: minutesUntil}
		if policy.After > 0 && !now.Before(start.Add(policy.After)) {
			w.Open = false
			w.Ended = true
		}
		return w
	}

	remaining := int(math.Ceil(minutesUntil - lead))
	return Window{MinutesUntil: minutesUntil, MinutesUntilAvailable: &remaining}
}

// EvaluateSchedule parses a booking schedule and evaluates it at now.
func EvaluateSchedule(scheduledDate, scheduledTime string, now time.Time, loc *time.Location, policy ClosePolicy) (Window, error) {
	start, err := SessionStart(scheduledDate, scheduledTime, loc)
	if err != nil {
		return Window{}, err
	}
	return Evaluate(start, now, policy), nil
}
