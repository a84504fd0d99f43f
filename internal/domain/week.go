package domain

import (
	"errors"
	"fmt"
	"time"
)

// Week is the length of one bucket.
const Week = 7 * 24 * time.Hour

// DateLayout is the calendar date format used for range configuration.
const DateLayout = "2006-01-02"

// Range bounds a timeline. Epoch is week 0; End bounds playback.
type Range struct {
	Epoch time.Time
	End   time.Time
}

// NewRange parses two calendar dates into a Range. The range must contain at
// least one whole week.
func NewRange(start, end string) (Range, error) {
	epoch, err := time.Parse(DateLayout, start)
	if err != nil {
		return Range{}, fmt.Errorf("parse start date: %w", err)
	}
	stop, err := time.Parse(DateLayout, end)
	if err != nil {
		return Range{}, fmt.Errorf("parse end date: %w", err)
	}
	r := Range{Epoch: epoch, End: stop}
	if r.TotalWeeks() < 1 {
		return Range{}, errors.New("range must span at least one week")
	}
	return r, nil
}

// TotalWeeks is floor((End - Epoch) / 7 days), the exclusive upper bound for
// playback. It is 0 for an inverted range.
func (r Range) TotalWeeks() int {
	if r.End.Before(r.Epoch) {
		return 0
	}
	return WeekIndex(r.End, r.Epoch)
}

// WeekStart returns the first instant of the given week.
func (r Range) WeekStart(week int) time.Time {
	return r.Epoch.AddDate(0, 0, 7*week)
}

const secondsPerDay = 24 * 60 * 60

// WeekIndex returns floor(elapsed whole days / 7), counting days from the
// epoch. The result is negative for timestamps before the epoch.
func WeekIndex(t, epoch time.Time) int {
	days := floorDiv(t.Unix()-epoch.Unix(), secondsPerDay)
	return int(floorDiv(days, 7))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
