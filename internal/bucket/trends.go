package bucket

import (
	"maps"
	"slices"
	"time"
)

// MonthLayout formats the calendar month keys used by Monthly.
const MonthLayout = "2006-01"

// MonthStats is the per-category tally of one calendar month (UTC).
type MonthStats struct {
	Month string `json:"month"`
	Counts
}

// MonthKey returns the calendar month of t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// Totals returns the per-category tally of every bucketed record.
func (i *Index) Totals() Counts {
	out := newCounts()
	out.Total = i.totals.Total
	maps.Copy(out.ByCategory, i.totals.ByCategory)
	return out
}

// Monthly returns one entry per calendar month, in order, from the epoch's
// month through the month holding the last instant before end. Months
// without records are present with zero counts. Months holding records
// after end are appended, so the series always accounts for every bucketed
// record.
func (i *Index) Monthly(end time.Time) []MonthStats {
	keys := map[string]bool{}
	for k := range i.months {
		keys[k] = true
	}
	first := monthStart(i.epoch)
	last := first
	if end.After(i.epoch) {
		last = monthStart(end.Add(-time.Nanosecond))
	}
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		keys[MonthKey(m)] = true
	}

	out := make([]MonthStats, 0, len(keys))
	for _, k := range slices.Sorted(maps.Keys(keys)) {
		stats := MonthStats{Month: k, Counts: newCounts()}
		if c, ok := i.months[k]; ok {
			stats.Total = c.Total
			maps.Copy(stats.ByCategory, c.ByCategory)
		}
		out = append(out, stats)
	}
	return out
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
