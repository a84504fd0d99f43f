// Package bucket partitions incident records into weekly buckets.
package bucket

import (
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-timeline/internal/domain"
)

// Index maps a week offset from the epoch to the records that fall in it.
// Buckets hold pointers into the slice the index was built from, so that slice
// must not be mutated while the index is in use. An Index is immutable after
// Build and safe to share.
type Index struct {
	epoch   time.Time
	buckets map[int][]*domain.Incident
	months  map[string]*Counts
	totals  Counts
	total   int
	dropped int
}

// Build partitions records in a single pass. Records whose timestamp does not
// parse, or falls before the epoch, are excluded from every bucket and counted
// in Dropped. Within a bucket, records keep their input order. The same pass
// tallies bucketed records per calendar month and across the whole index.
func Build(records []domain.Incident, epoch time.Time) *Index {
	idx := &Index{
		epoch:   epoch,
		buckets: make(map[int][]*domain.Incident),
		months:  make(map[string]*Counts),
		totals:  newCounts(),
	}
	for i := range records {
		ts, err := domain.ParseTimestamp(records[i].Timestamp)
		if err != nil {
			idx.dropped++
			continue
		}
		week := domain.WeekIndex(ts, epoch)
		if week < 0 {
			idx.dropped++
			continue
		}
		idx.buckets[week] = append(idx.buckets[week], &records[i])
		idx.total++

		month := MonthKey(ts)
		c, ok := idx.months[month]
		if !ok {
			fresh := newCounts()
			c = &fresh
			idx.months[month] = c
		}
		c.add(records[i].Category)
		idx.totals.add(records[i].Category)
	}
	return idx
}

// Get returns the records for a week. The result is never nil: weeks with no
// records, including negative or out-of-range weeks, yield an empty slice.
// The returned slice is capacity-clipped, so appending to it never writes
// into the index.
func (i *Index) Get(week int) []*domain.Incident {
	b, ok := i.buckets[week]
	if !ok {
		return []*domain.Incident{}
	}
	return b[:len(b):len(b)]
}

// Filter returns the records for a week whose category matches, ignoring
// case. An empty category returns every record in the week.
func (i *Index) Filter(week int, category string) []*domain.Incident {
	category = strings.TrimSpace(category)
	if category == "" {
		return i.Get(week)
	}
	out := []*domain.Incident{}
	for _, inc := range i.buckets[week] {
		if strings.EqualFold(inc.Category, category) {
			out = append(out, inc)
		}
	}
	return out
}

// Count returns the number of records in a week.
func (i *Index) Count(week int) int {
	return len(i.buckets[week])
}

// Weeks returns the indices of all non-empty weeks in ascending order.
func (i *Index) Weeks() []int {
	weeks := make([]int, 0, len(i.buckets))
	for w := range i.buckets {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)
	return weeks
}

// Len returns the number of bucketed records.
func (i *Index) Len() int { return i.total }

// Dropped returns the number of records excluded from every bucket.
func (i *Index) Dropped() int { return i.dropped }
