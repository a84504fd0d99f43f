package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Incident is a single timestamped, located record. Timestamp is kept exactly
// as received; see ParseTimestamp.
type Incident struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Geo       Geo     `json:"geo"`
	Category  string  `json:"category,omitempty"`
	Weight    float64 `json:"weight"`
}

// WeekChange is published whenever the selected week changes or the records
// behind it are rebuilt.
type WeekChange struct {
	Week      int       `json:"week"`
	WeekStart time.Time `json:"week_start"`
	Incidents int       `json:"incidents"`
	Playing   bool      `json:"playing"`
	Reason    string    `json:"reason"` // "selection", "records" or "playback"
	ChangedAt time.Time `json:"changed_at"`
}

// Reasons carried by WeekChange.
const (
	ReasonSelection = "selection"
	ReasonRecords   = "records"
	ReasonPlayback  = "playback"
)

// NewWeekChange stamps a WeekChange with the package clock.
func NewWeekChange(r Range, week, incidents int, playing bool, reason string) WeekChange {
	return WeekChange{
		Week:      week,
		WeekStart: r.WeekStart(week),
		Incidents: incidents,
		Playing:   playing,
		Reason:    reason,
		ChangedAt: clock.Now().UTC(),
	}
}
