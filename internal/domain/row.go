package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number decodes a JSON number or numeric string. Anything else, including
// null, decodes to 0 rather than failing the row.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number(parseFloatOrZero(strings.Trim(string(b), `"`)))
	return nil
}

// IncidentRow is the upstream wire shape shared by the query service, the
// Kafka source topic, and JSON fixtures.
type IncidentRow struct {
	ID          string  `json:"id,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Date        string  `json:"date,omitempty"` // query service column name
	Latitude    Number  `json:"latitude"`
	Longitude   Number  `json:"longitude"`
	Category    string  `json:"category,omitempty"`
	PrimaryType string  `json:"primary_type,omitempty"` // query service column name
	Weight      *Number `json:"weight,omitempty"`
	Intensity   *Number `json:"intensity,omitempty"` // heatmap queries
}

// Incident converts the row into the domain form. The timestamp is copied
// verbatim; it is validated later, during bucketing.
func (r IncidentRow) Incident() Incident {
	ts := r.Timestamp
	if ts == "" {
		ts = r.Date
	}
	category := strings.TrimSpace(r.Category)
	if category == "" {
		category = strings.TrimSpace(r.PrimaryType)
	}
	weight := 1.0
	switch {
	case r.Weight != nil:
		weight = float64(*r.Weight)
	case r.Intensity != nil:
		weight = float64(*r.Intensity)
	}
	lat, lon := float64(r.Latitude), float64(r.Longitude)

	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = generateID(ts, lat, lon, category)
	}

	return Incident{
		ID:        id,
		Timestamp: ts,
		Geo:       Geo{Lat: lat, Lon: lon},
		Category:  category,
		Weight:    weight,
	}
}

// ParseRawEvent deserializes a RawEvent's value into an Incident.
func ParseRawEvent(raw RawEvent) (Incident, error) {
	var row IncidentRow
	if err := json.Unmarshal(raw.Value, &row); err != nil {
		return Incident{}, fmt.Errorf("parse raw event: %w", err)
	}
	return row.Incident(), nil
}

// parseFloatOrZero parses a string as float64, returning 0 on failure and for
// NaN or infinite values.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// generateID produces a deterministic ID from the row's key fields so that
// replaying the same source yields the same IDs.
func generateID(timestamp string, lat, lon float64, category string) string {
	input := fmt.Sprintf("%s|%.6f|%.6f|%s", strings.TrimSpace(timestamp), lat, lon, category)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if category == "" {
		return short
	}
	return strings.ToLower(strings.ReplaceAll(category, " ", "_")) + "-" + short
}
