package domain

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{"rfc3339", "2020-01-06T14:30:00Z", time.Date(2020, 1, 6, 14, 30, 0, 0, time.UTC)},
		{"rfc3339 offset", "2020-01-06T14:30:00-06:00", time.Date(2020, 1, 6, 20, 30, 0, 0, time.UTC)},
		{"fractional", "2020-01-06T14:30:00.250Z", time.Date(2020, 1, 6, 14, 30, 0, 250_000_000, time.UTC)},
		{"zone-less", "2020-01-06T14:30:00", time.Date(2020, 1, 6, 14, 30, 0, 0, time.UTC)},
		{"sql varchar", "2020-01-06 14:30:00", time.Date(2020, 1, 6, 14, 30, 0, 0, time.UTC)},
		{"sql varchar micros", "2020-01-06 14:30:00.000001", time.Date(2020, 1, 6, 14, 30, 0, 1000, time.UTC)},
		{"sql short offset", "2020-01-06 14:30:00+00", time.Date(2020, 1, 6, 14, 30, 0, 0, time.UTC)},
		{"date only", "2020-01-08", time.Date(2020, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"surrounding space", "  2020-01-08 ", time.Date(2020, 1, 8, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "want %s, got %s", tt.expected, got)
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "yesterday", "2020-13-01", "01/06/2020", "2020-01-06T25:00:00Z"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTimestamp(input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse timestamp")
		})
	}
}

func TestParseRawEvent(t *testing.T) {
	t.Run("canonical row", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"id":"inc-1","timestamp":"2020-01-06T10:00:00Z","latitude":41.88,"longitude":-87.63,"category":"THEFT"}`)}
		inc, err := ParseRawEvent(raw)

		require.NoError(t, err)
		assert.Equal(t, "inc-1", inc.ID)
		assert.Equal(t, "2020-01-06T10:00:00Z", inc.Timestamp)
		assert.Equal(t, 41.88, inc.Geo.Lat)
		assert.Equal(t, -87.63, inc.Geo.Lon)
		assert.Equal(t, "THEFT", inc.Category)
		assert.Equal(t, 1.0, inc.Weight)
	})

	t.Run("query service column names and string coordinates", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"date":"2020-01-06 10:00:00","latitude":"41.88","longitude":"-87.63","primary_type":"BATTERY"}`)}
		inc, err := ParseRawEvent(raw)

		require.NoError(t, err)
		assert.Equal(t, "2020-01-06 10:00:00", inc.Timestamp)
		assert.Equal(t, 41.88, inc.Geo.Lat)
		assert.Equal(t, "BATTERY", inc.Category)
		assert.True(t, strings.HasPrefix(inc.ID, "battery-"))
	})

	t.Run("bad coordinates coerce to zero", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"timestamp":"2020-01-06","latitude":"n/a","longitude":null,"category":"X"}`)}
		inc, err := ParseRawEvent(raw)

		require.NoError(t, err)
		assert.Zero(t, inc.Geo.Lat)
		assert.Zero(t, inc.Geo.Lon)
	})

	t.Run("non-finite coordinates coerce to zero", func(t *testing.T) {
		tests := []struct {
			name  string
			value string
		}{
			{"NaN", `"NaN"`},
			{"Infinity", `"Infinity"`},
			{"negative Inf", `"-Inf"`},
			{"overflow", `"1e400"`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				raw := RawEvent{Value: []byte(`{"timestamp":"2020-01-06","latitude":` + tt.value + `,"longitude":` + tt.value + `,"weight":` + tt.value + `}`)}
				inc, err := ParseRawEvent(raw)

				require.NoError(t, err)
				assert.Zero(t, inc.Geo.Lat)
				assert.Zero(t, inc.Geo.Lon)
				assert.False(t, math.IsNaN(inc.Weight) || math.IsInf(inc.Weight, 0))
				_, err = json.Marshal(inc)
				assert.NoError(t, err)
			})
		}
	})

	t.Run("explicit weight", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"timestamp":"2020-01-06","latitude":1,"longitude":2,"weight":"0.5"}`)}
		inc, err := ParseRawEvent(raw)

		require.NoError(t, err)
		assert.Equal(t, 0.5, inc.Weight)
	})

	t.Run("intensity used as weight", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"date":"2020-01-06","latitude":"41.8","longitude":"-87.6","intensity":"1.0"}`)}
		inc, err := ParseRawEvent(raw)

		require.NoError(t, err)
		assert.Equal(t, 1.0, inc.Weight)
		assert.Equal(t, "2020-01-06", inc.Timestamp)
		assert.InDelta(t, 41.8, inc.Geo.Lat, 1e-9)
	})

	t.Run("malformed timestamp is kept for the bucketing stage", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"timestamp":"not a date","latitude":1,"longitude":2}`)}
		inc, err := ParseRawEvent(raw)

		require.NoError(t, err)
		assert.Equal(t, "not a date", inc.Timestamp)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte("{invalid json")})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse raw event")
	})

	t.Run("deterministic ID", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"timestamp":"2020-01-06","latitude":41.8,"longitude":-87.6,"category":"CRIMINAL DAMAGE"}`)}
		first, err := ParseRawEvent(raw)
		require.NoError(t, err)
		second, err := ParseRawEvent(raw)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.True(t, strings.HasPrefix(first.ID, "criminal_damage-"))
	})
}

func TestGenerateID_NoCategory(t *testing.T) {
	id := generateID("2020-01-06", 1, 2, "")
	assert.Len(t, id, 16)
	assert.NotEqual(t, id, generateID("2020-01-07", 1, 2, ""))
}
