package fixture

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-timeline/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatOf("data/incidents.yaml"))
	assert.Equal(t, FormatYAML, FormatOf("data/INCIDENTS.YML"))
	assert.Equal(t, FormatJSON, FormatOf("data/incidents.json"))
	assert.Equal(t, FormatJSON, FormatOf("incidents"))
}

func TestDecode_JSONArray(t *testing.T) {
	rows, err := Decode(strings.NewReader(`[
		{"timestamp":"2020-01-01","latitude":35.2,"longitude":"-97.4","category":"hail"},
		{"date":"2020-01-08","latitude":"bad","longitude":1,"primary_type":"wind","weight":2}
	]`), FormatJSON)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0].Incident()
	assert.Equal(t, "2020-01-01", first.Timestamp)
	assert.InDelta(t, -97.4, first.Geo.Lon, 1e-9)

	second := rows[1].Incident()
	assert.Equal(t, "wind", second.Category)
	assert.Zero(t, second.Geo.Lat)
	assert.InDelta(t, 2.0, second.Weight, 1e-9)
}

func TestDecode_QueryResponseObject(t *testing.T) {
	rows, err := Decode(strings.NewReader(`{"rows":[{"timestamp":"2021-05-05","latitude":1,"longitude":2}]}`), FormatJSON)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDecode_YAML(t *testing.T) {
	rows, err := Decode(strings.NewReader(`
- timestamp: 2020-01-06T12:00:00Z
  latitude: 35.1
  longitude: "-97.2"
  category: tornado
- timestamp: 2020-01-09
  latitude: 30
  longitude: -90
`), FormatYAML)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2020-01-06T12:00:00Z", rows[0].Incident().Timestamp)
	assert.Equal(t, "tornado", rows[0].Incident().Category)
	assert.Equal(t, "2020-01-09", rows[1].Incident().Timestamp)
	assert.InDelta(t, -90.0, rows[1].Incident().Geo.Lon, 1e-9)
}

func TestDecode_Empty(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatYAML} {
		rows, err := Decode(strings.NewReader("  \n"), format)
		require.NoError(t, err, format)
		assert.NotNil(t, rows, format)
		assert.Empty(t, rows, format)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(strings.NewReader(`[{"timestamp":`), FormatJSON)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("- a: [unclosed"), FormatYAML)
	assert.Error(t, err)
}

func TestEncodeDecode_YAMLKeepsFields(t *testing.T) {
	weight := domain.Number(3)
	rows := []domain.IncidentRow{{
		ID:        "hail-1",
		Timestamp: "2024-04-26T15:10:00Z",
		Latitude:  31.02,
		Longitude: -98.44,
		Category:  "hail",
		Weight:    &weight,
	}}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatYAML, rows))
	assert.Contains(t, buf.String(), "category: hail")

	decoded, err := Decode(&buf, FormatYAML)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, rows[0].Incident(), decoded[0].Incident())
}

func TestLoader_FetchIncidents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "incidents.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"timestamp":"2020-01-02","latitude":1,"longitude":2,"category":"hail"}]`), 0o600))

	incidents, err := NewLoader(path, discardLogger()).FetchIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "hail", incidents[0].Category)
	assert.NotEmpty(t, incidents[0].ID)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.json"), discardLogger()).FetchIncidents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open fixture")
}
