// Package fixture reads and writes incident rows as local JSON or YAML files.
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/storm-data-timeline/internal/domain"
)

// Supported file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FormatOf infers the format from a file extension, defaulting to JSON.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Loader implements pipeline.Fetcher by re-reading a fixture file on every
// call, so edits are picked up on refresh.
type Loader struct {
	path   string
	logger *slog.Logger
}

// NewLoader creates a Loader for path.
func NewLoader(path string, logger *slog.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// FetchIncidents reads and converts every row in the file.
func (l *Loader) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	rows, err := Decode(f, FormatOf(l.path))
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", l.path, err)
	}
	incidents := make([]domain.Incident, len(rows))
	for i, row := range rows {
		incidents[i] = row.Incident()
	}
	l.logger.Debug("fixture loaded", "path", l.path, "rows", len(rows))
	return incidents, nil
}

// Decode reads rows from r. JSON input may be a bare array or a query
// service response object with a "rows" field.
func Decode(r io.Reader, format string) ([]domain.IncidentRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if format == FormatYAML {
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []domain.IncidentRow{}, nil
	}
	if trimmed[0] == '{' {
		var wrapped struct {
			Rows []domain.IncidentRow `json:"rows"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		if wrapped.Rows == nil {
			wrapped.Rows = []domain.IncidentRow{}
		}
		return wrapped.Rows, nil
	}
	var rows []domain.IncidentRow
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// Encode writes rows to w in the given format.
func Encode(w io.Writer, format string, rows []domain.IncidentRow) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	if format == FormatYAML {
		var generic []map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encode rows: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode yaml rows: %w", err)
		}
		return enc.Close()
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// yamlToJSON converts YAML into JSON so rows share the lenient JSON decoding
// of numbers and column aliases.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml rows: %w", err)
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	generic, err := nodeValue(&doc)
	if err != nil {
		return nil, fmt.Errorf("decode yaml rows: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("convert yaml rows: %w", err)
	}
	return out, nil
}

// nodeValue converts a YAML node into plain Go values. Timestamps keep their
// source text instead of being normalized through time.Time.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	default:
		if n.ShortTag() == "!!timestamp" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
