// Package query fetches incident rows from a hosted SQL query service.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/couchcryptid/storm-data-timeline/internal/config"
	"github.com/couchcryptid/storm-data-timeline/internal/domain"
)

// tablePattern accepts plain and dotted (database.schema.table) identifiers.
var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)

// Client implements pipeline.Fetcher against the query service's HTTP API.
type Client struct {
	url        string
	token      string
	database   string
	query      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a query service client for the configured table and range.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	q, err := BuildQuery(cfg.QueryTable, cfg.Range)
	if err != nil {
		return nil, err
	}
	return &Client{
		url:      cfg.QueryURL,
		token:    cfg.QueryToken,
		database: cfg.QueryDatabase,
		query:    q,
		httpClient: &http.Client{
			Timeout: cfg.QueryTimeout,
		},
		logger: logger,
	}, nil
}

// BuildQuery returns the SQL selecting every incident inside the range.
func BuildQuery(table string, r domain.Range) (string, error) {
	if !tablePattern.MatchString(table) {
		return "", fmt.Errorf("invalid query table %q", table)
	}
	return fmt.Sprintf(`SELECT
  "timestamp"::VARCHAR AS timestamp,
  CAST(latitude AS DOUBLE) AS latitude,
  CAST(longitude AS DOUBLE) AS longitude,
  category
FROM %s
WHERE "timestamp" >= TIMESTAMP '%s'
  AND "timestamp" <= TIMESTAMP '%s'
  AND latitude IS NOT NULL
  AND longitude IS NOT NULL`,
		table,
		r.Epoch.Format(domain.DateLayout),
		r.End.Format(domain.DateLayout),
	), nil
}

// FetchIncidents runs the range query and converts every returned row.
func (c *Client) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	body, err := json.Marshal(request{Database: c.database, Query: c.query})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("query API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	incidents := make([]domain.Incident, len(out.Rows))
	for i, row := range out.Rows {
		incidents[i] = row.Incident()
	}
	c.logger.Debug("query rows received", "rows", len(incidents))
	return incidents, nil
}

// Query service request/response types.

type request struct {
	Database string `json:"database"`
	Query    string `json:"query"`
}

type response struct {
	Rows []domain.IncidentRow `json:"rows"`
}
