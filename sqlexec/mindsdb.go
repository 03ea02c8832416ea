package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

// DefaultMindsDBURL is the default address of a local MindsDB HTTP API.
const DefaultMindsDBURL = "http://localhost:47334"

// ErrParamsUnsupported is returned when bind parameters are passed to an executor whose
// transport has no way to send them.
var ErrParamsUnsupported = errors.New("sqlexec: bind parameters are not supported")

// MindsDB executes statements through the MindsDB SQL API, which fronts the configured
// datasources (e.g. a Postgres integration).
type MindsDB struct {
	baseURL string
	client  *http.Client
}

// NewMindsDB creates a MindsDB executor. An empty baseURL selects DefaultMindsDBURL; a nil
// client uses one with a 60 second timeout.
func NewMindsDB(baseURL string, client *http.Client) *MindsDB {
	if baseURL == "" {
		baseURL = DefaultMindsDBURL
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &MindsDB{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type mindsDBRequest struct {
	Query string `json:"query"`
}

type mindsDBResponse struct {
	Type         string   `json:"type"`
	Data         [][]any  `json:"data"`
	ColumnNames  []string `json:"column_names"`
	ErrorMessage string   `json:"error_message"`
}

// Execute implements analyst.SQLExecutor. A response of type "error" becomes an error
// carrying the server's message.
func (m *MindsDB) Execute(ctx context.Context, sql string, params ...any) (*analyst.QueryResult, error) {
	if len(params) > 0 {
		return nil, ErrParamsUnsupported
	}

	body, err := json.Marshal(mindsDBRequest{Query: sql})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/sql/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mindsdb request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading mindsdb response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mindsdb returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded mindsDBResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding mindsdb response: %w", err)
	}
	if decoded.Type == "error" {
		return nil, fmt.Errorf("query failed: %s", decoded.ErrorMessage)
	}

	result := &analyst.QueryResult{
		Columns:  uniqueColumns(decoded.ColumnNames),
		Rows:     make([]map[string]any, 0, len(decoded.Data)),
		RowCount: len(decoded.Data),
	}
	for i, values := range decoded.Data {
		if len(values) != len(result.Columns) {
			return nil, fmt.Errorf("row %d has %d values for %d columns", i, len(values), len(result.Columns))
		}
		row := make(map[string]any, len(values))
		for j, col := range result.Columns {
			row[col] = values[j]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// Ping checks GET /api/status.
func (m *MindsDB) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/api/status", nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mindsdb unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mindsdb status returned %d", resp.StatusCode)
	}
	return nil
}

var _ analyst.SQLExecutor = (*MindsDB)(nil)
