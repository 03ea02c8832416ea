package insight

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
)

const (
	// AlertTypeOpportunity is the criteria type of insight alerts.
	AlertTypeOpportunity = "opportunity"

	// AlertCategory tags insight alerts in the platform.
	AlertCategory = "data_insights"

	// TopRecommendations is how many recommendations an alert description lists.
	TopRecommendations = 3
)

// ErrMissingAPIKey is returned by NewAlertClient without a key.
var ErrMissingAPIKey = errors.New("insight: alerts API key is required")

// Alert is the payload of POST /api/v2/alerts.
type Alert struct {
	Name            string        `json:"name"`
	Criteria        AlertCriteria `json:"criteria"`
	GeonameID       string        `json:"geonameId,omitempty"`
	CityCountryCode string        `json:"cityCountryCode"`
	Description     string        `json:"description,omitempty"`
}

// AlertCriteria selects what the alert matches.
type AlertCriteria struct {
	Type       string         `json:"type"`
	Conditions map[string]any `json:"conditions"`
}

// AlertError is a non-2xx answer from the alerts API.
type AlertError struct {
	Status int
	Body   string
}

func (e *AlertError) Error() string {
	return fmt.Sprintf("alerts API returned %d: %s", e.Status, e.Body)
}

// AlertClient creates alerts on the platform API.
type AlertClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAlertClient creates a client for baseURL. A nil client uses one with a 30 second
// timeout.
func NewAlertClient(baseURL, apiKey string, client *http.Client) (*AlertClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		return nil, errors.New("insight: alerts base URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &AlertClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}, nil
}

// Create posts alert and returns the decoded response body.
func (c *AlertClient) Create(ctx context.Context, alert Alert) (map[string]any, error) {
	body, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("encoding alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/alerts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alerts request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading alerts response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AlertError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decoding alerts response: %w", err)
		}
	}
	return out, nil
}

// BuildAlert renders the alert announcing in.
func BuildAlert(in *Insight, geonameID string) Alert {
	var sb strings.Builder
	sb.WriteString("Data Analyst Insight Generated\n\n")
	fmt.Fprintf(&sb, "Summary: %s\n\n", orNA(in.Answer.Summary))
	fmt.Fprintf(&sb, "Confidence: %.0f%%\n\n", in.Answer.Confidence*100)
	fmt.Fprintf(&sb, "Insight ID: %s\n\n", in.ID)
	sb.WriteString("Top Recommendations:\n")
	recs := in.Answer.Recommendations
	if len(recs) > TopRecommendations {
		recs = recs[:TopRecommendations]
	}
	for _, r := range recs {
		fmt.Fprintf(&sb, "• %s\n", r)
	}
	sb.WriteString("\nView full analysis in the database (service23_data_analyst_insights table).")

	return Alert{
		Name: "Data Insight: " + in.City,
		Criteria: AlertCriteria{
			Type:       AlertTypeOpportunity,
			Conditions: map[string]any{"category": AlertCategory},
		},
		GeonameID:       geonameID,
		CityCountryCode: strings.ToLower(in.City) + "-" + strings.ToUpper(in.CountryCode),
		Description:     sb.String(),
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
