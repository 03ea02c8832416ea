// Package insight persists final answers and announces confident ones to the alerts API.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// SummaryMaxRunes bounds the stored insight_summary column.
const SummaryMaxRunes = 500

// Insight is a final answer together with the run context it answers.
type Insight struct {
	ID              string
	City            string
	CountryCode     string
	SuccessCriteria string
	Answer          analyst.FinalAnswer
	CreatedAt       time.Time
}

// Execer is the subset of pgxpool.Pool the store needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore writes insights to the service23_data_analyst_insights table.
type PostgresStore struct {
	db Execer
}

// NewPostgresStore creates a store on db, typically a *pgxpool.Pool.
func NewPostgresStore(db Execer) *PostgresStore {
	return &PostgresStore{db: db}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS service23_data_analyst_insights (
	id UUID PRIMARY KEY,
	city TEXT NOT NULL,
	country_code TEXT NOT NULL,
	success_criteria TEXT NOT NULL DEFAULT '',
	insight_summary VARCHAR(500) NOT NULL,
	detailed_analysis TEXT NOT NULL,
	data_sources_used JSONB NOT NULL DEFAULT '[]',
	confidence_score DOUBLE PRECISION NOT NULL,
	recommendations JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	alert_sent BOOLEAN NOT NULL DEFAULT FALSE
)`

const insertSQL = `
INSERT INTO service23_data_analyst_insights (
	id, city, country_code, success_criteria,
	insight_summary, detailed_analysis,
	data_sources_used, confidence_score, recommendations,
	created_at, alert_sent
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), FALSE)`

const markAlertSentSQL = `
UPDATE service23_data_analyst_insights
SET alert_sent = TRUE
WHERE id = $1`

// Migrate creates the insights table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create insights table: %w", err)
	}
	return nil
}

// Save inserts in and returns its id. A missing id is generated.
func (s *PostgresStore) Save(ctx context.Context, in *Insight) (string, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	sources, err := json.Marshal(nonNil(in.Answer.SourcesUsed))
	if err != nil {
		return "", fmt.Errorf("encoding data sources: %w", err)
	}
	recommendations, err := json.Marshal(nonNil(in.Answer.Recommendations))
	if err != nil {
		return "", fmt.Errorf("encoding recommendations: %w", err)
	}

	_, err = s.db.Exec(ctx, insertSQL,
		in.ID,
		in.City,
		in.CountryCode,
		in.SuccessCriteria,
		truncateRunes(in.Answer.Summary, SummaryMaxRunes),
		in.Answer.Detail,
		string(sources),
		in.Answer.Confidence,
		string(recommendations),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store insight: %w", err)
	}
	return in.ID, nil
}

// MarkAlertSent flags the insight as announced.
func (s *PostgresStore) MarkAlertSent(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, markAlertSentSQL, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insight %s not found", id)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
