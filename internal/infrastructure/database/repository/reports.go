package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"scamlure-lab/internal/domain/models"
)

// ReportRepository archives finished intelligence reports. The archive is
// an audit trail, not a delivery queue: writes happen after the dispatcher
// has reached a terminal outcome.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new report repository
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Save inserts a report row
func (r *ReportRepository) Save(ctx context.Context, report *models.IntelligenceReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(report.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	const query = `
INSERT INTO intelligence_reports (id, session_id, scam_detected, record, outcome, attempt_count, last_error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.pool.Exec(ctx, query,
		report.ID,
		report.SessionID,
		report.Record != nil && report.Record.ScamDetected,
		recordJSON,
		string(report.Outcome),
		report.AttemptCount,
		report.LastError,
		report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// ListBySession returns archived reports for one engagement session,
// newest first.
func (r *ReportRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.IntelligenceReport, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
SELECT id, session_id, record, outcome, attempt_count, last_error, created_at
FROM intelligence_reports
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.IntelligenceReport
	for rows.Next() {
		var (
			report     models.IntelligenceReport
			recordJSON []byte
			outcome    string
		)
		if err := rows.Scan(&report.ID, &report.SessionID, &recordJSON, &outcome, &report.AttemptCount, &report.LastError, &report.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		report.Outcome = models.DeliveryOutcome(outcome)
		record := models.NewIntelligenceRecord()
		if err := json.Unmarshal(recordJSON, record); err == nil {
			record.Normalize()
			report.Record = record
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

// CountByOutcome returns archive totals grouped by delivery outcome
func (r *ReportRepository) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	const query = `SELECT outcome, COUNT(*) FROM intelligence_reports GROUP BY outcome`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
