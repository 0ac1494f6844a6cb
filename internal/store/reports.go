package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// ReportRecord is a persisted analysis report: one row per
// (kind, symbol, timeframe, date), payload stored as JSONB.
type ReportRecord struct {
	ID        uuid.UUID
	Kind      string
	Symbol    string
	Timeframe market.Timeframe
	Date      string // YYYY-MM-DD
	Payload   []byte
	CreatedAt time.Time
}

// ReportStore archives assembled reports.
type ReportStore struct {
	pool PoolInterface
}

// NewReportStore creates a report repository on the given pool.
func NewReportStore(pool PoolInterface) *ReportStore {
	return &ReportStore{pool: pool}
}

// SaveReport upserts the report for its (kind, symbol, timeframe, date)
// identity. Re-running an analysis replaces the stored payload.
func (s *ReportStore) SaveReport(ctx context.Context, rec ReportRecord) error {
	if s.pool == nil {
		return fmt.Errorf("no database pool available")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO reports (id, kind, symbol, timeframe, report_date, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, symbol, timeframe, report_date)
		DO UPDATE SET payload = EXCLUDED.payload, created_at = NOW()
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Kind, rec.Symbol, rec.Timeframe.String(), rec.Date, rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport loads the archived report, or found=false when absent.
func (s *ReportStore) GetReport(ctx context.Context, kind, symbol string, tf market.Timeframe, date string) (*ReportRecord, bool, error) {
	if s.pool == nil {
		return nil, false, fmt.Errorf("no database pool available")
	}

	var rec ReportRecord
	var tfRaw string
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, symbol, timeframe, to_char(report_date, 'YYYY-MM-DD'), payload, created_at
		FROM reports
		WHERE kind = $1 AND symbol = $2 AND timeframe = $3 AND report_date = $4
	`, kind, symbol, tf.String(), date).Scan(
		&rec.ID, &rec.Kind, &rec.Symbol, &tfRaw, &rec.Date, &rec.Payload, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to query report: %w", err)
	}
	rec.Timeframe = market.Timeframe(tfRaw)
	return &rec, true, nil
}
