package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// upsertChunkSize bounds the multi-row VALUES list so a batch never
// approaches the Postgres parameter limit.
const upsertChunkSize = 500

// BarStore persists OHLCV bars keyed by (symbol, timeframe, bar_timestamp).
type BarStore struct {
	pool PoolInterface
}

// NewBarStore creates a bar repository on the given pool.
func NewBarStore(pool PoolInterface) *BarStore {
	return &BarStore{pool: pool}
}

// UpsertBars writes bars with last-writer-wins semantics: conflicting rows
// are updated, never ignored, so upstream corrections replace stale values.
// Returns the number of rows written.
func (s *BarStore) UpsertBars(ctx context.Context, symbol string, tf market.Timeframe, bars []market.Bar) (int, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("no database pool available")
	}
	if len(bars) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(bars); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(bars) {
			end = len(bars)
		}
		chunk := bars[start:end]

		query, args := buildBarUpsert(symbol, tf, chunk)
		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return written, fmt.Errorf("failed to upsert bars: %w", err)
		}
		written += int(tag.RowsAffected())
	}

	log.Debug().
		Str("symbol", symbol).
		Str("timeframe", tf.String()).
		Int("bars", written).
		Msg("Upserted bars")
	return written, nil
}

// buildBarUpsert renders a multi-row insert with an ON CONFLICT DO UPDATE
// clause on the bar identity.
func buildBarUpsert(symbol string, tf market.Timeframe, bars []market.Bar) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO bars (symbol, timeframe, bar_timestamp, open, high, low, close, volume) VALUES `)

	args := make([]interface{}, 0, len(bars)*8)
	for i, b := range bars {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, symbol, tf.String(), b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	sb.WriteString(` ON CONFLICT (symbol, timeframe, bar_timestamp) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		updated_at = NOW()`)
	return sb.String(), args
}

// GetBars reads bars for the symbol and timeframe, ascending by timestamp.
// Nil bounds are open-ended. With a limit and no lower bound the most recent
// rows are returned, still ascending.
func (s *BarStore) GetBars(ctx context.Context, symbol string, tf market.Timeframe, from, to *time.Time, limit int) ([]market.Bar, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT bar_timestamp, open, high, low, close, volume FROM bars WHERE symbol = $1 AND timeframe = $2`)
	args := []interface{}{symbol, tf.String()}

	if from != nil {
		args = append(args, from.UTC())
		sb.WriteString(fmt.Sprintf(" AND bar_timestamp >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, to.UTC())
		sb.WriteString(fmt.Sprintf(" AND bar_timestamp <= $%d", len(args)))
	}

	newestFirst := limit > 0 && from == nil
	if newestFirst {
		sb.WriteString(" ORDER BY bar_timestamp DESC")
	} else {
		sb.WriteString(" ORDER BY bar_timestamp ASC")
	}
	if limit > 0 {
		args = append(args, limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar row: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w", err)
	}

	if newestFirst {
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
	}
	return bars, nil
}

// LatestTimestamp returns the newest stored bar timestamp for the series,
// or found=false when the series is empty.
func (s *BarStore) LatestTimestamp(ctx context.Context, symbol string, tf market.Timeframe) (time.Time, bool, error) {
	if s.pool == nil {
		return time.Time{}, false, fmt.Errorf("no database pool available")
	}

	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(bar_timestamp) FROM bars WHERE symbol = $1 AND timeframe = $2`,
		symbol, tf.String(),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest bar: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}
