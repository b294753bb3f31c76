package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TickBook/internal/fpmath"
	"TickBook/internal/tick"
)

// Reader provides read-only access to the derived tables, used by
// integration tests and spot verification of past runs.
type Reader struct {
	db *sql.DB
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// DailyByDateRange returns daily rows with trade_date in [from, to],
// ordered by (trade_date, instrument).
func (r *Reader) DailyByDateRange(ctx context.Context, from, to time.Time) ([]DailyRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, trade_date, instrument,
		       morning_match_ts, morning_match_price, morning_bid, morning_ask,
		       closing_match_ts, closing_match_price, closing_bid, closing_ask
		FROM auction.daily
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date, instrument
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyRow
	for rows.Next() {
		var (
			row                  DailyRow
			morningTS, closingTS sql.NullTime
			mPrice, mBid, mAsk   string
			cPrice, cBid, cAsk   string
		)
		if err := rows.Scan(
			&row.RunID, &row.Date, &row.Instrument,
			&morningTS, &mPrice, &mBid, &mAsk,
			&closingTS, &cPrice, &cBid, &cAsk,
		); err != nil {
			return nil, err
		}
		if morningTS.Valid {
			ts := morningTS.Time
			row.MorningMatchTS = &ts
		}
		if closingTS.Valid {
			ts := closingTS.Time
			row.ClosingMatchTS = &ts
		}
		if row.MorningMatchPrice, err = fpmath.ParsePrice(mPrice); err != nil {
			return nil, fmt.Errorf("morning_match_price: %w", err)
		}
		if row.MorningBid, err = fpmath.ParsePrice(mBid); err != nil {
			return nil, fmt.Errorf("morning_bid: %w", err)
		}
		if row.MorningAsk, err = fpmath.ParsePrice(mAsk); err != nil {
			return nil, fmt.Errorf("morning_ask: %w", err)
		}
		if row.ClosingMatchPrice, err = fpmath.ParsePrice(cPrice); err != nil {
			return nil, fmt.Errorf("closing_match_price: %w", err)
		}
		if row.ClosingBid, err = fpmath.ParsePrice(cBid); err != nil {
			return nil, fmt.Errorf("closing_bid: %w", err)
		}
		if row.ClosingAsk, err = fpmath.ParsePrice(cAsk); err != nil {
			return nil, fmt.Errorf("closing_ask: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// QuotesByInstrumentDay returns the best-quote rows for one instrument
// on one calendar day, ordered by (ts, side).
func (r *Reader) QuotesByInstrumentDay(ctx context.Context, instrument string, day time.Time) ([]QuoteRow, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument, ts, side, best_price, best_size
		FROM auction.best_quotes
		WHERE instrument = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts, side
	`, instrument, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuoteRow
	for rows.Next() {
		var (
			row         QuoteRow
			side        int16
			price, size sql.NullString
		)
		if err := rows.Scan(&row.Instrument, &row.Timestamp, &side, &price, &size); err != nil {
			return nil, err
		}
		row.Side = tick.Side(side)
		if price.Valid {
			v, err := fpmath.ParsePrice(price.String)
			if err != nil {
				return nil, fmt.Errorf("best_price: %w", err)
			}
			row.PriceTicks = &v
		}
		if size.Valid {
			v, err := fpmath.ParseQuantity(size.String)
			if err != nil {
				return nil, fmt.Errorf("best_size: %w", err)
			}
			row.Size = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
