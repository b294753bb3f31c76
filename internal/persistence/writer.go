package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"TickBook/internal/book"
	"TickBook/internal/fpmath"
	"TickBook/internal/summary"
	"TickBook/internal/tick"
)

// Writer writes derived rows to Postgres using multi-row INSERT batches.
// Inserts are idempotent (ON CONFLICT DO NOTHING), so a re-run over the
// same dates is safe.
type Writer struct {
	db *sql.DB
}

// DailyRow is one row of auction.daily.
type DailyRow struct {
	RunID             uuid.UUID
	Date              time.Time
	Instrument        string
	MorningMatchTS    *time.Time
	MorningMatchPrice int64
	MorningBid        int64
	MorningAsk        int64
	ClosingMatchTS    *time.Time
	ClosingMatchPrice int64
	ClosingBid        int64
	ClosingAsk        int64
}

// QuoteRow is one row of auction.best_quotes. Nil price/size persist as
// SQL NULL: the book had no quote at that instant.
type QuoteRow struct {
	Instrument string
	Timestamp  time.Time
	Side       tick.Side
	PriceTicks *int64
	Size       *int64
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// WriteDailyBatch inserts daily rows inside the caller's transaction.
func (w *Writer) WriteDailyBatch(ctx context.Context, tx *sql.Tx, rows []DailyRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO auction.daily
		(run_id, trade_date, instrument,
		 morning_match_ts, morning_match_price, morning_bid, morning_ask,
		 closing_match_ts, closing_match_price, closing_bid, closing_ask)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*11)

	for i, r := range rows {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			r.RunID, r.Date, r.Instrument,
			r.MorningMatchTS, fpmath.FormatPrice(r.MorningMatchPrice),
			fpmath.FormatPrice(r.MorningBid), fpmath.FormatPrice(r.MorningAsk),
			r.ClosingMatchTS, fpmath.FormatPrice(r.ClosingMatchPrice),
			fpmath.FormatPrice(r.ClosingBid), fpmath.FormatPrice(r.ClosingAsk),
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (trade_date, instrument) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteQuoteBatch inserts best-quote rows inside the caller's
// transaction.
func (w *Writer) WriteQuoteBatch(ctx context.Context, tx *sql.Tx, rows []QuoteRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO auction.best_quotes
		(instrument, ts, side, best_price, best_size)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)

	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args,
			r.Instrument, r.Timestamp, int16(r.Side),
			nullPrice(r.PriceTicks), nullQuantity(r.Size),
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (instrument, ts, side) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func nullPrice(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return fpmath.FormatPrice(*v)
}

func nullQuantity(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return fpmath.FormatQuantity(*v)
}

// DailyRowOf converts a finished record into its table shape.
func DailyRowOf(runID uuid.UUID, rec summary.DailyRecord) DailyRow {
	return DailyRow{
		RunID:             runID,
		Date:              rec.Date,
		Instrument:        rec.Instrument,
		MorningMatchTS:    rec.MorningMatchTS,
		MorningMatchPrice: rec.MorningMatchPrice,
		MorningBid:        rec.MorningBid,
		MorningAsk:        rec.MorningAsk,
		ClosingMatchTS:    rec.ClosingMatchTS,
		ClosingMatchPrice: rec.ClosingMatchPrice,
		ClosingBid:        rec.ClosingBid,
		ClosingAsk:        rec.ClosingAsk,
	}
}

// QuoteRowsOf flattens a reconstructed series into table rows. Points
// without a quote become NULL price/size rows so gaps stay visible in
// SQL.
func QuoteRowsOf(instrument string, s *book.Series) []QuoteRow {
	if s == nil {
		return nil
	}
	points := s.Points()
	rows := make([]QuoteRow, 0, len(points))
	for _, p := range points {
		row := QuoteRow{
			Instrument: instrument,
			Timestamp:  p.Timestamp,
			Side:       s.Side(),
		}
		if p.Present {
			price, size := p.PriceTicks, p.Size
			row.PriceTicks = &price
			row.Size = &size
		}
		rows = append(rows, row)
	}
	return rows
}
