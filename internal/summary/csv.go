package summary

import (
	"encoding/csv"
	"io"
	"time"

	"TickBook/internal/book"
	"TickBook/internal/fpmath"
)

// TimestampLayout is the microsecond timestamp format used in every
// output surface (CSV, database, outbound messages).
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Column names match the source system's summary table so downstream
// consumers keep working unchanged.
var summaryHeader = []string{
	"date", "ticker",
	"morning_matching_timestamp", "morning_matching_price",
	"morning_bid_price", "morning_ask_price",
	"closing_matching_timestamp", "closing_matching_price",
	"closing_bid_price", "closing_ask_price",
}

// WriteCSV renders the daily records. Absent match timestamps become
// empty cells; sentinel prices render as 0.
func WriteCSV(w io.Writer, records []DailyRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Date.Format("2006-01-02"),
			rec.Instrument,
			formatOptionalTS(rec.MorningMatchTS),
			fpmath.FormatPrice(rec.MorningMatchPrice),
			fpmath.FormatPrice(rec.MorningBid),
			fpmath.FormatPrice(rec.MorningAsk),
			formatOptionalTS(rec.ClosingMatchTS),
			fpmath.FormatPrice(rec.ClosingMatchPrice),
			fpmath.FormatPrice(rec.ClosingBid),
			fpmath.FormatPrice(rec.ClosingAsk),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatOptionalTS(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.Format(TimestampLayout)
}

var quotesHeader = []string{"instrument", "timestamp", "side", "best_price", "best_size"}

// QuotesWriter streams per-side best-quote rows for any number of
// (instrument, day) groups into one CSV. Bid rows precede ask rows within
// a group; absent quotes render as empty price/size cells.
type QuotesWriter struct {
	cw          *csv.Writer
	wroteHeader bool
}

func NewQuotesWriter(w io.Writer) *QuotesWriter {
	return &QuotesWriter{cw: csv.NewWriter(w)}
}

func (qw *QuotesWriter) WriteGroup(instrument string, bid, ask *book.Series) error {
	if !qw.wroteHeader {
		if err := qw.cw.Write(quotesHeader); err != nil {
			return err
		}
		qw.wroteHeader = true
	}
	if err := qw.writeSide(instrument, bid); err != nil {
		return err
	}
	return qw.writeSide(instrument, ask)
}

func (qw *QuotesWriter) writeSide(instrument string, s *book.Series) error {
	if s == nil {
		return nil
	}
	side := s.Side().String()
	for _, q := range s.Points() {
		price, size := "", ""
		if q.Present {
			price = fpmath.FormatPrice(q.PriceTicks)
			size = fpmath.FormatQuantity(q.Size)
		}
		row := []string{instrument, q.Timestamp.Format(TimestampLayout), side, price, size}
		if err := qw.cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush drains buffered rows and reports any write error.
func (qw *QuotesWriter) Flush() error {
	qw.cw.Flush()
	return qw.cw.Error()
}
