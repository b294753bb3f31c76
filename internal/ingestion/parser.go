package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"TickBook/internal/fpmath"
	"TickBook/internal/tick"
)

// requiredColumns is the schema contract with the archive. A file missing
// any of these cannot be processed at all.
var requiredColumns = []string{
	"timestamp",
	"order_number",
	"mp_quantity",
	"price",
	"bid_or_ask",
	"change_reason",
	"stockcode",
}

// Header maps archive column names to their positions in one file.
type Header map[string]int

// ParseHeader builds the column index and verifies every required column
// is present. A missing column is a schema error and aborts the run.
func ParseHeader(record []string) (Header, error) {
	h := make(Header, len(record))
	for i, name := range record {
		h[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := h[col]; !ok {
			return nil, &tick.SchemaError{Field: col, Reason: "column missing"}
		}
	}
	return h, nil
}

// The archive separates date and time with a literal 'D'. Fractional
// seconds are accepted when present and default to zero when not.
const archiveTSLayout = "2006-01-02 15:04:05"

// NormalizeTimestamp replaces the archive's 'D' date/time separator with
// a space.
func NormalizeTimestamp(raw string) string {
	return strings.Replace(raw, "D", " ", 1)
}

// ParseRow converts one archive row into a tick event. Invalid enum
// values and negative quantities are schema errors; unparseable field
// values and short rows are per-row errors the loader counts and skips.
func ParseRow(h Header, record []string) (tick.Event, error) {
	field := func(col string) (string, error) {
		idx := h[col]
		if idx >= len(record) {
			return "", fmt.Errorf("row has %d fields, column %s expected at %d", len(record), col, idx)
		}
		return strings.TrimSpace(record[idx]), nil
	}

	var evt tick.Event

	raw, err := field("timestamp")
	if err != nil {
		return evt, err
	}
	ts, err := time.Parse(archiveTSLayout, NormalizeTimestamp(raw))
	if err != nil {
		return evt, fmt.Errorf("timestamp %q: %w", raw, err)
	}
	evt.Timestamp = ts

	if evt.OrderID, err = field("order_number"); err != nil {
		return evt, err
	}

	raw, err = field("price")
	if err != nil {
		return evt, err
	}
	if evt.PriceTicks, err = fpmath.ParsePrice(raw); err != nil {
		return evt, fmt.Errorf("price: %w", err)
	}

	raw, err = field("mp_quantity")
	if err != nil {
		return evt, err
	}
	if evt.Quantity, err = fpmath.ParseQuantity(raw); err != nil {
		return evt, fmt.Errorf("mp_quantity: %w", err)
	}

	raw, err = field("bid_or_ask")
	if err != nil {
		return evt, err
	}
	side, err := strconv.Atoi(raw)
	if err != nil {
		return evt, fmt.Errorf("bid_or_ask %q: %w", raw, err)
	}
	evt.Side = tick.Side(side)

	raw, err = field("change_reason")
	if err != nil {
		return evt, err
	}
	reason, err := strconv.Atoi(raw)
	if err != nil {
		return evt, fmt.Errorf("change_reason %q: %w", raw, err)
	}
	evt.ChangeReason = tick.ChangeReason(reason)

	if evt.Instrument, err = field("stockcode"); err != nil {
		return evt, err
	}

	return evt, evt.Validate()
}
