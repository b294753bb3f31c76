package tick

import (
	"fmt"
	"time"
)

// Side identifies which half of the book an event belongs to.
// Wire values come from the archive's bid_or_ask column.
type Side int32

const (
	SideUnknown Side = 0
	SideBid     Side = 1
	SideAsk     Side = 2
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// Valid reports whether the side carries one of the two wire values.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// ChangeReason is the archive's change_reason code. Only the match code
// is interpreted; every other value passes through opaque.
type ChangeReason int32

// ReasonMatch marks a trade/match event in the auction uncrossing.
const ReasonMatch ChangeReason = 3

// Event is one recorded change to an order's posted price/quantity.
// Quantity is the quantity the order exhibits AFTER this event, not a
// delta. Events are immutable once parsed.
type Event struct {
	// Microsecond-resolution instant, UTC (archive carries no zone)
	Timestamp time.Time

	// Opaque identifier, stable per order over its lifetime
	OrderID string

	// Fixed-point price ticks (fpmath.PriceScale)
	PriceTicks int64

	// Posted quantity after the event, fixed-point (fpmath.QuantityScale)
	Quantity int64

	Side         Side
	ChangeReason ChangeReason

	// Instrument identifier (stockcode)
	Instrument string
}

// SchemaError reports a required field that is missing or carries an
// unusable value. Schema errors abort the whole run.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: field %q: %s", e.Field, e.Reason)
}

// Validate checks the schema contract on a parsed event.
func (e Event) Validate() error {
	if e.Timestamp.IsZero() {
		return &SchemaError{Field: "timestamp", Reason: "missing or unparseable"}
	}
	if e.OrderID == "" {
		return &SchemaError{Field: "order_number", Reason: "empty"}
	}
	if e.Quantity < 0 {
		return &SchemaError{Field: "mp_quantity", Reason: "negative"}
	}
	if !e.Side.Valid() {
		return &SchemaError{Field: "bid_or_ask", Reason: fmt.Sprintf("invalid value %d", int32(e.Side))}
	}
	if e.Instrument == "" {
		return &SchemaError{Field: "stockcode", Reason: "empty"}
	}
	return nil
}
