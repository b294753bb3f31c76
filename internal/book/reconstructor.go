package book

import (
	"fmt"
	"time"

	"TickBook/internal/tick"

	"github.com/tidwall/btree"
)

// MonotonicityError reports an event whose timestamp fails to strictly
// advance within a single order's stream. The archive contract guarantees
// per-order ordering, so a violation marks the whole (date, instrument)
// group as untrustworthy.
type MonotonicityError struct {
	OrderID string
	Prev    time.Time
	Curr    time.Time
}

func (e *MonotonicityError) Error() string {
	return fmt.Sprintf("non-monotonic timestamps for order %s: %s followed by %s",
		e.OrderID,
		e.Prev.Format("2006-01-02 15:04:05.000000"),
		e.Curr.Format("2006-01-02 15:04:05.000000"))
}

// orderState is the last posted (price, quantity) pair for one order.
// It lives only for the duration of one reconstruction pass.
type orderState struct {
	priceTicks int64
	quantity   int64
	lastTS     time.Time
}

// Reconstructor replays one side's events into a price-level depth ledger.
// Not safe for concurrent use; each (date, instrument) group gets its own
// instance.
type Reconstructor struct {
	side   tick.Side
	orders map[string]*orderState
	depth  *btree.Map[int64, int64] // price ticks -> accumulated depth
}

func NewReconstructor(side tick.Side) *Reconstructor {
	return &Reconstructor{
		side:   side,
		orders: make(map[string]*orderState),
		depth:  btree.NewMap[int64, int64](32),
	}
}

// Apply folds one event into the depth ledger.
//
// First sighting of an order is a pure addition at its price. A price move
// removes the full prior quantity from the old level and posts the new
// quantity at the new level, both from the same event. An event at an
// unchanged price contributes a single signed delta, which uniformly covers
// cancels to zero, partial reductions, and increases.
func (r *Reconstructor) Apply(evt tick.Event) error {
	if evt.Side != r.side {
		return &tick.SchemaError{
			Field:  "bid_or_ask",
			Reason: fmt.Sprintf("%s event fed to the %s book", evt.Side, r.side),
		}
	}

	st, seen := r.orders[evt.OrderID]
	if !seen {
		r.add(evt.PriceTicks, evt.Quantity)
		r.orders[evt.OrderID] = &orderState{
			priceTicks: evt.PriceTicks,
			quantity:   evt.Quantity,
			lastTS:     evt.Timestamp,
		}
		return nil
	}

	// Equal timestamps within one order are duplicates, not ties.
	if !evt.Timestamp.After(st.lastTS) {
		return &MonotonicityError{OrderID: evt.OrderID, Prev: st.lastTS, Curr: evt.Timestamp}
	}

	if evt.PriceTicks != st.priceTicks {
		r.add(st.priceTicks, -st.quantity)
		r.add(evt.PriceTicks, evt.Quantity)
	} else {
		r.add(evt.PriceTicks, evt.Quantity-st.quantity)
	}

	st.priceTicks = evt.PriceTicks
	st.quantity = evt.Quantity
	st.lastTS = evt.Timestamp

	return nil
}

// add accumulates a signed delta at a price level. Levels are never
// deleted: a level back at zero depth is a distinct state from a level
// never touched.
func (r *Reconstructor) add(priceTicks, delta int64) {
	cur, _ := r.depth.Get(priceTicks)
	r.depth.Set(priceTicks, cur+delta)
}

// Best returns the current top of this side: the greatest price with
// strictly positive depth for bids, the least for asks. ok=false means no
// level holds positive depth.
func (r *Reconstructor) Best() (priceTicks, size int64, ok bool) {
	iter := func(price, depth int64) bool {
		if depth <= 0 {
			return true
		}
		priceTicks, size, ok = price, depth, true
		return false
	}

	if r.side == tick.SideBid {
		r.depth.Reverse(iter)
	} else {
		r.depth.Scan(iter)
	}
	return
}

// DepthAt returns the accumulated depth at one price level. Untouched
// levels report zero.
func (r *Reconstructor) DepthAt(priceTicks int64) int64 {
	d, _ := r.depth.Get(priceTicks)
	return d
}

// Levels returns the number of price levels ever touched, zero-depth
// levels included.
func (r *Reconstructor) Levels() int {
	return r.depth.Len()
}

// Reconstruct replays a time-ordered event stream for one side and returns
// the best-quote series: one entry per unique timestamp, sampled after
// every delta at that timestamp has been applied. Events must already be
// filtered to the requested side and sorted by timestamp; per-order
// monotonicity is enforced, and the first violation aborts the pass.
func Reconstruct(events []tick.Event, side tick.Side) (*Series, error) {
	r := NewReconstructor(side)
	series := &Series{side: side, points: make([]BestQuote, 0, len(events))}

	for i := 0; i < len(events); {
		ts := events[i].Timestamp

		j := i
		for j < len(events) && events[j].Timestamp.Equal(ts) {
			if err := r.Apply(events[j]); err != nil {
				return nil, err
			}
			j++
		}

		px, sz, ok := r.Best()
		series.points = append(series.points, BestQuote{
			Timestamp:  ts,
			PriceTicks: px,
			Size:       sz,
			Present:    ok,
		})

		i = j
	}

	return series, nil
}

// FilterSide returns the subsequence of events carrying the given side,
// preserving order.
func FilterSide(events []tick.Event, side tick.Side) []tick.Event {
	out := make([]tick.Event, 0, len(events))
	for _, evt := range events {
		if evt.Side == side {
			out = append(out, evt)
		}
	}
	return out
}
