package book_test

import (
	"errors"
	"testing"
	"time"

	"TickBook/internal/book"
	"TickBook/internal/tick"
)

func at(t *testing.T, clock string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05.000000", "2019-03-04 "+clock)
	if err != nil {
		t.Fatalf("parse timestamp: %v", err)
	}
	return ts
}

func bidAt(t *testing.T, clock, order string, priceTicks, qty int64) tick.Event {
	t.Helper()
	return tick.Event{
		Timestamp:  at(t, clock),
		OrderID:    order,
		PriceTicks: priceTicks,
		Quantity:   qty,
		Side:       tick.SideBid,
		Instrument: "TEST",
	}
}

func askAt(t *testing.T, clock, order string, priceTicks, qty int64) tick.Event {
	t.Helper()
	evt := bidAt(t, clock, order, priceTicks, qty)
	evt.Side = tick.SideAsk
	return evt
}

// ==== Delta semantics ====

func TestFirstEventIsPureAddition(t *testing.T) {
	r := book.NewReconstructor(tick.SideBid)

	if err := r.Apply(bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := r.DepthAt(10_0000); got != 100_00 {
		t.Errorf("depth at 10.00: got %d, want 100_00", got)
	}

	px, sz, ok := r.Best()
	if !ok {
		t.Fatal("expected a best bid")
	}
	if px != 10_0000 || sz != 100_00 {
		t.Errorf("best: got %d/%d, want 10_0000/100_00", px, sz)
	}
}

func TestSamePriceIsSingleSignedDelta(t *testing.T) {
	r := book.NewReconstructor(tick.SideBid)

	events := []tick.Event{
		bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00),
		bidAt(t, "09:10:01.000000", "A", 10_0000, 40_00),  // decrease
		bidAt(t, "09:10:02.000000", "A", 10_0000, 150_00), // increase at same price
	}
	for _, evt := range events {
		if err := r.Apply(evt); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	if got := r.DepthAt(10_0000); got != 150_00 {
		t.Errorf("depth at 10.00: got %d, want 150_00", got)
	}
	if got := r.Levels(); got != 1 {
		t.Errorf("levels touched: got %d, want 1", got)
	}
}

func TestPriceMoveShiftsFullContribution(t *testing.T) {
	r := book.NewReconstructor(tick.SideBid)

	if err := r.Apply(bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := r.Apply(bidAt(t, "09:10:01.000000", "A", 10_0100, 80_00)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := r.DepthAt(10_0000); got != 0 {
		t.Errorf("old level depth: got %d, want 0", got)
	}
	if got := r.DepthAt(10_0100); got != 80_00 {
		t.Errorf("new level depth: got %d, want 80_00", got)
	}

	// The drained level stays in the ledger at zero.
	if got := r.Levels(); got != 2 {
		t.Errorf("levels touched: got %d, want 2", got)
	}
}

func TestCancelRemovesEntireContribution(t *testing.T) {
	events := []tick.Event{
		bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00),
		bidAt(t, "09:10:01.000000", "B", 10_0100, 50_00),
		bidAt(t, "09:10:02.000000", "A", 10_0000, 0), // A cancels
	}

	series, err := book.Reconstruct(events, tick.SideBid)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("series length: got %d, want 3", series.Len())
	}

	points := series.Points()

	// While both rest, the lower level holds full depth but best stays at
	// the higher price.
	if points[1].PriceTicks != 10_0100 || points[1].Size != 50_00 {
		t.Errorf("best before cancel: got %d/%d, want 10_0100/50_00",
			points[1].PriceTicks, points[1].Size)
	}

	// After the cancel, B alone defines the top.
	if !points[2].Present {
		t.Fatal("expected best bid after cancel")
	}
	if points[2].PriceTicks != 10_0100 || points[2].Size != 50_00 {
		t.Errorf("best after cancel: got %d/%d, want 10_0100/50_00",
			points[2].PriceTicks, points[2].Size)
	}
}

func TestDepthEqualsSumOfPriorDeltas(t *testing.T) {
	r := book.NewReconstructor(tick.SideAsk)

	// Interleaved orders touching a shared level. Signed deltas at 20.00:
	// +30, +70, -10 (decrease), -30 (A moves away), +5 (C joins).
	events := []tick.Event{
		askAt(t, "10:00:00.000000", "A", 20_0000, 30_00),
		askAt(t, "10:00:01.000000", "B", 20_0000, 70_00),
		askAt(t, "10:00:02.000000", "B", 20_0000, 60_00),
		askAt(t, "10:00:03.000000", "A", 20_0100, 30_00),
		askAt(t, "10:00:04.000000", "C", 20_0000, 5_00),
	}
	for _, evt := range events {
		if err := r.Apply(evt); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	want := int64(30_00 + 70_00 - 10_00 - 30_00 + 5_00)
	if got := r.DepthAt(20_0000); got != want {
		t.Errorf("depth at 20.00: got %d, want %d", got, want)
	}
	if got := r.DepthAt(20_0100); got != 30_00 {
		t.Errorf("depth at 20.01: got %d, want 30_00", got)
	}
}

// ==== Best-quote selection ====

func TestBestAskIsLowestPositiveLevel(t *testing.T) {
	r := book.NewReconstructor(tick.SideAsk)

	events := []tick.Event{
		askAt(t, "10:00:00.000000", "A", 20_0200, 10_00),
		askAt(t, "10:00:01.000000", "B", 20_0000, 20_00),
		askAt(t, "10:00:02.000000", "C", 20_0100, 30_00),
	}
	for _, evt := range events {
		if err := r.Apply(evt); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	px, sz, ok := r.Best()
	if !ok {
		t.Fatal("expected a best ask")
	}
	if px != 20_0000 || sz != 20_00 {
		t.Errorf("best ask: got %d/%d, want 20_0000/20_00", px, sz)
	}
}

func TestBestSkipsDrainedLevels(t *testing.T) {
	r := book.NewReconstructor(tick.SideBid)

	events := []tick.Event{
		bidAt(t, "09:10:00.000000", "A", 10_0200, 10_00),
		bidAt(t, "09:10:01.000000", "B", 10_0000, 20_00),
		bidAt(t, "09:10:02.000000", "A", 10_0200, 0), // top level drains
	}
	for _, evt := range events {
		if err := r.Apply(evt); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	px, _, ok := r.Best()
	if !ok {
		t.Fatal("expected a best bid")
	}
	if px != 10_0000 {
		t.Errorf("best bid: got %d, want 10_0000", px)
	}
}

func TestEmptyBookHasNoQuote(t *testing.T) {
	events := []tick.Event{
		bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00),
		bidAt(t, "09:10:01.000000", "A", 10_0000, 0),
	}

	series, err := book.Reconstruct(events, tick.SideBid)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	points := series.Points()
	if !points[0].Present {
		t.Error("expected quote while the order rests")
	}
	if points[1].Present {
		t.Errorf("expected no quote after full cancel, got %d/%d",
			points[1].PriceTicks, points[1].Size)
	}
	if points[1].PriceTicks != 0 || points[1].Size != 0 {
		t.Errorf("absent quote must carry zero values, got %d/%d",
			points[1].PriceTicks, points[1].Size)
	}
}

func TestNoCrossingAcrossSides(t *testing.T) {
	raw := []tick.Event{
		bidAt(t, "09:10:00.000000", "B1", 10_0000, 100_00),
		askAt(t, "09:10:00.000000", "A1", 10_0500, 40_00),
		bidAt(t, "09:10:01.000000", "B2", 10_0300, 20_00),
		askAt(t, "09:10:01.000000", "A2", 10_0400, 10_00),
		bidAt(t, "09:10:02.000000", "B2", 10_0300, 0),
		askAt(t, "09:10:02.000000", "A2", 10_0350, 10_00),
	}

	bid, err := book.Reconstruct(book.FilterSide(raw, tick.SideBid), tick.SideBid)
	if err != nil {
		t.Fatalf("reconstruct bid: %v", err)
	}
	ask, err := book.Reconstruct(book.FilterSide(raw, tick.SideAsk), tick.SideAsk)
	if err != nil {
		t.Fatalf("reconstruct ask: %v", err)
	}

	for _, bp := range bid.Points() {
		ap, ok := ask.At(bp.Timestamp)
		if !ok || !bp.Present || !ap.Present {
			continue
		}
		if bp.PriceTicks > ap.PriceTicks {
			t.Errorf("crossed book at %s: bid %d > ask %d",
				bp.Timestamp.Format("15:04:05.000000"), bp.PriceTicks, ap.PriceTicks)
		}
	}
}

// ==== Timestamp handling ====

func TestSameTimestampEventsYieldOnePoint(t *testing.T) {
	events := []tick.Event{
		bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00),
		bidAt(t, "09:10:00.000000", "B", 10_0100, 50_00),
		bidAt(t, "09:10:01.000000", "C", 10_0200, 25_00),
	}

	series, err := book.Reconstruct(events, tick.SideBid)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("series length: got %d, want 2", series.Len())
	}

	// The first point reflects both same-timestamp additions.
	first := series.Points()[0]
	if first.PriceTicks != 10_0100 || first.Size != 50_00 {
		t.Errorf("first point: got %d/%d, want 10_0100/50_00", first.PriceTicks, first.Size)
	}
}

func TestNonMonotonicTimestamp_Fails(t *testing.T) {
	events := []tick.Event{
		bidAt(t, "09:10:01.000000", "A", 10_0000, 100_00),
		bidAt(t, "09:10:00.000000", "A", 10_0000, 50_00),
	}

	_, err := book.Reconstruct(events, tick.SideBid)
	if err == nil {
		t.Fatal("expected monotonicity error")
	}

	var merr *book.MonotonicityError
	if !errors.As(err, &merr) {
		t.Fatalf("expected *MonotonicityError, got %T", err)
	}
	if merr.OrderID != "A" {
		t.Errorf("order id: got %s, want A", merr.OrderID)
	}
}

func TestDuplicateTimestampSameOrder_Fails(t *testing.T) {
	r := book.NewReconstructor(tick.SideBid)

	if err := r.Apply(bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	err := r.Apply(bidAt(t, "09:10:00.000000", "A", 10_0000, 50_00))
	var merr *book.MonotonicityError
	if !errors.As(err, &merr) {
		t.Fatalf("expected *MonotonicityError, got %v", err)
	}
}

func TestSameTimestampAcrossOrdersIsValid(t *testing.T) {
	r := book.NewReconstructor(tick.SideBid)

	if err := r.Apply(bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00)); err != nil {
		t.Fatalf("apply A: %v", err)
	}
	if err := r.Apply(bidAt(t, "09:10:00.000000", "B", 10_0100, 50_00)); err != nil {
		t.Fatalf("apply B: %v", err)
	}
}

func TestWrongSideEvent_Fails(t *testing.T) {
	r := book.NewReconstructor(tick.SideBid)

	err := r.Apply(askAt(t, "09:10:00.000000", "A", 10_0000, 100_00))
	var serr *tick.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *tick.SchemaError, got %v", err)
	}
}

// ==== Series lookups ====

func TestSeriesAt(t *testing.T) {
	events := []tick.Event{
		bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00),
		bidAt(t, "09:10:02.000000", "B", 10_0100, 50_00),
	}

	series, err := book.Reconstruct(events, tick.SideBid)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	q, ok := series.At(at(t, "09:10:02.000000"))
	if !ok {
		t.Fatal("expected an entry at 09:10:02")
	}
	if q.PriceTicks != 10_0100 {
		t.Errorf("price: got %d, want 10_0100", q.PriceTicks)
	}

	if _, ok := series.At(at(t, "09:10:01.000000")); ok {
		t.Error("expected no entry at 09:10:01")
	}
}

func TestSeriesLastIn(t *testing.T) {
	events := []tick.Event{
		askAt(t, "16:58:30.000000", "A", 55_0000, 10_00),
		askAt(t, "16:59:10.000000", "B", 55_2000, 200_00),
		askAt(t, "16:59:40.000000", "C", 55_1000, 30_00),
		askAt(t, "17:05:00.000000", "D", 55_3000, 5_00),
	}

	series, err := book.Reconstruct(events, tick.SideAsk)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	preClose := tick.MustWindow("16:59:00", "17:00:00")
	q, ok := series.LastIn(preClose)
	if !ok {
		t.Fatal("expected an entry inside the pre-close window")
	}
	if !q.Timestamp.Equal(at(t, "16:59:40.000000")) {
		t.Errorf("timestamp: got %s, want 16:59:40", q.Timestamp.Format("15:04:05"))
	}

	if _, ok := series.LastIn(tick.MustWindow("12:00:00", "12:30:00")); ok {
		t.Error("expected no entry in an idle window")
	}
}

// ==== Digest ====

func TestDigestDeterministic(t *testing.T) {
	events := []tick.Event{
		bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00),
		bidAt(t, "09:10:01.000000", "B", 10_0100, 50_00),
		bidAt(t, "09:10:02.000000", "A", 10_0000, 0),
	}

	replay := func() [32]byte {
		r := book.NewReconstructor(tick.SideBid)
		for _, evt := range events {
			if err := r.Apply(evt); err != nil {
				t.Fatalf("apply: %v", err)
			}
		}
		return r.Digest()
	}

	first, second := replay(), replay()
	if first != second {
		t.Error("replays of the same stream diverged")
	}

	other := book.NewReconstructor(tick.SideBid)
	if err := other.Apply(bidAt(t, "09:10:00.000000", "A", 10_0000, 100_00)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if other.Digest() == first {
		t.Error("different depth states produced the same digest")
	}
}
