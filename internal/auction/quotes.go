package auction

import (
	"TickBook/internal/book"
	"TickBook/internal/tick"
)

// OpeningQuotes reads both sides of the book at the exact match instant.
// A side with no series entry at that instant reports the 0/0 sentinel;
// a sentinel match reports 0/0 for both sides without any lookup.
func OpeningQuotes(bid, ask *book.Series, match Match) (bidPx, bidSz, askPx, askSz int64) {
	if !match.Found {
		return 0, 0, 0, 0
	}
	bidPx, bidSz = quoteValues(bid.At(match.Timestamp))
	askPx, askSz = quoteValues(ask.At(match.Timestamp))
	return
}

// ClosingQuotes reads each side's last entry inside the pre-close window.
// Closing quotes sample before the uncrossing, not at the match instant
// itself. An empty window on a side reports 0/0 for that side; a sentinel
// match reports 0/0 for both.
func ClosingQuotes(bid, ask *book.Series, preClose tick.TimeWindow, match Match) (bidPx, bidSz, askPx, askSz int64) {
	if !match.Found {
		return 0, 0, 0, 0
	}
	bidPx, bidSz = quoteValues(bid.LastIn(preClose))
	askPx, askSz = quoteValues(ask.LastIn(preClose))
	return
}

// quoteValues collapses a series lookup to the zero sentinel when the
// entry is missing or holds no quote. This is the single point where the
// explicit absence flag turns into output zeros.
func quoteValues(q book.BestQuote, ok bool) (px, sz int64) {
	if !ok || !q.Present {
		return 0, 0
	}
	return q.PriceTicks, q.Size
}
