package auction

import (
	"time"

	"TickBook/internal/tick"
)

// Match is the outcome of auction extraction against one window.
// Found=false is the no-match sentinel for an empty window. A found
// timestamp with PriceTicks == 0 means the window had activity but no
// qualifying match trade; callers must never read a zero price as a real
// price.
type Match struct {
	Timestamp  time.Time
	Found      bool
	PriceTicks int64
}

// ExtractMatch applies the matching-price heuristic to one day's events,
// both sides included, against one auction window.
//
// The candidate instant is the timestamp carrying the most events inside
// the window; ties resolve to the earliest instant. Among events at that
// instant, the first in event order with the match change reason and
// nonzero quantity supplies the price. Without one the price stays at the
// zero sentinel while the timestamp is still reported.
func ExtractMatch(events []tick.Event, window tick.TimeWindow) Match {
	inWindow := make([]tick.Event, 0, len(events))
	for _, evt := range events {
		if window.Contains(evt.Timestamp) {
			inWindow = append(inWindow, evt)
		}
	}
	if len(inWindow) == 0 {
		return Match{}
	}

	counts := make(map[int64]int)
	for _, evt := range inWindow {
		counts[evt.Timestamp.UnixMicro()]++
	}

	// Deterministic regardless of map iteration order: strictly higher
	// count wins, equal count falls back to the earlier instant.
	var bestTS int64
	bestCount := 0
	for ts, n := range counts {
		if n > bestCount || (n == bestCount && ts < bestTS) {
			bestTS, bestCount = ts, n
		}
	}

	match := Match{Timestamp: time.UnixMicro(bestTS).UTC(), Found: true}
	for _, evt := range inWindow {
		if evt.Timestamp.UnixMicro() != bestTS {
			continue
		}
		if evt.ChangeReason == tick.ReasonMatch && evt.Quantity != 0 {
			match.PriceTicks = evt.PriceTicks
			break
		}
	}
	return match
}
