package ingestion

import (
	"fmt"
	"sort"
	"time"

	"TickBook/internal/tick"
)

// FilterSpec selects the slice of the archive a run works on. Zero
// values mean unbounded.
type FilterSpec struct {
	// Instrument allow-list; empty keeps every instrument
	Tickers []string

	// Inclusive lower bound; zero plus an interval anchors on the
	// earliest event
	Start time.Time

	// Inclusive upper bound; ignored when Interval is set
	End time.Time

	// Calendar span from Start: 1d, 1wk, 1mo, 3mo or 1y. The derived
	// window is half-open, [Start, Start+span).
	Interval string
}

// Filter keeps events matching spec and sorts the survivors by
// (instrument, timestamp), preserving archive order within equal
// timestamps. An empty result is an error: every downstream stage
// assumes at least one event.
func Filter(events []tick.Event, spec FilterSpec) ([]tick.Event, error) {
	start := spec.Start
	end := spec.End
	halfOpen := false

	if spec.Interval != "" {
		if start.IsZero() {
			start = earliestTimestamp(events)
		}
		var err error
		if end, err = intervalEnd(start, spec.Interval); err != nil {
			return nil, err
		}
		halfOpen = true
	}

	var tickers map[string]struct{}
	if len(spec.Tickers) > 0 {
		tickers = make(map[string]struct{}, len(spec.Tickers))
		for _, t := range spec.Tickers {
			tickers[t] = struct{}{}
		}
	}

	out := make([]tick.Event, 0, len(events))
	for _, evt := range events {
		if tickers != nil {
			if _, ok := tickers[evt.Instrument]; !ok {
				continue
			}
		}
		if !start.IsZero() && evt.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() {
			if halfOpen && !evt.Timestamp.Before(end) {
				continue
			}
			if !halfOpen && evt.Timestamp.After(end) {
				continue
			}
		}
		out = append(out, evt)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no events match the filter")
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Instrument != out[j].Instrument {
			return out[i].Instrument < out[j].Instrument
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// SessionFilter keeps events whose timestamp falls inside any of the
// given clock windows. Events outside every window cannot influence an
// auction result and only slow reconstruction down.
func SessionFilter(events []tick.Event, windows ...tick.TimeWindow) []tick.Event {
	out := make([]tick.Event, 0, len(events))
	for _, evt := range events {
		for _, w := range windows {
			if w.Contains(evt.Timestamp) {
				out = append(out, evt)
				break
			}
		}
	}
	return out
}

func earliestTimestamp(events []tick.Event) time.Time {
	var min time.Time
	for _, evt := range events {
		if min.IsZero() || evt.Timestamp.Before(min) {
			min = evt.Timestamp
		}
	}
	return min
}

// intervalEnd advances start by one calendar span. Months and years use
// calendar arithmetic, not fixed durations.
func intervalEnd(start time.Time, interval string) (time.Time, error) {
	switch interval {
	case "1d":
		return start.AddDate(0, 0, 1), nil
	case "1wk":
		return start.AddDate(0, 0, 7), nil
	case "1mo":
		return start.AddDate(0, 1, 0), nil
	case "3mo":
		return start.AddDate(0, 3, 0), nil
	case "1y":
		return start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown interval %q (valid: 1d, 1wk, 1mo, 3mo, 1y)", interval)
	}
}
