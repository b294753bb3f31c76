package summary

import (
	"sort"
	"time"

	"TickBook/internal/tick"
)

// Group is the unit of parallel work: one instrument's events for one
// calendar day, in archive order.
type Group struct {
	Date       time.Time // midnight UTC
	Instrument string
	Events     []tick.Event
}

// Partition splits a time-ordered stream into (calendar date, instrument)
// groups. Grouping keys are unique by construction, so no deduplication
// happens here; output is ordered ascending by (date, instrument).
func Partition(events []tick.Event) []Group {
	type key struct {
		date       int64
		instrument string
	}

	index := make(map[key]int)
	groups := make([]Group, 0)

	for _, evt := range events {
		day := dateOf(evt.Timestamp)
		k := key{date: day.UnixMicro(), instrument: evt.Instrument}

		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Date: day, Instrument: evt.Instrument})
		}
		groups[i].Events = append(groups[i].Events, evt)
	}

	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].Date.Equal(groups[j].Date) {
			return groups[i].Date.Before(groups[j].Date)
		}
		return groups[i].Instrument < groups[j].Instrument
	})

	return groups
}

// dateOf truncates an instant to its midnight UTC calendar day.
func dateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
