package book

import (
	"sort"
	"time"

	"TickBook/internal/tick"
)

// BestQuote is the top of one book side after all events at one timestamp
// have been applied. Present=false means no level held strictly positive
// depth; it is never conflated with a zero price.
type BestQuote struct {
	Timestamp  time.Time
	PriceTicks int64
	Size       int64
	Present    bool
}

// Series is the time-ordered best-quote history of one side over one
// trading day. Entries are unique per timestamp, ascending.
type Series struct {
	side   tick.Side
	points []BestQuote
}

// Side returns which half of the book this series tracks.
func (s *Series) Side() tick.Side {
	return s.side
}

func (s *Series) Len() int {
	return len(s.points)
}

// Points returns the underlying entries. Callers must not mutate them.
func (s *Series) Points() []BestQuote {
	return s.points
}

// At returns the entry recorded exactly at ts.
func (s *Series) At(ts time.Time) (BestQuote, bool) {
	i := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Timestamp.Before(ts)
	})
	if i < len(s.points) && s.points[i].Timestamp.Equal(ts) {
		return s.points[i], true
	}
	return BestQuote{}, false
}

// LastIn returns the latest entry whose time of day falls inside w.
// A series spans a single trading day, so time-of-day order matches
// timestamp order.
func (s *Series) LastIn(w tick.TimeWindow) (BestQuote, bool) {
	for i := len(s.points) - 1; i >= 0; i-- {
		if w.Contains(s.points[i].Timestamp) {
			return s.points[i], true
		}
	}
	return BestQuote{}, false
}
