package tick

import (
	"fmt"
	"time"
)

// TimeOfDay is a clock time expressed as microseconds since midnight.
// Auction and session windows compare against this, independent of date.
type TimeOfDay int64

// MicrosPerDay is the number of microseconds in 24 hours.
const MicrosPerDay = int64(24 * time.Hour / time.Microsecond)

// TimeOfDayOf extracts the clock time of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	micros := int64(h)*3600_000_000 + int64(m)*60_000_000 + int64(s)*1_000_000
	micros += int64(t.Nanosecond() / 1000)
	return TimeOfDay(micros)
}

// ParseTimeOfDay parses "HH:MM:SS" (seconds required, no fraction).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("parse time of day %q: out of range", s)
	}
	return TimeOfDay(int64(h)*3600_000_000 + int64(m)*60_000_000 + int64(sec)*1_000_000), nil
}

func (t TimeOfDay) String() string {
	micros := int64(t)
	h := micros / 3600_000_000
	micros -= h * 3600_000_000
	m := micros / 60_000_000
	micros -= m * 60_000_000
	s := micros / 1_000_000
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// TimeWindow is an inclusive [From, To] clock-time interval.
type TimeWindow struct {
	From TimeOfDay
	To   TimeOfDay
}

// Contains reports whether the clock time of ts falls inside the window.
func (w TimeWindow) Contains(ts time.Time) bool {
	tod := TimeOfDayOf(ts)
	return tod >= w.From && tod <= w.To
}

// Validate rejects inverted or out-of-range windows.
func (w TimeWindow) Validate() error {
	if w.From < 0 || int64(w.To) >= MicrosPerDay {
		return fmt.Errorf("window %s-%s: out of range", w.From, w.To)
	}
	if w.From > w.To {
		return fmt.Errorf("window %s-%s: from after to", w.From, w.To)
	}
	return nil
}

// MustWindow builds a window from two "HH:MM:SS" strings. Panics on bad
// input; intended for package-level defaults.
func MustWindow(from, to string) TimeWindow {
	f, err := ParseTimeOfDay(from)
	if err != nil {
		panic(err)
	}
	t, err := ParseTimeOfDay(to)
	if err != nil {
		panic(err)
	}
	return TimeWindow{From: f, To: t}
}
