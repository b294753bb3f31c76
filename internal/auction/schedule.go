package auction

import (
	"fmt"
	"os"

	"TickBook/internal/tick"

	"gopkg.in/yaml.v3"
)

// Schedule holds the venue clock windows the extraction runs against.
// Windows are data, not rules baked into the algorithms; a different
// venue ships a different schedule file.
type Schedule struct {
	MorningSession   tick.TimeWindow
	AfternoonSession tick.TimeWindow
	OpeningAuction   tick.TimeWindow
	ClosingAuction   tick.TimeWindow
	PreClose         tick.TimeWindow
}

// DefaultSchedule returns the windows of the source venue.
func DefaultSchedule() Schedule {
	return Schedule{
		MorningSession:   tick.MustWindow("08:58:00", "09:02:00"),
		AfternoonSession: tick.MustWindow("16:59:00", "17:16:00"),
		OpeningAuction:   tick.MustWindow("08:58:00", "09:00:00"),
		ClosingAuction:   tick.MustWindow("17:04:00", "17:06:00"),
		PreClose:         tick.MustWindow("16:59:00", "17:00:00"),
	}
}

// Validate checks every window of the schedule.
func (s Schedule) Validate() error {
	windows := []struct {
		name string
		w    tick.TimeWindow
	}{
		{"morning_session", s.MorningSession},
		{"afternoon_session", s.AfternoonSession},
		{"opening_auction", s.OpeningAuction},
		{"closing_auction", s.ClosingAuction},
		{"pre_close", s.PreClose},
	}
	for _, win := range windows {
		if err := win.w.Validate(); err != nil {
			return fmt.Errorf("%s: %w", win.name, err)
		}
	}
	return nil
}

type windowSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type scheduleFile struct {
	MorningSession   *windowSpec `yaml:"morning_session"`
	AfternoonSession *windowSpec `yaml:"afternoon_session"`
	OpeningAuction   *windowSpec `yaml:"opening_auction"`
	ClosingAuction   *windowSpec `yaml:"closing_auction"`
	PreClose         *windowSpec `yaml:"pre_close"`
}

// LoadSchedule reads window overrides from a YAML file. Windows the file
// omits keep their defaults.
func LoadSchedule(path string) (Schedule, error) {
	sched := DefaultSchedule()

	b, err := os.ReadFile(path)
	if err != nil {
		return sched, fmt.Errorf("read %s: %w", path, err)
	}

	var file scheduleFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return sched, fmt.Errorf("parse yaml: %w", err)
	}

	overrides := []struct {
		name string
		spec *windowSpec
		dst  *tick.TimeWindow
	}{
		{"morning_session", file.MorningSession, &sched.MorningSession},
		{"afternoon_session", file.AfternoonSession, &sched.AfternoonSession},
		{"opening_auction", file.OpeningAuction, &sched.OpeningAuction},
		{"closing_auction", file.ClosingAuction, &sched.ClosingAuction},
		{"pre_close", file.PreClose, &sched.PreClose},
	}
	for _, o := range overrides {
		if o.spec == nil {
			continue
		}
		w, err := parseWindow(*o.spec)
		if err != nil {
			return sched, fmt.Errorf("%s: %w", o.name, err)
		}
		*o.dst = w
	}

	return sched, sched.Validate()
}

func parseWindow(spec windowSpec) (tick.TimeWindow, error) {
	from, err := tick.ParseTimeOfDay(spec.From)
	if err != nil {
		return tick.TimeWindow{}, err
	}
	to, err := tick.ParseTimeOfDay(spec.To)
	if err != nil {
		return tick.TimeWindow{}, err
	}
	w := tick.TimeWindow{From: from, To: to}
	return w, w.Validate()
}
