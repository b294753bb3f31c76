package summary

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"TickBook/internal/auction"
	"TickBook/internal/book"
	"TickBook/internal/observability"
	"TickBook/internal/tick"
)

// Options tunes one batch build.
type Options struct {
	// Workers sizes the group worker pool. Non-positive means one worker
	// per CPU.
	Workers int

	// RetainSeries keeps each group's bid/ask series in the result for
	// quote export. Off, the series are discarded after extraction.
	RetainSeries bool

	Metrics *observability.Metrics
}

// DailyRecord is the final output unit, one row per (date, instrument).
// A nil match timestamp together with zero prices is the propagated
// no-match sentinel.
type DailyRecord struct {
	Date       time.Time
	Instrument string

	MorningMatchTS    *time.Time
	MorningMatchPrice int64
	MorningBid        int64
	MorningAsk        int64

	ClosingMatchTS    *time.Time
	ClosingMatchPrice int64
	ClosingBid        int64
	ClosingAsk        int64
}

// GroupError marks one failed (date, instrument) group. A failure stays
// contained to its group; the rest of the batch is unaffected.
type GroupError struct {
	Date       time.Time
	Instrument string
	Err        error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %s/%s: %v", e.Date.Format("2006-01-02"), e.Instrument, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// GroupResult pairs one completed record with its retained quote series.
type GroupResult struct {
	Record DailyRecord
	Bid    *book.Series
	Ask    *book.Series
}

// Result is everything one build produced, ordered by (date, instrument).
// Skipped counts groups never attempted because the run was cancelled.
type Result struct {
	Groups  []GroupResult
	Errors  []*GroupError
	Skipped int
}

// Records returns the completed daily records in output order.
func (r Result) Records() []DailyRecord {
	records := make([]DailyRecord, len(r.Groups))
	for i, g := range r.Groups {
		records[i] = g.Record
	}
	return records
}

type outcome struct {
	done bool
	res  GroupResult
	err  *GroupError
}

// Build fans groups out to a worker pool and assembles one DailyRecord
// per group: reconstruct both sides, extract the opening and closing
// matches, look up the prevailing quotes. Groups share no state, so the
// result is identical for any worker count; output order follows the
// input group order.
func Build(ctx context.Context, groups []Group, sched auction.Schedule, opts Options) Result {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(groups) {
		workers = len(groups)
	}

	outcomes := make([]outcome, len(groups))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = buildGroup(groups[idx], sched, opts)
			}
		}()
	}

feed:
	for i := range groups {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var result Result
	for _, out := range outcomes {
		switch {
		case !out.done:
			result.Skipped++
		case out.err != nil:
			result.Errors = append(result.Errors, out.err)
		default:
			result.Groups = append(result.Groups, out.res)
		}
	}
	return result
}

func buildGroup(g Group, sched auction.Schedule, opts Options) outcome {
	start := time.Now()
	m := opts.Metrics

	fail := func(err error) outcome {
		if m != nil {
			m.GroupsTotal.WithLabelValues("failed").Inc()
			m.GroupDuration.Observe(time.Since(start).Seconds())
		}
		return outcome{
			done: true,
			err:  &GroupError{Date: g.Date, Instrument: g.Instrument, Err: err},
		}
	}

	bid, err := book.Reconstruct(book.FilterSide(g.Events, tick.SideBid), tick.SideBid)
	if err != nil {
		return fail(err)
	}
	ask, err := book.Reconstruct(book.FilterSide(g.Events, tick.SideAsk), tick.SideAsk)
	if err != nil {
		return fail(err)
	}

	opening := auction.ExtractMatch(g.Events, sched.OpeningAuction)
	closing := auction.ExtractMatch(g.Events, sched.ClosingAuction)

	morningBid, _, morningAsk, _ := auction.OpeningQuotes(bid, ask, opening)
	closingBid, _, closingAsk, _ := auction.ClosingQuotes(bid, ask, sched.PreClose, closing)

	rec := DailyRecord{
		Date:              g.Date,
		Instrument:        g.Instrument,
		MorningMatchPrice: opening.PriceTicks,
		MorningBid:        morningBid,
		MorningAsk:        morningAsk,
		ClosingMatchPrice: closing.PriceTicks,
		ClosingBid:        closingBid,
		ClosingAsk:        closingAsk,
	}
	if opening.Found {
		ts := opening.Timestamp
		rec.MorningMatchTS = &ts
	}
	if closing.Found {
		ts := closing.Timestamp
		rec.ClosingMatchTS = &ts
	}

	res := GroupResult{Record: rec}
	if opts.RetainSeries {
		res.Bid, res.Ask = bid, ask
	}

	if m != nil {
		m.EventsProcessed.Add(float64(len(g.Events)))
		m.GroupEvents.Observe(float64(len(g.Events)))
		m.GroupsTotal.WithLabelValues("ok").Inc()
		m.GroupDuration.Observe(time.Since(start).Seconds())
	}

	return outcome{done: true, res: res}
}
