package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"TickBook/internal/observability"
)

// Output is one group's worth of derived rows, ready for persistence.
type Output struct {
	Daily  DailyRow
	Quotes []QuoteRow
}

// Worker drains the persist channel and batch-writes to Postgres. The
// producer sends with a BLOCKING channel, so if the worker falls behind
// the pipeline stalls rather than dropping records.
type Worker struct {
	writer       *Writer
	inputChan    <-chan Output
	batchSize    int
	flushTimeout time.Duration
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan Output,
	batchSize int,
	flushTimeout time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout expires. Returns after the input channel closes and the
// remainder is flushed, or when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	dailyBatch := make([]DailyRow, 0, w.batchSize)
	quoteBatch := make([]QuoteRow, 0, w.batchSize*64)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		if w.metrics != nil {
			w.metrics.SetQueueDepth(len(w.inputChan))
		}

		select {
		case <-ctx.Done():
			if len(dailyBatch)+len(quoteBatch) > 0 {
				if err := w.flush(context.Background(), dailyBatch, quoteBatch); err != nil {
					w.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(dailyBatch)+len(quoteBatch) > 0 {
					if err := w.flush(context.Background(), dailyBatch, quoteBatch); err != nil {
						w.logger.Error().Err(err).Msg("final flush failed")
						return err
					}
				}
				return nil
			}

			dailyBatch = append(dailyBatch, out.Daily)
			quoteBatch = append(quoteBatch, out.Quotes...)

			if len(dailyBatch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, dailyBatch, quoteBatch); err != nil {
					w.logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				dailyBatch = dailyBatch[:0]
				quoteBatch = quoteBatch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(dailyBatch) > 0 {
				if err := w.flushWithRetry(ctx, dailyBatch, quoteBatch); err != nil {
					w.logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				dailyBatch = dailyBatch[:0]
				quoteBatch = quoteBatch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff, indefinitely: the
// worker never drops rows. On cancellation mid-retry it attempts one
// final flush with a background context before giving up.
func (w *Worker) flushWithRetry(ctx context.Context, daily []DailyRow, quotes []QuoteRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("daily_rows", len(daily)).
				Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), daily, quotes); err != nil {
					return fmt.Errorf("final flush on shutdown: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, daily, quotes)
		if err == nil {
			if attempt > 0 {
				w.logger.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
	}
}

func (w *Worker) flush(ctx context.Context, daily []DailyRow, quotes []QuoteRow) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteDailyBatch(ctx, tx, daily); err != nil {
		w.countError("write_daily")
		return err
	}
	if err := w.writer.WriteQuoteBatch(ctx, tx, quotes); err != nil {
		w.countError("write_quotes")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(daily)))
		w.metrics.PersistRowsWritten.WithLabelValues("daily").Add(float64(len(daily)))
		w.metrics.PersistRowsWritten.WithLabelValues("best_quotes").Add(float64(len(quotes)))
	}
	return nil
}

func (w *Worker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
