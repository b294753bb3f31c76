package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"TickBook/internal/fpmath"
	"TickBook/internal/observability"
	"TickBook/internal/summary"
)

// RecordPublisher publishes finished daily records to NATS for
// downstream consumers. Subjects follow the pattern
// tickbook.auction.daily.{instrument}.
type RecordPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableRecord
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// PublishableRecord is a daily record ready for outbound publishing,
// tagged with the run that produced it.
type PublishableRecord struct {
	RunID  uuid.UUID
	Record summary.DailyRecord
}

func NewRecordPublisher(js jetstream.JetStream, inputChan <-chan PublishableRecord, logger zerolog.Logger, metrics *observability.Metrics) *RecordPublisher {
	return &RecordPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run drains the input channel until it closes or the context is
// cancelled. Publish failures are warnings, never fatal: the CSV and the
// database remain the source of truth.
func (rp *RecordPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rec, ok := <-rp.inputChan:
			if !ok {
				return nil
			}

			if err := rp.publish(ctx, rec); err != nil {
				rp.logger.Warn().Err(err).
					Str("instrument", rec.Record.Instrument).
					Str("date", rec.Record.Date.Format("2006-01-02")).
					Msg("outbound publish failed")
				if rp.metrics != nil {
					rp.metrics.PublishErrors.Inc()
				}
				continue
			}
			if rp.metrics != nil {
				rp.metrics.RecordsPublished.Inc()
			}
		}
	}
}

func (rp *RecordPublisher) publish(ctx context.Context, rec PublishableRecord) error {
	data, err := json.Marshal(encodeRecord(rec))
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	subject := fmt.Sprintf("tickbook.auction.daily.%s", rec.Record.Instrument)
	_, err = rp.js.Publish(ctx, subject, data)
	return err
}

// dailyRecordJSON is the outbound wire format. Field names follow the
// summary CSV columns; prices travel as decimal strings.
type dailyRecordJSON struct {
	RunID             string  `json:"run_id"`
	Date              string  `json:"date"`
	Ticker            string  `json:"ticker"`
	MorningMatchTS    *string `json:"morning_matching_timestamp"`
	MorningMatchPrice string  `json:"morning_matching_price"`
	MorningBidPrice   string  `json:"morning_bid_price"`
	MorningAskPrice   string  `json:"morning_ask_price"`
	ClosingMatchTS    *string `json:"closing_matching_timestamp"`
	ClosingMatchPrice string  `json:"closing_matching_price"`
	ClosingBidPrice   string  `json:"closing_bid_price"`
	ClosingAskPrice   string  `json:"closing_ask_price"`
}

func encodeRecord(rec PublishableRecord) dailyRecordJSON {
	r := rec.Record
	return dailyRecordJSON{
		RunID:             rec.RunID.String(),
		Date:              r.Date.Format("2006-01-02"),
		Ticker:            r.Instrument,
		MorningMatchTS:    optionalTS(r.MorningMatchTS),
		MorningMatchPrice: fpmath.FormatPrice(r.MorningMatchPrice),
		MorningBidPrice:   fpmath.FormatPrice(r.MorningBid),
		MorningAskPrice:   fpmath.FormatPrice(r.MorningAsk),
		ClosingMatchTS:    optionalTS(r.ClosingMatchTS),
		ClosingMatchPrice: fpmath.FormatPrice(r.ClosingMatchPrice),
		ClosingBidPrice:   fpmath.FormatPrice(r.ClosingBid),
		ClosingAskPrice:   fpmath.FormatPrice(r.ClosingAsk),
	}
}

func optionalTS(ts *time.Time) *string {
	if ts == nil {
		return nil
	}
	s := ts.Format(summary.TimestampLayout)
	return &s
}

// EnsureAuctionStream creates the outbound records stream.
func EnsureAuctionStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "TICKBOOK_AUCTION",
		Subjects:  []string{"tickbook.auction.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create auction stream: %w", err)
	}
	logger.Info().Str("stream", "TICKBOOK_AUCTION").Msg("ensured outbound stream")
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
