package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"TickBook/internal/summary"
	"TickBook/internal/testutil"
)

func sampleRecord(instrument string) PublishableRecord {
	morning := time.Date(2019, 3, 4, 8, 59, 30, 0, time.UTC)
	return PublishableRecord{
		RunID: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Record: summary.DailyRecord{
			Date:              time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC),
			Instrument:        instrument,
			MorningMatchTS:    &morning,
			MorningMatchPrice: 54_1000,
			MorningBid:        54_1000,
			MorningAsk:        54_2000,
		},
	}
}

// ==== Wire format ====

func TestEncodeRecord_WireFormat(t *testing.T) {
	enc := encodeRecord(sampleRecord("ALPHA"))

	if enc.RunID != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("run id %q", enc.RunID)
	}
	if enc.Date != "2019-03-04" {
		t.Errorf("date %q, want 2019-03-04", enc.Date)
	}
	if enc.Ticker != "ALPHA" {
		t.Errorf("ticker %q", enc.Ticker)
	}
	if enc.MorningMatchTS == nil || *enc.MorningMatchTS != "2019-03-04 08:59:30.000000" {
		t.Errorf("morning match ts %v", enc.MorningMatchTS)
	}
	if enc.MorningMatchPrice != "54.1" || enc.MorningBidPrice != "54.1" || enc.MorningAskPrice != "54.2" {
		t.Errorf("morning prices %s/%s/%s", enc.MorningMatchPrice, enc.MorningBidPrice, enc.MorningAskPrice)
	}
	if enc.ClosingMatchTS != nil {
		t.Errorf("closing match ts %v, want nil", enc.ClosingMatchTS)
	}
	if enc.ClosingMatchPrice != "0" || enc.ClosingBidPrice != "0" || enc.ClosingAskPrice != "0" {
		t.Errorf("closing sentinels %s/%s/%s", enc.ClosingMatchPrice, enc.ClosingBidPrice, enc.ClosingAskPrice)
	}
}

func TestEncodeRecord_AbsentTimestampIsJSONNull(t *testing.T) {
	data, err := json.Marshal(encodeRecord(sampleRecord("ALPHA")))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := m["closing_matching_timestamp"]; !ok || v != nil {
		t.Errorf("closing_matching_timestamp = %v, want null", v)
	}
	if m["morning_matching_timestamp"] != "2019-03-04 08:59:30.000000" {
		t.Errorf("morning_matching_timestamp = %v", m["morning_matching_timestamp"])
	}
}

// ==== Round trip (integration) ====

func TestPublisherRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := ConnectNATS(testutil.TestNATSURL(), zerolog.Nop())
	if err != nil {
		t.Skipf("test nats not available: %v (start with: docker compose -f docker-compose.test.yml up -d)", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := EnsureAuctionStream(ctx, js, zerolog.Nop()); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}

	// Unique instrument per run keeps reruns from reading stale messages.
	instrument := fmt.Sprintf("RT%d", time.Now().UnixNano())
	ch := make(chan PublishableRecord, 1)
	ch <- sampleRecord(instrument)
	close(ch)

	pub := NewRecordPublisher(js, ch, zerolog.Nop(), nil)
	if err := pub.Run(ctx); err != nil {
		t.Fatalf("publisher run: %v", err)
	}

	stream, err := js.Stream(ctx, "TICKBOOK_AUCTION")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	msg, err := stream.GetLastMsgForSubject(ctx, "tickbook.auction.daily."+instrument)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	var got dailyRecordJSON
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.Ticker != instrument {
		t.Errorf("ticker %q, want %q", got.Ticker, instrument)
	}
	if got.Date != "2019-03-04" || got.MorningMatchPrice != "54.1" {
		t.Errorf("payload %s / %s", got.Date, got.MorningMatchPrice)
	}
}
