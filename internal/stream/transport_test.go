package stream

import (
	"testing"
	"time"

	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

func TestEventFromEnvelope(t *testing.T) {
	cases := []struct {
		name string
		env  wsEnvelope
		side signal.Side
	}{
		{"sell lowercase", wsEnvelope{Side: "sell"}, signal.Sell},
		{"sell uppercase", wsEnvelope{Side: "SELL"}, signal.Sell},
		{"buy", wsEnvelope{Side: "buy"}, signal.Buy},
		{"unknown defaults to buy", wsEnvelope{Side: "match"}, signal.Buy},
		{"empty defaults to buy", wsEnvelope{}, signal.Buy},
	}
	for _, tc := range cases {
		if got := eventFromEnvelope(tc.env).Side; got != tc.side {
			t.Fatalf("%s: expected side %s, got %s", tc.name, tc.side, got)
		}
	}

	env := wsEnvelope{
		Type:       "trade",
		Wallet:     "0xabc",
		Market:     "cond-1",
		MarketName: "Will it rain tomorrow?",
		Side:       "SELL",
		Size:       42,
		Price:      0.37,
		TxHash:     "0xdeadbeef",
		Timestamp:  1_700_000_000,
	}
	ev := eventFromEnvelope(env)
	if ev.Wallet != "0xabc" || ev.Market != "cond-1" || ev.MarketName != "Will it rain tomorrow?" {
		t.Fatalf("identity fields not carried: %+v", ev)
	}
	if ev.Size != 42 || ev.Price != 0.37 {
		t.Fatalf("trade fields not carried: %+v", ev)
	}
	if ev.CorrelationID != "0xdeadbeef" {
		t.Fatalf("tx hash should become the correlation id, got %q", ev.CorrelationID)
	}
	if !ev.EventTime.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("unexpected event time %s", ev.EventTime)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	cases := []struct {
		name string
		ts   int64
		want time.Time
	}{
		{"seconds", 1_700_000_000, time.Unix(1_700_000_000, 0)},
		{"milliseconds", 1_700_000_000_123, time.UnixMilli(1_700_000_000_123)},
		{"boundary is millis", 10_000_000_000, time.UnixMilli(10_000_000_000)},
	}
	for _, tc := range cases {
		if got := normalizeTimestamp(tc.ts); !got.Equal(tc.want) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}

	// Missing timestamps fall back to the current clock.
	before := time.Now()
	got := normalizeTimestamp(0)
	if got.Before(before) || time.Since(got) > time.Minute {
		t.Fatalf("zero timestamp should map to now, got %s", got)
	}
}
