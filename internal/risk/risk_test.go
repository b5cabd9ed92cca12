package risk

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/TrueFaxx/polymarketbot/internal/ledger"
	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

func buyIntent(size, price float64) signal.TradeIntent {
	return signal.TradeIntent{
		Source: signal.SourceAnalyzer,
		Market: "btc_15min",
		Side:   signal.Buy,
		Size:   size,
		Price:  price,
	}
}

func account(balance float64) ledger.Account {
	return ledger.Account{Balance: balance, Positions: map[string]ledger.Position{}}
}

func reason(t *testing.T, err error) string {
	t.Helper()
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	return rej.Reason
}

func TestCheckAllows(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 100, MinBalanceThreshold: 10})
	if err := g.Check(buyIntent(200, 0.50), account(10000)); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if got := g.Stats().Trades; got != 1 {
		t.Fatalf("admission should increment trade count, got %d", got)
	}
}

func TestCheckMaxNotional(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 100, MinBalanceThreshold: 10})
	err := g.Check(buyIntent(300, 0.50), account(10000))
	if !strings.Contains(reason(t, err), "max bet size") {
		t.Fatalf("unexpected reason: %v", err)
	}
	if got := g.Stats().Trades; got != 0 {
		t.Fatalf("rejection must not count as a trade, got %d", got)
	}
}

func TestCheckBalanceFloor(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 100, MinBalanceThreshold: 50})
	err := g.Check(buyIntent(180, 0.50), account(120))
	if !strings.Contains(reason(t, err), "minimum threshold") {
		t.Fatalf("unexpected reason: %v", err)
	}

	// Sells never trip the floor.
	sell := buyIntent(180, 0.50)
	sell.Side = signal.Sell
	if err := g.Check(sell, account(120)); err != nil {
		t.Fatalf("sell should not trip the balance floor: %v", err)
	}
}

// Rules are evaluated in a fixed order: when both the notional cap and the
// balance floor would fail, the notional reason wins.
func TestCheckRuleOrder(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 10, MinBalanceThreshold: 1000})
	err := g.Check(buyIntent(100, 0.50), account(100))
	if !strings.Contains(reason(t, err), "max bet size") {
		t.Fatalf("expected notional reason first, got %v", err)
	}
}

func TestCheckDailyTradeLimit(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 100, MaxDailyTrades: 2})
	for i := 0; i < 2; i++ {
		if err := g.Check(buyIntent(10, 0.50), account(10000)); err != nil {
			t.Fatalf("trade %d should pass: %v", i, err)
		}
	}
	err := g.Check(buyIntent(10, 0.50), account(10000))
	if !strings.Contains(reason(t, err), "daily trade limit") {
		t.Fatalf("unexpected reason: %v", err)
	}
}

func TestReleaseAdmission(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 100, MaxDailyTrades: 1})
	if err := g.Check(buyIntent(10, 0.50), account(10000)); err != nil {
		t.Fatalf("first check should pass: %v", err)
	}
	g.ReleaseAdmission()
	if err := g.Check(buyIntent(10, 0.50), account(10000)); err != nil {
		t.Fatalf("released slot should be reusable: %v", err)
	}
}

func TestCheckDailyLossLimit(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 100, DailyLossLimit: 60})
	g.RecordOutcome(ledger.Trade{RealizedPnL: -40})

	// Worst case for a buy is its full notional: 50 + 40 > 60.
	err := g.Check(buyIntent(100, 0.50), account(10000))
	if !strings.Contains(reason(t, err), "daily loss limit") {
		t.Fatalf("unexpected reason: %v", err)
	}

	// A small buy still fits under the limit.
	if err := g.Check(buyIntent(20, 0.50), account(10000)); err != nil {
		t.Fatalf("small buy should pass: %v", err)
	}
}

func TestWorstCaseLossSell(t *testing.T) {
	snap := account(10000)
	snap.Positions["btc_15min"] = ledger.Position{Market: "btc_15min", Size: 100, AvgPrice: 0.60}

	g := NewGate(Limits{MaxNotionalPerTrade: 1000, DailyLossLimit: 5})
	sell := signal.TradeIntent{Market: "btc_15min", Side: signal.Sell, Size: 100, Price: 0.50}
	// Selling 100 bought at 0.60 for 0.50 realizes a 10.00 loss, over the limit.
	err := g.Check(sell, snap)
	if !strings.Contains(reason(t, err), "daily loss limit") {
		t.Fatalf("unexpected reason: %v", err)
	}

	// A profitable sell carries no worst-case loss.
	sell.Price = 0.70
	if err := g.Check(sell, snap); err != nil {
		t.Fatalf("profitable sell should pass: %v", err)
	}
}

func TestDailyResetAtDayBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 23, 50, 0, 0, time.UTC)
	g := NewGate(Limits{MaxNotionalPerTrade: 100, MaxDailyTrades: 1}, WithClock(func() time.Time { return now }))

	if err := g.Check(buyIntent(10, 0.50), account(10000)); err != nil {
		t.Fatalf("first trade should pass: %v", err)
	}
	if err := g.Check(buyIntent(10, 0.50), account(10000)); err == nil {
		t.Fatalf("second trade same day should fail")
	}

	// Still the same day: counters must not reset mid-day.
	now = now.Add(5 * time.Minute)
	if err := g.Check(buyIntent(10, 0.50), account(10000)); err == nil {
		t.Fatalf("counters reset mid-day")
	}

	// Crossing midnight resets exactly once.
	now = now.Add(10 * time.Minute)
	if err := g.Check(buyIntent(10, 0.50), account(10000)); err != nil {
		t.Fatalf("counters should reset after day boundary: %v", err)
	}
	stats := g.Stats()
	if stats.Day != "2025-03-02" || stats.Trades != 1 {
		t.Fatalf("unexpected stats after rollover: %+v", stats)
	}
}

func TestEmergencyStop(t *testing.T) {
	g := NewGate(Limits{MaxNotionalPerTrade: 100})
	g.ActivateEmergencyStop()
	err := g.Check(buyIntent(1, 0.50), account(10000))
	if !strings.Contains(reason(t, err), "emergency stop") {
		t.Fatalf("unexpected reason: %v", err)
	}
	g.ClearEmergencyStop()
	if err := g.Check(buyIntent(1, 0.50), account(10000)); err != nil {
		t.Fatalf("cleared stop should allow trades: %v", err)
	}
}
