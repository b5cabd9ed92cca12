// Package risk validates proposed trades against per-trade and per-day limits
// before they reach the execution router.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/TrueFaxx/polymarketbot/internal/ledger"
	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

// Limits encodes the guard-rails the gate enforces. Zero-valued daily limits
// disable the corresponding rule.
type Limits struct {
	MaxNotionalPerTrade float64
	MinBalanceThreshold float64
	MaxDailyTrades      int
	DailyLossLimit      float64
}

// RejectionError reports why an intent was refused. The reason comes from the
// first failing rule so diagnostics stay deterministic.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "risk check failed: " + e.Reason }

// DailyStats summarizes the counters for the current calendar day.
type DailyStats struct {
	Day          string
	Trades       int
	RealizedLoss float64
}

// Gate owns the daily counters. The trade count is charged at admission so two
// queued intents cannot both pass the count check; the loss counter is charged
// only after the fill is known via RecordOutcome.
type Gate struct {
	mu            sync.Mutex
	limits        Limits
	dayKey        string
	tradesToday   int
	lossToday     float64
	emergencyStop bool
	now           func() time.Time
}

// Option configures Gate construction.
type Option func(*Gate)

// WithClock overrides the day-boundary clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate builds a gate with fresh counters for today.
func NewGate(limits Limits, opts ...Option) *Gate {
	g := &Gate{limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	g.dayKey = g.now().Format("2006-01-02")
	return g
}

// resetIfNewDayLocked lazily rolls the counters on the first call of a new
// calendar day. Never scheduled eagerly.
func (g *Gate) resetIfNewDayLocked() {
	day := g.now().Format("2006-01-02")
	if day != g.dayKey {
		g.dayKey = day
		g.tradesToday = 0
		g.lossToday = 0
	}
}

const defaultReferencePrice = 0.5

// Check validates intent against snap. Rules run in fixed order; the first
// failure becomes the rejection reason. On success the daily trade count is
// incremented before returning.
func (g *Gate) Check(intent signal.TradeIntent, snap ledger.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDayLocked()

	if g.emergencyStop {
		return &RejectionError{Reason: "emergency stop activated"}
	}

	price := intent.Price
	if price <= 0 {
		price = defaultReferencePrice
	}
	notional := intent.Size * price

	if notional > g.limits.MaxNotionalPerTrade {
		return &RejectionError{Reason: fmt.Sprintf(
			"trade cost (%.2f) exceeds max bet size (%.2f)", notional, g.limits.MaxNotionalPerTrade)}
	}
	if intent.Side == signal.Buy && snap.Balance-notional < g.limits.MinBalanceThreshold {
		return &RejectionError{Reason: fmt.Sprintf(
			"trade would bring balance below minimum threshold (%.2f)", g.limits.MinBalanceThreshold)}
	}
	if g.limits.MaxDailyTrades > 0 && g.tradesToday+1 > g.limits.MaxDailyTrades {
		return &RejectionError{Reason: fmt.Sprintf(
			"daily trade limit reached (%d)", g.limits.MaxDailyTrades)}
	}
	if g.limits.DailyLossLimit > 0 {
		worst := worstCaseLoss(intent, price, snap)
		if g.lossToday+worst > g.limits.DailyLossLimit {
			return &RejectionError{Reason: fmt.Sprintf(
				"daily loss limit reached (%.2f)", g.limits.DailyLossLimit)}
		}
	}

	g.tradesToday++
	return nil
}

// worstCaseLoss bounds how much the intent could add to today's realized loss.
// A buy can lose its full notional (the outcome resolves to zero); a sell
// realizes at most the loss already embedded in the closed portion.
func worstCaseLoss(intent signal.TradeIntent, price float64, snap ledger.Account) float64 {
	if intent.Side == signal.Buy {
		return intent.Size * price
	}
	pos, ok := snap.Positions[intent.Market]
	if !ok {
		return 0
	}
	closed := math.Min(intent.Size, pos.Size)
	return math.Max(0, (pos.AvgPrice-price)*closed)
}

// RecordOutcome reconciles the loss counter with the realized PnL of an
// executed trade. Call once per fill admitted by Check.
func (g *Gate) RecordOutcome(trade ledger.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDayLocked()
	if trade.RealizedPnL < 0 {
		g.lossToday += -trade.RealizedPnL
	}
}

// ReleaseAdmission undoes the optimistic trade-count increment for an intent
// that was admitted but never filled (broker error, ledger rejection).
func (g *Gate) ReleaseAdmission() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDayLocked()
	if g.tradesToday > 0 {
		g.tradesToday--
	}
}

// ActivateEmergencyStop latches the gate shut until cleared.
func (g *Gate) ActivateEmergencyStop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emergencyStop = true
}

// ClearEmergencyStop reopens the gate.
func (g *Gate) ClearEmergencyStop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emergencyStop = false
}

// EmergencyStopped reports whether the latch is set.
func (g *Gate) EmergencyStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emergencyStop
}

// Stats returns the counters for the current day.
func (g *Gate) Stats() DailyStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDayLocked()
	return DailyStats{Day: g.dayKey, Trades: g.tradesToday, RealizedLoss: g.lossToday}
}
