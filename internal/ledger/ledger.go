// Package ledger owns the trading account: balance, open positions, realized
// PnL, and the append-only trade journal. All mutation happens through Apply;
// reads happen through Snapshot. Concurrency safety above this package comes
// from the engine's single-consumer queue, the internal mutex only guards
// against snapshot reads racing a persist.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

const epsilon = 1e-9

var (
	// ErrInsufficientBalance rejects a buy whose cost exceeds available cash.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientPosition rejects a sell larger than the held size.
	ErrInsufficientPosition = errors.New("insufficient position")
	// ErrPersist marks a failed durable write. The caller must treat this as
	// fatal: in-memory and on-disk state can no longer be trusted to agree.
	ErrPersist = errors.New("ledger persistence failed")
)

// Position is one open holding, tracked at weighted-average entry cost.
type Position struct {
	Market     string    `json:"market"`
	MarketName string    `json:"market_name,omitempty"`
	Side       string    `json:"side"` // "long"; flat positions are removed
	Size       float64   `json:"size"`
	AvgPrice   float64   `json:"avg_price"`
	EntryTime  time.Time `json:"entry_time"`
}

// Trade is the immutable journal record of one applied intent.
type Trade struct {
	ID            string        `json:"id"`
	Ts            time.Time     `json:"timestamp"`
	Source        signal.Source `json:"source"`
	Market        string        `json:"market"`
	MarketName    string        `json:"market_name,omitempty"`
	Side          signal.Side   `json:"side"`
	Size          float64       `json:"size"`
	Price         float64       `json:"price"`
	Cost          float64       `json:"cost"`
	RealizedPnL   float64       `json:"realized_pnl"`
	BalanceAfter  float64       `json:"balance_after"`
	Reason        string        `json:"reason,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Simulated     bool          `json:"simulated"`
}

// Account is the persisted aggregate state.
type Account struct {
	InitialBalance float64             `json:"initial_balance"`
	Balance        float64             `json:"balance"`
	Positions      map[string]Position `json:"positions"`
	RealizedPnL    float64             `json:"realized_pnl"`
	Trades         []Trade             `json:"trades"`
	LastUpdated    time.Time           `json:"last_updated"`
}

// Ledger mediates every account mutation and persists after each one. Sells
// beyond held size are always rejected; the account never goes short.
type Ledger struct {
	mu   sync.Mutex
	acct Account
	path string
	now  func() time.Time
}

// Option configures Ledger construction.
type Option func(*Ledger)

// WithClock overrides the timestamp source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a ledger persisting to path. If the file exists the account is
// restored from it; otherwise a fresh account starts at initialBalance.
func New(path string, initialBalance float64, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		acct: Account{
			InitialBalance: initialBalance,
			Balance:        initialBalance,
			Positions:      make(map[string]Position),
		},
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.restore(); err != nil {
		return nil, err
	}
	return l, nil
}

// Apply executes a validated intent at the given fill price and size, mutating
// balance and positions, appending one journal entry, and persisting before
// returning. A validation failure mutates nothing and appends nothing.
func (l *Ledger) Apply(intent signal.TradeIntent, fillPrice, fillSize float64, simulated bool) (Trade, error) {
	if fillSize <= 0 {
		return Trade{}, fmt.Errorf("fill size must be positive, got %f", fillSize)
	}
	if fillPrice <= 0 {
		return Trade{}, fmt.Errorf("fill price must be positive, got %f", fillPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := fillSize * fillPrice
	var realized float64

	switch intent.Side {
	case signal.Buy:
		if cost > l.acct.Balance+epsilon {
			return Trade{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientBalance, cost, l.acct.Balance)
		}
		pos, ok := l.acct.Positions[intent.Market]
		if !ok {
			pos = Position{
				Market:     intent.Market,
				MarketName: intent.MarketName,
				Side:       "long",
				EntryTime:  l.now(),
			}
		}
		newSize := pos.Size + fillSize
		pos.AvgPrice = ((pos.AvgPrice * pos.Size) + cost) / newSize
		pos.Size = newSize
		l.acct.Balance -= cost
		l.acct.Positions[intent.Market] = pos

	case signal.Sell:
		pos, ok := l.acct.Positions[intent.Market]
		if !ok {
			return Trade{}, fmt.Errorf("%w: no open position in %s", ErrInsufficientPosition, intent.Market)
		}
		if pos.Size+epsilon < fillSize {
			return Trade{}, fmt.Errorf("%w: have %.4f, selling %.4f", ErrInsufficientPosition, pos.Size, fillSize)
		}
		closed := math.Min(fillSize, pos.Size)
		realized = (fillPrice - pos.AvgPrice) * closed
		l.acct.RealizedPnL += realized
		l.acct.Balance += cost
		pos.Size -= fillSize
		if pos.Size <= epsilon {
			delete(l.acct.Positions, intent.Market)
		} else {
			l.acct.Positions[intent.Market] = pos
		}

	default:
		return Trade{}, fmt.Errorf("unknown trade side %q", intent.Side)
	}

	trade := Trade{
		ID:            ulid.Make().String(),
		Ts:            l.now(),
		Source:        intent.Source,
		Market:        intent.Market,
		MarketName:    intent.MarketName,
		Side:          intent.Side,
		Size:          fillSize,
		Price:         fillPrice,
		Cost:          cost,
		RealizedPnL:   realized,
		BalanceAfter:  l.acct.Balance,
		Reason:        intent.Reason,
		CorrelationID: intent.CorrelationID,
		Simulated:     simulated,
	}
	l.acct.Trades = append(l.acct.Trades, trade)
	l.acct.LastUpdated = trade.Ts

	if err := l.persistLocked(); err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return trade, nil
}

// Snapshot returns a deep copy of the account reflecting every applied trade.
func (l *Ledger) Snapshot() Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyLocked()
}

func (l *Ledger) copyLocked() Account {
	out := l.acct
	out.Positions = make(map[string]Position, len(l.acct.Positions))
	for k, v := range l.acct.Positions {
		out.Positions[k] = v
	}
	out.Trades = make([]Trade, len(l.acct.Trades))
	copy(out.Trades, l.acct.Trades)
	return out
}

// Balance returns current free cash.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acct.Balance
}

// RealizedPnL returns the running total of closed-trade profit and loss.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acct.RealizedPnL
}

// Persist writes the account to disk via a temp file rename so a crash can
// never leave a truncated state file behind.
func (l *Ledger) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.persistLocked(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (l *Ledger) persistLocked() error {
	if l.path == "" {
		return nil
	}
	if dir := filepath.Dir(l.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(l.acct, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *Ledger) restore() error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger state: %w", err)
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return fmt.Errorf("decode ledger state: %w", err)
	}
	if acct.Positions == nil {
		acct.Positions = make(map[string]Position)
	}
	l.acct = acct
	return nil
}

// Reset reinitializes the account to the configured starting balance and
// persists the empty state.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acct = Account{
		InitialBalance: l.acct.InitialBalance,
		Balance:        l.acct.InitialBalance,
		Positions:      make(map[string]Position),
		LastUpdated:    l.now(),
	}
	if err := l.persistLocked(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
