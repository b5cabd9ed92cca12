// Package journal records every completed intent, filled or rejected, to an
// external append-only log.
package journal

import (
	"time"

	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

// Record is one completed intent. Exactly one record is appended per intent
// that reaches the engine, regardless of outcome.
type Record struct {
	ID            string        `json:"id"`
	Ts            time.Time     `json:"timestamp"`
	Source        signal.Source `json:"source"`
	Market        string        `json:"market"`
	MarketName    string        `json:"market_name,omitempty"`
	Side          signal.Side   `json:"side"`
	Size          float64       `json:"size"`
	Price         float64       `json:"price"`
	Status        string        `json:"status"` // filled | rejected | error
	Reason        string        `json:"reason,omitempty"`
	RealizedPnL   float64       `json:"realized_pnl"`
	BalanceAfter  float64       `json:"balance_after"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Simulated     bool          `json:"simulated"`
}

// Journal is the trade-log collaborator contract.
type Journal interface {
	Append(Record) error
	Close() error
}
