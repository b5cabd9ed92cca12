// Package signal standardizes payloads shared between the intent producers and
// the execution pipeline.
package signal

import "time"

// Side enumerates trade directions used throughout the pipeline.
type Side string

const (
	// Buy opens or increases a long position.
	Buy Side = "BUY"
	// Sell reduces or closes a long position.
	Sell Side = "SELL"
)

// Source identifies which producer created an intent.
type Source string

const (
	// SourceAnalyzer marks intents emitted by the periodic trend analyzer.
	SourceAnalyzer Source = "trend_analysis"
	// SourceFollower marks intents emitted by the copy-trade stream follower.
	SourceFollower Source = "copy_trading"
)

// TradeIntent is a proposed trade. It is created by exactly one source,
// consumed exactly once by the engine, and never mutated after creation.
type TradeIntent struct {
	Source        Source
	Market        string
	MarketName    string
	Side          Side
	Size          float64
	Price         float64 // 0 means "at market reference price"
	Reason        string
	CorrelationID string
	Ts            time.Time
}

// Event is one trade observed on the upstream activity stream.
type Event struct {
	Wallet        string
	Market        string
	MarketName    string
	Side          Side
	Size          float64
	Price         float64
	CorrelationID string
	EventTime     time.Time
}
