// Package execution routes validated trade intents to either the simulated
// ledger fill path or a live broker collaborator, normalizing both into one
// result shape.
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/ledger"
	"github.com/TrueFaxx/polymarketbot/internal/metrics"
	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

// Status classifies the outcome of one routed intent.
type Status string

const (
	// StatusFilled means the trade was applied to the ledger.
	StatusFilled Status = "filled"
	// StatusRejected means ledger-level validation refused the trade.
	StatusRejected Status = "rejected"
	// StatusError means the broker failed; the ledger was not touched.
	StatusError Status = "error"
)

// Result is the unified execution outcome for both modes.
type Result struct {
	Status      Status
	FilledPrice float64
	FilledSize  float64
	Simulated   bool
	Trade       ledger.Trade // zero unless Status == StatusFilled
	Detail      string
}

// BrokerFill is the broker collaborator's confirmation of a placed order.
type BrokerFill struct {
	OrderID     string
	FilledPrice float64
	FilledSize  float64
}

// Broker is the live-venue collaborator. Wire details live behind it.
type Broker interface {
	PlaceOrder(ctx context.Context, market string, side signal.Side, size, price float64) (BrokerFill, error)
	Balance(ctx context.Context) (float64, error)
}

// PriceSource supplies a reference price for intents marked "at market".
type PriceSource interface {
	Midpoint(ctx context.Context, market string) (float64, error)
}

const defaultReferencePrice = 0.5

// Router dispatches intents. The simulated/live choice is fixed at startup,
// never per trade.
type Router struct {
	ledger *ledger.Ledger
	broker Broker
	prices PriceSource
	live   bool
	log    zerolog.Logger
}

// NewSimulatedRouter fills every intent against the ledger directly.
func NewSimulatedRouter(l *ledger.Ledger, prices PriceSource, log zerolog.Logger) *Router {
	return &Router{ledger: l, prices: prices, log: log}
}

// NewLiveRouter places orders with the broker and applies only confirmed fills.
func NewLiveRouter(l *ledger.Ledger, broker Broker, prices PriceSource, log zerolog.Logger) *Router {
	return &Router{ledger: l, broker: broker, prices: prices, live: true, log: log}
}

// Live reports the routing mode chosen at startup.
func (r *Router) Live() bool { return r.live }

// Execute routes one intent. Ledger validation failures return StatusRejected;
// broker failures return StatusError without mutating the ledger. A
// persistence failure propagates as an error wrapping ledger.ErrPersist.
func (r *Router) Execute(ctx context.Context, intent signal.TradeIntent) (Result, error) {
	price := intent.Price
	if price <= 0 {
		price = r.referencePrice(ctx, intent.Market)
	}

	if !r.live {
		return r.applyFill(intent, price, intent.Size, true)
	}

	fill, err := r.broker.PlaceOrder(ctx, intent.Market, intent.Side, intent.Size, price)
	if err != nil {
		r.log.Error().Err(err).Str("market", intent.Market).Str("side", string(intent.Side)).
			Msg("broker order failed")
		return Result{Status: StatusError, Detail: err.Error()}, nil
	}
	// Record what the broker reports, not what was requested.
	return r.applyFill(intent, fill.FilledPrice, fill.FilledSize, false)
}

func (r *Router) applyFill(intent signal.TradeIntent, price, size float64, simulated bool) (Result, error) {
	trade, err := r.ledger.Apply(intent, price, size, simulated)
	if err != nil {
		if errors.Is(err, ledger.ErrPersist) {
			return Result{Status: StatusError, Detail: err.Error()}, fmt.Errorf("apply fill: %w", err)
		}
		return Result{Status: StatusRejected, Simulated: simulated, Detail: err.Error()}, nil
	}
	metrics.FillsTotal.WithLabelValues(trade.Market, string(trade.Side)).Inc()
	r.log.Info().Str("market", trade.Market).Str("side", string(trade.Side)).
		Float64("size", trade.Size).Float64("px", trade.Price).
		Float64("pnl", trade.RealizedPnL).Bool("sim", simulated).Msg("fill applied")
	return Result{
		Status:      StatusFilled,
		FilledPrice: trade.Price,
		FilledSize:  trade.Size,
		Simulated:   simulated,
		Trade:       trade,
	}, nil
}

func (r *Router) referencePrice(ctx context.Context, market string) float64 {
	if r.prices == nil {
		return defaultReferencePrice
	}
	mid, err := r.prices.Midpoint(ctx, market)
	if err != nil || mid <= 0 {
		r.log.Warn().Err(err).Str("market", market).Msg("reference price unavailable, using default")
		return defaultReferencePrice
	}
	return mid
}
