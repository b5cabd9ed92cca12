// Package stream follows a target identity's live trade stream and replicates
// its trades as intents, surviving disconnects without duplicating fills.
package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/metrics"
	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

// State is the follower's connection lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateStreaming    State = "streaming"
	StateShuttingDown State = "shutting_down"
)

// Config tunes replication and reconnection behavior.
type Config struct {
	TargetWallet    string
	PositionScale   float64
	PositionSizePct float64 // when >0, buy size = balance * pct / price
	MaxDelay        time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	StableAfter     time.Duration // streaming this long resets the backoff
	DedupeHorizon   time.Duration
	DedupeMax       int
}

// Follower runs the connection state machine and emits scaled intents for the
// target identity's trades.
type Follower struct {
	cfg       Config
	transport Transport
	log       zerolog.Logger
	balance   func() float64
	backoff   *backoff
	seen      *dedupeSet
	now       func() time.Time

	mu        sync.Mutex
	state     State
	lastEvent time.Time
}

// NewFollower builds a follower. balance supplies current free cash for
// percent-of-balance sizing; pass nil to always use the scale factor.
func NewFollower(cfg Config, transport Transport, balance func() float64, log zerolog.Logger) *Follower {
	if cfg.PositionScale <= 0 {
		cfg.PositionScale = 1.0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 60 * time.Second
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = 30 * time.Second
	}
	return &Follower{
		cfg:       cfg,
		transport: transport,
		log:       log,
		balance:   balance,
		backoff:   newBackoff(cfg.BackoffBase, cfg.BackoffMax),
		seen:      newDedupeSet(cfg.DedupeHorizon, cfg.DedupeMax),
		state:     StateDisconnected,
		now:       time.Now,
	}
}

// State returns the current lifecycle phase.
func (f *Follower) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastEventTime returns when the last accepted event arrived.
func (f *Follower) LastEventTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEvent
}

func (f *Follower) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Run drives the state machine until ctx is canceled. The transport is closed
// cleanly on shutdown and no further reconnects are attempted.
func (f *Follower) Run(ctx context.Context, out chan<- signal.TradeIntent) error {
	if f.cfg.TargetWallet == "" {
		return fmt.Errorf("no target wallet configured")
	}
	f.log.Info().Str("wallet", f.cfg.TargetWallet).Float64("scale", f.cfg.PositionScale).
		Msg("copy-trade follower started")

	for {
		if err := ctx.Err(); err != nil {
			f.shutdown()
			return err
		}

		f.setState(StateConnecting)
		if err := f.transport.Connect(ctx); err != nil {
			f.log.Warn().Err(err).Msg("connect failed")
			if !f.waitBackoff(ctx) {
				f.shutdown()
				return ctx.Err()
			}
			continue
		}

		f.setState(StateSubscribed)
		if err := f.transport.Subscribe(ctx, f.cfg.TargetWallet); err != nil {
			f.log.Warn().Err(err).Msg("subscribe failed")
			f.transport.Close()
			f.setState(StateDisconnected)
			if !f.waitBackoff(ctx) {
				f.shutdown()
				return ctx.Err()
			}
			continue
		}

		f.setState(StateStreaming)
		streamingSince := f.now()

		for {
			ev, err := f.transport.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					f.shutdown()
					return ctx.Err()
				}
				f.log.Warn().Err(err).Msg("stream disconnected")
				f.noteDisconnect(streamingSince)
				break
			}
			f.handleEvent(ctx, ev, out)
		}

		f.transport.Close()
		f.setState(StateDisconnected)
		metrics.ReconnectsTotal.Inc()
		if !f.waitBackoff(ctx) {
			f.shutdown()
			return ctx.Err()
		}
	}
}

// noteDisconnect resets the backoff when the connection held long enough to
// count as stable. Measured against the session start, not event arrivals, so
// a quiet stream (keepalives only) still earns the reset.
func (f *Follower) noteDisconnect(streamingSince time.Time) {
	if f.now().Sub(streamingSince) >= f.cfg.StableAfter {
		f.backoff.Reset()
	}
}

func (f *Follower) shutdown() {
	f.setState(StateShuttingDown)
	f.transport.Close()
}

// waitBackoff sleeps the next backoff delay; false means ctx was canceled.
func (f *Follower) waitBackoff(ctx context.Context) bool {
	delay := f.backoff.Next()
	f.log.Info().Dur("delay", delay).Msg("reconnecting after backoff")
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Follower) handleEvent(ctx context.Context, ev signal.Event, out chan<- signal.TradeIntent) {
	if !strings.EqualFold(ev.Wallet, f.cfg.TargetWallet) {
		metrics.StreamEventsTotal.WithLabelValues("foreign").Inc()
		return
	}

	id := ev.CorrelationID
	if id == "" {
		// Fallback dedupe key when the event carries no transaction hash.
		id = fmt.Sprintf("%s_%s_%d_%s", ev.Wallet, ev.Market, ev.EventTime.UnixMilli(), ev.Side)
	}
	now := f.now()
	if f.seen.Seen(id, now) {
		metrics.StreamEventsTotal.WithLabelValues("duplicate").Inc()
		f.log.Debug().Str("correlation_id", id).Msg("discarding replayed event")
		return
	}
	if age := now.Sub(ev.EventTime); age > f.cfg.MaxDelay {
		metrics.StreamEventsTotal.WithLabelValues("stale").Inc()
		f.log.Debug().Dur("age", age).Str("market", ev.Market).Msg("discarding stale event")
		return
	}

	size := ev.Size * f.cfg.PositionScale
	if f.cfg.PositionSizePct > 0 && ev.Side == signal.Buy && f.balance != nil && ev.Price > 0 {
		size = f.balance() * f.cfg.PositionSizePct / ev.Price
	}

	intent := signal.TradeIntent{
		Source:        signal.SourceFollower,
		Market:        ev.Market,
		MarketName:    ev.MarketName,
		Side:          ev.Side,
		Size:          size,
		Price:         ev.Price,
		Reason:        fmt.Sprintf("copied from %s", shortWallet(ev.Wallet)),
		CorrelationID: id,
		Ts:            now,
	}

	select {
	case out <- intent:
		metrics.StreamEventsTotal.WithLabelValues("accepted").Inc()
		metrics.IntentsTotal.WithLabelValues(string(signal.SourceFollower)).Inc()
		f.mu.Lock()
		f.lastEvent = now
		f.mu.Unlock()
		f.log.Info().Str("side", string(ev.Side)).Float64("size", size).
			Float64("px", ev.Price).Str("market", ev.Market).Msg("copying target trade")
	case <-ctx.Done():
	}
}

func shortWallet(w string) string {
	if len(w) <= 8 {
		return w
	}
	return w[:8] + "..."
}
