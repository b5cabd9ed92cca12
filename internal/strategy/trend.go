// Package strategy hosts the periodic trend analyzer that turns externally
// computed indicators into trade intents.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/metrics"
	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

// Verdict is the outcome of one analysis cycle.
type Verdict string

const (
	VerdictBuy  Verdict = "buy"
	VerdictSell Verdict = "sell"
	VerdictHold Verdict = "hold"
)

const sizingReferencePrice = 0.5

// Config tunes the analyzer cadence and signal thresholds.
type Config struct {
	Interval      time.Duration
	Market        string
	MarketName    string
	Symbol        string
	MaxBet        float64
	RSIOverbought float64
	RSIOversold   float64
}

// Analyzer fires on a clock-aligned cadence, evaluates the EMA crossover rule
// against the latest indicators, and emits at most one intent per cycle.
// Cycles run sequentially in one goroutine, so they can never overlap; a slow
// cycle makes the loop wait for the next aligned boundary instead.
type Analyzer struct {
	cfg        Config
	src        IndicatorSource
	log        zerolog.Logger
	lastSignal Verdict
	now        func() time.Time
}

// NewAnalyzer builds an analyzer with defaults matching the production config.
func NewAnalyzer(cfg Config, src IndicatorSource, log zerolog.Logger) *Analyzer {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = 30
	}
	return &Analyzer{cfg: cfg, src: src, log: log, lastSignal: VerdictHold, now: time.Now}
}

// Run blocks until ctx is canceled, pushing intents onto out. The next firing
// time is always recomputed from the wall clock, so long uptimes cannot drift.
func (a *Analyzer) Run(ctx context.Context, out chan<- signal.TradeIntent) error {
	a.log.Info().Dur("interval", a.cfg.Interval).Str("symbol", a.cfg.Symbol).
		Msg("trend analyzer started")

	timer := time.NewTimer(a.untilNextTick())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			a.cycle(ctx, out)
			timer.Reset(a.untilNextTick())
		}
	}
}

// untilNextTick aligns firing to interval boundaries from the absolute clock.
func (a *Analyzer) untilNextTick() time.Duration {
	now := a.now()
	next := now.Truncate(a.cfg.Interval).Add(a.cfg.Interval)
	return next.Sub(now)
}

func (a *Analyzer) cycle(ctx context.Context, out chan<- signal.TradeIntent) {
	ind, err := a.src.Latest(ctx, a.cfg.Symbol)
	if err != nil {
		if errors.Is(err, ErrDataUnavailable) {
			a.log.Warn().Err(err).Msg("skipping cycle, indicator data unavailable")
		} else {
			a.log.Error().Err(err).Msg("indicator fetch failed, skipping cycle")
		}
		return
	}

	verdict, reason := a.decide(ind)
	a.log.Debug().Str("signal", string(verdict)).Str("reason", reason).Msg("cycle evaluated")

	if verdict == VerdictHold {
		return
	}
	if verdict == a.lastSignal {
		a.log.Debug().Str("signal", string(verdict)).Msg("skipping duplicate signal")
		return
	}

	side := signal.Buy
	if verdict == VerdictSell {
		side = signal.Sell
	}
	intent := signal.TradeIntent{
		Source:        signal.SourceAnalyzer,
		Market:        a.cfg.Market,
		MarketName:    a.cfg.MarketName,
		Side:          side,
		Size:          a.cfg.MaxBet / sizingReferencePrice,
		Price:         0, // at market; the router resolves the reference price
		Reason:        reason,
		CorrelationID: ulid.Make().String(),
		Ts:            a.now(),
	}

	select {
	case out <- intent:
		metrics.IntentsTotal.WithLabelValues(string(signal.SourceAnalyzer)).Inc()
		a.lastSignal = verdict
		a.log.Info().Str("side", string(side)).Float64("size", intent.Size).
			Str("reason", reason).Msg("intent emitted")
	case <-ctx.Done():
	}
}

// decide applies the crossover rule: BUY on a bullish EMA crossover with RSI
// under the overbought bound, SELL on a bearish crossover with RSI over the
// oversold bound. Threshold semantics follow the production configuration
// as-is.
func (a *Analyzer) decide(ind IndicatorSet) (Verdict, string) {
	if ind.PrevEMAShort == 0 && ind.PrevEMALong == 0 {
		return VerdictHold, "no previous EMA samples"
	}

	bullish := ind.PrevEMAShort <= ind.PrevEMALong && ind.EMAShort > ind.EMALong
	bearish := ind.PrevEMAShort >= ind.PrevEMALong && ind.EMAShort < ind.EMALong

	if bullish && ind.RSI < a.cfg.RSIOverbought {
		return VerdictBuy, fmt.Sprintf(
			"bullish EMA crossover and RSI %.2f < %.2f", ind.RSI, a.cfg.RSIOverbought)
	}
	if bearish && ind.RSI > a.cfg.RSIOversold {
		return VerdictSell, fmt.Sprintf(
			"bearish EMA crossover and RSI %.2f > %.2f", ind.RSI, a.cfg.RSIOversold)
	}
	return VerdictHold, fmt.Sprintf(
		"no clear signal (EMA short %.2f, EMA long %.2f, RSI %.2f)", ind.EMAShort, ind.EMALong, ind.RSI)
}
