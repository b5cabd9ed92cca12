// Package engine serializes trade intents from all sources through one
// risk-then-execute pipeline. A single consumer goroutine owns the queue, so
// risk checks always see a ledger state that includes every earlier decision.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/execution"
	"github.com/TrueFaxx/polymarketbot/internal/journal"
	"github.com/TrueFaxx/polymarketbot/internal/ledger"
	"github.com/TrueFaxx/polymarketbot/internal/metrics"
	"github.com/TrueFaxx/polymarketbot/internal/risk"
	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

const defaultQueueSize = 256

// Engine is the serializing orchestrator. Sources push intents into Intents();
// Run consumes them one at a time until the context is canceled, then drains
// whatever is still queued before returning.
type Engine struct {
	ledger  *ledger.Ledger
	gate    *risk.Gate
	router  *execution.Router
	journal journal.Journal
	log     zerolog.Logger
	queue   chan signal.TradeIntent
}

// New builds an engine around its collaborators. queueSize <= 0 uses the
// default buffer.
func New(l *ledger.Ledger, gate *risk.Gate, router *execution.Router, jrnl journal.Journal, log zerolog.Logger, queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Engine{
		ledger:  l,
		gate:    gate,
		router:  router,
		journal: jrnl,
		log:     log,
		queue:   make(chan signal.TradeIntent, queueSize),
	}
}

// Intents is the submission channel shared by every signal source.
func (e *Engine) Intents() chan<- signal.TradeIntent { return e.queue }

// Run processes intents until ctx is canceled. It returns ctx.Err() on a clean
// shutdown, or the underlying error when the ledger can no longer persist, in
// which case the process must stop trading.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Bool("live", e.router.Live()).Msg("engine started")
	for {
		select {
		case <-ctx.Done():
			return e.drain()
		case intent := <-e.queue:
			metrics.QueueDepth.Set(float64(len(e.queue)))
			if err := e.process(ctx, intent); err != nil {
				return err
			}
		}
	}
}

// drain handles intents already queued at shutdown so nothing admitted by a
// source is silently dropped.
func (e *Engine) drain() error {
	for {
		select {
		case intent := <-e.queue:
			metrics.QueueDepth.Set(float64(len(e.queue)))
			if err := e.process(context.Background(), intent); err != nil {
				return err
			}
		default:
			e.log.Info().Msg("engine drained")
			return context.Canceled
		}
	}
}

// process runs one intent through risk, execution, and the journal. Exactly one
// journal record is written per intent regardless of outcome.
func (e *Engine) process(ctx context.Context, intent signal.TradeIntent) error {
	snap := e.ledger.Snapshot()

	if err := e.gate.Check(intent, snap); err != nil {
		var rej *risk.RejectionError
		reason := err.Error()
		if errors.As(err, &rej) {
			reason = rej.Reason
		}
		metrics.RejectionsTotal.WithLabelValues("risk").Inc()
		e.log.Warn().Str("market", intent.Market).Str("side", string(intent.Side)).
			Str("source", string(intent.Source)).Str("reason", reason).Msg("intent rejected by risk gate")
		e.record(intent, string(execution.StatusRejected), reason, ledger.Trade{}, snap.Balance, !e.router.Live())
		return nil
	}

	res, err := e.router.Execute(ctx, intent)
	if err != nil {
		// Persistence failures poison the account state; journal the attempt
		// and escalate so the process stops trading.
		e.record(intent, string(execution.StatusError), res.Detail, ledger.Trade{}, snap.Balance, res.Simulated)
		return fmt.Errorf("execute intent: %w", err)
	}

	switch res.Status {
	case execution.StatusFilled:
		e.gate.RecordOutcome(res.Trade)
		e.record(intent, string(res.Status), "", res.Trade, res.Trade.BalanceAfter, res.Simulated)
	case execution.StatusRejected:
		e.gate.ReleaseAdmission()
		metrics.RejectionsTotal.WithLabelValues("ledger").Inc()
		e.record(intent, string(res.Status), res.Detail, ledger.Trade{}, snap.Balance, res.Simulated)
	case execution.StatusError:
		e.gate.ReleaseAdmission()
		metrics.RejectionsTotal.WithLabelValues("broker").Inc()
		e.record(intent, string(res.Status), res.Detail, ledger.Trade{}, snap.Balance, res.Simulated)
	}
	return nil
}

func (e *Engine) record(intent signal.TradeIntent, status, reason string, trade ledger.Trade, balance float64, simulated bool) {
	rec := journal.Record{
		ID:            trade.ID,
		Ts:            intent.Ts,
		Source:        intent.Source,
		Market:        intent.Market,
		MarketName:    intent.MarketName,
		Side:          intent.Side,
		Size:          intent.Size,
		Price:         intent.Price,
		Status:        status,
		Reason:        reason,
		RealizedPnL:   trade.RealizedPnL,
		BalanceAfter:  balance,
		CorrelationID: intent.CorrelationID,
		Simulated:     simulated,
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if trade.ID != "" {
		rec.Ts = trade.Ts
		rec.Size = trade.Size
		rec.Price = trade.Price
	}
	if err := e.journal.Append(rec); err != nil {
		e.log.Error().Err(err).Str("market", rec.Market).Msg("journal append failed")
	}
}

// Summary is the end-of-session account digest logged at shutdown.
type Summary struct {
	InitialBalance float64
	FinalBalance   float64
	RealizedPnL    float64
	Trades         int
	OpenPositions  int
	DailyTrades    int
	DailyLoss      float64
}

// Summarize collects the digest from the ledger and the risk gate.
func (e *Engine) Summarize() Summary {
	snap := e.ledger.Snapshot()
	stats := e.gate.Stats()
	return Summary{
		InitialBalance: snap.InitialBalance,
		FinalBalance:   snap.Balance,
		RealizedPnL:    snap.RealizedPnL,
		Trades:         len(snap.Trades),
		OpenPositions:  len(snap.Positions),
		DailyTrades:    stats.Trades,
		DailyLoss:      stats.RealizedLoss,
	}
}
