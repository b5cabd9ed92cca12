// Binary bot runs the trading engine: signal sources feed one serialized
// queue, every intent passes the risk gate, and fills land in the paper ledger
// or at the live venue depending on the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/clob"
	"github.com/TrueFaxx/polymarketbot/internal/config"
	"github.com/TrueFaxx/polymarketbot/internal/engine"
	"github.com/TrueFaxx/polymarketbot/internal/execution"
	"github.com/TrueFaxx/polymarketbot/internal/journal"
	"github.com/TrueFaxx/polymarketbot/internal/ledger"
	"github.com/TrueFaxx/polymarketbot/internal/metrics"
	"github.com/TrueFaxx/polymarketbot/internal/risk"
	"github.com/TrueFaxx/polymarketbot/internal/strategy"
	"github.com/TrueFaxx/polymarketbot/internal/stream"
	"github.com/TrueFaxx/polymarketbot/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML configuration")
	reset := flag.Bool("reset", false, "reset the paper account to its initial balance and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}

	log := util.NewLogger(cfg.App.LogLevel)
	if cfg.App.LogFile != "" {
		log, err = util.NewFileLogger(cfg.App.LogLevel, cfg.App.LogFile)
		if err != nil {
			boot := util.NewLogger("info")
			boot.Fatal().Err(err).Msg("open log file")
		}
	}

	book, err := ledger.New(cfg.Paper.StatePath, cfg.Paper.InitialBalance)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger")
	}
	if *reset {
		if err := book.Reset(); err != nil {
			log.Fatal().Err(err).Msg("reset ledger")
		}
		log.Info().Float64("balance", book.Balance()).Msg("account reset")
		return
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	jrnl, err := openJournal(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open journal")
	}
	defer jrnl.Close()

	var venue *clob.Client
	if cfg.Clob.BaseURL != "" {
		venue = clob.New(cfg.Clob.BaseURL, cfg.Clob.APIKey, cfg.ClobTimeout(), log)
	}

	var prices execution.PriceSource
	if venue != nil {
		prices = venue
	}
	var router *execution.Router
	if cfg.App.Mode == "live" {
		router = execution.NewLiveRouter(book, venue, prices, util.Component(log, "execution"))
	} else {
		router = execution.NewSimulatedRouter(book, prices, util.Component(log, "execution"))
	}

	gate := risk.NewGate(risk.Limits{
		MaxNotionalPerTrade: cfg.Risk.MaxBetSize,
		MinBalanceThreshold: cfg.Risk.MinBalanceThreshold,
		MaxDailyTrades:      cfg.Risk.MaxDailyTrades,
		DailyLossLimit:      cfg.Risk.DailyLossLimit,
	})

	eng := engine.New(book, gate, router, jrnl, util.Component(log, "engine"), cfg.App.QueueSize)

	if cfg.Trend.Enabled {
		if venue == nil {
			log.Fatal().Msg("trend analysis needs clob.base_url for indicator data")
		}
		analyzer := strategy.NewAnalyzer(strategy.Config{
			Interval:      cfg.TrendInterval(),
			Market:        cfg.Trend.Market,
			MarketName:    cfg.Trend.MarketName,
			Symbol:        cfg.Trend.Symbol,
			MaxBet:        cfg.Risk.MaxBetSize,
			RSIOverbought: cfg.Trend.RSIOverbought,
			RSIOversold:   cfg.Trend.RSIOversold,
		}, venue, util.Component(log, "trend"))
		go func() {
			if err := analyzer.Run(ctx, eng.Intents()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("trend analyzer stopped")
				cancel()
			}
		}()
	}

	var follower *stream.Follower
	if cfg.Copy.Enabled {
		transport := stream.NewWSTransport(cfg.Copy.WSURL, cfg.CopyHeartbeat(), util.Component(log, "stream"))
		follower = stream.NewFollower(stream.Config{
			TargetWallet:    cfg.Copy.TargetWallet,
			PositionScale:   cfg.Copy.PositionScale,
			PositionSizePct: cfg.Copy.PositionSizePct,
			MaxDelay:        cfg.CopyMaxDelay(),
			BackoffBase:     cfg.CopyBackoffBase(),
			BackoffMax:      cfg.CopyBackoffMax(),
			DedupeHorizon:   cfg.CopyDedupeHorizon(),
			DedupeMax:       cfg.Copy.DedupeMax,
		}, transport, book.Balance, util.Component(log, "follower"))
		go func() {
			if err := follower.Run(ctx, eng.Intents()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("copy-trade follower stopped")
				cancel()
			}
		}()
	}

	go statusLoop(ctx, log, book, gate, follower)
	if cfg.App.Mode == "live" {
		go balanceProbe(ctx, log, venue, gate, cfg.Risk.MinBalanceThreshold)
	}

	log.Info().Str("mode", cfg.App.Mode).Float64("balance", book.Balance()).Msg("bot started")

	err = eng.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine stopped")
	}

	if perr := book.Persist(); perr != nil {
		log.Error().Err(perr).Msg("final persist failed")
	}

	sum := eng.Summarize()
	log.Info().
		Float64("initial_balance", sum.InitialBalance).
		Float64("final_balance", sum.FinalBalance).
		Float64("realized_pnl", sum.RealizedPnL).
		Int("trades", sum.Trades).
		Int("open_positions", sum.OpenPositions).
		Int("daily_trades", sum.DailyTrades).
		Float64("daily_loss", sum.DailyLoss).
		Msg("session summary")
}

// statusLoop emits a periodic heartbeat line so long paper sessions leave an
// operational trace beyond individual fills.
func statusLoop(ctx context.Context, log zerolog.Logger, book *ledger.Ledger, gate *risk.Gate, follower *stream.Follower) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := book.Snapshot()
			stats := gate.Stats()
			ev := log.Info().
				Float64("balance", snap.Balance).
				Float64("realized_pnl", snap.RealizedPnL).
				Int("open_positions", len(snap.Positions)).
				Int("daily_trades", stats.Trades).
				Float64("daily_loss", stats.RealizedLoss)
			if follower != nil {
				ev = ev.Str("follower_state", string(follower.State()))
				if last := follower.LastEventTime(); !last.IsZero() {
					ev = ev.Time("last_event", last)
				}
			}
			ev.Msg("status")
		}
	}
}

// balanceProbe polls the live venue balance and latches the emergency stop when
// it falls below the configured floor.
func balanceProbe(ctx context.Context, log zerolog.Logger, venue *clob.Client, gate *risk.Gate, floor float64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bal, err := venue.Balance(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("balance probe failed")
				continue
			}
			if bal < floor && !gate.EmergencyStopped() {
				gate.ActivateEmergencyStop()
				log.Error().Float64("balance", bal).Float64("floor", floor).
					Msg("venue balance below floor, emergency stop activated")
			}
		}
	}
}

// openJournal builds the configured trade-log backend wrapped in the async
// writer so journal IO never stalls the execution path.
func openJournal(cfg *config.Config, log zerolog.Logger) (journal.Journal, error) {
	var inner journal.Journal
	var err error
	switch cfg.Journal.Backend {
	case "sqlite":
		inner, err = journal.NewSQLite(cfg.Journal.Path)
	default:
		inner, err = journal.NewJSONL(cfg.Journal.Path)
	}
	if err != nil {
		return nil, err
	}
	return journal.NewAsync(inner, cfg.Journal.Buffer, util.Component(log, "journal")), nil
}
