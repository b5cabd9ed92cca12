package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
app:
  name: polymarketbot-test
  env: test
  mode: paper
  metrics_addr: ":9109"
  log_level: debug
paper:
  initial_balance: 10000
  state_path: data/account.json
risk:
  max_bet_size: 100
  min_balance_threshold: 500
  max_daily_trades: 10
  daily_loss_limit: 200
trend:
  enabled: true
  interval_secs: 900
  market: cond-btc-100k
  market_name: "BTC above 100k?"
  symbol: BTC
copy:
  enabled: true
  target_wallet: "0xabc123"
  ws_url: "wss://stream.example.com/ws"
  position_scale: 0.5
  max_delay_secs: 5
  backoff_base_secs: 1
  backoff_max_secs: 60
journal:
  backend: sqlite
  path: data/trades.db
clob:
  base_url: https://clob.example.com
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "polymarketbot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.Mode != "paper" {
		t.Fatalf("unexpected App.Mode: %s", cfg.App.Mode)
	}
	if cfg.Paper.InitialBalance != 10000 {
		t.Fatalf("unexpected initial balance: %.2f", cfg.Paper.InitialBalance)
	}
	if cfg.Risk.MaxBetSize != 100 || cfg.Risk.MaxDailyTrades != 10 {
		t.Fatalf("unexpected risk limits: %+v", cfg.Risk)
	}
	if cfg.Trend.Market != "cond-btc-100k" || cfg.Trend.IntervalSecs != 900 {
		t.Fatalf("unexpected trend config: %+v", cfg.Trend)
	}
	if cfg.Trend.RSIOverbought != 70 || cfg.Trend.RSIOversold != 30 {
		t.Fatalf("RSI defaults not applied: %+v", cfg.Trend)
	}
	if cfg.Copy.TargetWallet != "0xabc123" || cfg.Copy.PositionScale != 0.5 {
		t.Fatalf("unexpected copy config: %+v", cfg.Copy)
	}
	if cfg.Journal.Backend != "sqlite" || cfg.Journal.Path != "data/trades.db" {
		t.Fatalf("unexpected journal config: %+v", cfg.Journal)
	}
	if got := cfg.TrendInterval().Minutes(); got != 15 {
		t.Fatalf("unexpected trend interval: %.1f minutes", got)
	}
	if cfg.CopyBackoffMax().Seconds() != 60 {
		t.Fatalf("unexpected backoff max: %s", cfg.CopyBackoffMax())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("CLOB_API_KEY", "from-env")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Clob.APIKey != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Clob.APIKey)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.App.Mode = "demo"
	cfg.Risk.MaxBetSize = 10
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestValidateCopyRequiresWallet(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Risk.MaxBetSize = 10
	cfg.Copy.Enabled = true
	cfg.Copy.WSURL = "wss://stream.example.com/ws"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing target wallet")
	}
}

func TestValidateLiveRequiresClobURL(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Risk.MaxBetSize = 10
	cfg.App.Mode = "live"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for live mode without clob url")
	}
}
