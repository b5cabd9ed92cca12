// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	Mode        string `yaml:"mode"` // paper|live
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	QueueSize   int    `yaml:"queue_size"`
}

// Paper configures the simulated account.
type Paper struct {
	InitialBalance float64 `yaml:"initial_balance"`
	StatePath      string  `yaml:"state_path"`
}

// Risk encodes guard-rails for how much size the engine may take on.
type Risk struct {
	MaxBetSize          float64 `yaml:"max_bet_size"`
	MinBalanceThreshold float64 `yaml:"min_balance_threshold"`
	MaxDailyTrades      int     `yaml:"max_daily_trades"`
	DailyLossLimit      float64 `yaml:"daily_loss_limit"`
}

// Trend configures the periodic indicator-driven analyzer.
type Trend struct {
	Enabled       bool    `yaml:"enabled"`
	IntervalSecs  int     `yaml:"interval_secs"`
	Market        string  `yaml:"market"`
	MarketName    string  `yaml:"market_name"`
	Symbol        string  `yaml:"symbol"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
}

// Copy configures the wallet-following stream consumer.
type Copy struct {
	Enabled           bool    `yaml:"enabled"`
	TargetWallet      string  `yaml:"target_wallet"`
	WSURL             string  `yaml:"ws_url"`
	PositionScale     float64 `yaml:"position_scale"`
	PositionSizePct   float64 `yaml:"position_size_pct"`
	MaxDelaySecs      int     `yaml:"max_delay_secs"`
	BackoffBaseSecs   int     `yaml:"backoff_base_secs"`
	BackoffMaxSecs    int     `yaml:"backoff_max_secs"`
	HeartbeatSecs     int     `yaml:"heartbeat_secs"`
	DedupeHorizonSecs int     `yaml:"dedupe_horizon_secs"`
	DedupeMax         int     `yaml:"dedupe_max"`
}

// Journal selects the trade-log backend.
type Journal struct {
	Backend string `yaml:"backend"` // jsonl|sqlite
	Path    string `yaml:"path"`
	Buffer  int    `yaml:"buffer"`
}

// Clob describes the venue HTTP API used for prices, indicators, and live orders.
type Clob struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"` // CLOB_API_KEY overrides
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Paper   Paper   `yaml:"paper"`
	Risk    Risk    `yaml:"risk"`
	Trend   Trend   `yaml:"trend"`
	Copy    Copy    `yaml:"copy"`
	Journal Journal `yaml:"journal"`
	Clob    Clob    `yaml:"clob"`
}

// Load reads a YAML file from disk, hydrates a Config struct, overlays secrets
// from the environment, and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Mode == "" {
		c.App.Mode = "paper"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9109"
	}
	if c.Paper.InitialBalance <= 0 {
		c.Paper.InitialBalance = 10_000
	}
	if c.Paper.StatePath == "" {
		c.Paper.StatePath = "data/account.json"
	}
	if c.Trend.IntervalSecs <= 0 {
		c.Trend.IntervalSecs = 900
	}
	if c.Trend.RSIOverbought <= 0 {
		c.Trend.RSIOverbought = 70
	}
	if c.Trend.RSIOversold <= 0 {
		c.Trend.RSIOversold = 30
	}
	if c.Copy.PositionScale <= 0 {
		c.Copy.PositionScale = 1.0
	}
	if c.Copy.MaxDelaySecs <= 0 {
		c.Copy.MaxDelaySecs = 5
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = "jsonl"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/trades.jsonl"
	}
	if c.Clob.TimeoutSecs <= 0 {
		c.Clob.TimeoutSecs = 10
	}
}

// applyEnv overlays secrets that must never live in the YAML file.
func (c *Config) applyEnv() {
	_ = godotenv.Load() // best-effort
	if v := os.Getenv("CLOB_API_KEY"); v != "" {
		c.Clob.APIKey = v
	}
	if v := os.Getenv("TARGET_WALLET"); v != "" {
		c.Copy.TargetWallet = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.App.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("app.mode must be paper or live, got %q", c.App.Mode)
	}
	switch c.Journal.Backend {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("journal.backend must be jsonl or sqlite, got %q", c.Journal.Backend)
	}
	if c.Risk.MaxBetSize <= 0 {
		return fmt.Errorf("risk.max_bet_size must be positive")
	}
	if c.Trend.Enabled && c.Trend.Market == "" {
		return fmt.Errorf("trend.market required when trend analysis is enabled")
	}
	if c.Copy.Enabled {
		if c.Copy.TargetWallet == "" {
			return fmt.Errorf("copy.target_wallet required when copy trading is enabled")
		}
		if c.Copy.WSURL == "" {
			return fmt.Errorf("copy.ws_url required when copy trading is enabled")
		}
	}
	if c.App.Mode == "live" && c.Clob.BaseURL == "" {
		return fmt.Errorf("clob.base_url required in live mode")
	}
	if c.Copy.PositionSizePct < 0 || c.Copy.PositionSizePct > 1 {
		return fmt.Errorf("copy.position_size_pct must be within [0, 1]")
	}
	return nil
}

// TrendInterval returns the analyzer cadence.
func (c *Config) TrendInterval() time.Duration {
	return time.Duration(c.Trend.IntervalSecs) * time.Second
}

// CopyMaxDelay returns the staleness cutoff for copied events.
func (c *Config) CopyMaxDelay() time.Duration {
	return time.Duration(c.Copy.MaxDelaySecs) * time.Second
}

// CopyBackoffBase returns the initial reconnect delay.
func (c *Config) CopyBackoffBase() time.Duration {
	return time.Duration(c.Copy.BackoffBaseSecs) * time.Second
}

// CopyBackoffMax returns the reconnect delay ceiling.
func (c *Config) CopyBackoffMax() time.Duration {
	return time.Duration(c.Copy.BackoffMaxSecs) * time.Second
}

// CopyHeartbeat returns the stream read-deadline window.
func (c *Config) CopyHeartbeat() time.Duration {
	return time.Duration(c.Copy.HeartbeatSecs) * time.Second
}

// CopyDedupeHorizon returns how long correlation ids are remembered.
func (c *Config) CopyDedupeHorizon() time.Duration {
	return time.Duration(c.Copy.DedupeHorizonSecs) * time.Second
}

// ClobTimeout returns the venue HTTP client timeout.
func (c *Config) ClobTimeout() time.Duration {
	return time.Duration(c.Clob.TimeoutSecs) * time.Second
}
