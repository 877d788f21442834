package config

import "time"

// Config is the main configuration carrier for helmsman.
type Config struct {
	App       AppConfig       `toml:"app"`
	Risk      RiskConfig      `toml:"risk"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	Models    []ModelConfig   `toml:"models"`
	Pairs     []PairConfig    `toml:"pairs"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// RiskConfig holds account-wide margin policy and trade-frequency guards.
type RiskConfig struct {
	ConfidenceRatios    map[string]float64 `toml:"confidence_ratios"`
	MaxTotalMarginRatio float64            `toml:"max_total_margin_ratio"`
	MarginSafetyBuffer  float64            `toml:"margin_safety_buffer"`
	// Cooldown guards ported from the live bot: trades inside CooldownMinutes
	// are always rejected, trades inside HighOnlyMinutes need HIGH confidence,
	// and reversing back into a side left less than ReversalGuardMinutes ago
	// is blocked.
	CooldownMinutes      int `toml:"cooldown_minutes"`
	HighOnlyMinutes      int `toml:"high_only_minutes"`
	ReversalGuardMinutes int `toml:"reversal_guard_minutes"`
	MaxOrderRetries      int `toml:"max_order_retries"`
}

type SchedulerConfig struct {
	Interval       string `toml:"interval"`
	OffsetSeconds  int    `toml:"offset_seconds"`
	RunImmediately bool   `toml:"run_immediately"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CycleTimeout bounds one full decision cycle (oracle + exchange calls).
func (s SchedulerConfig) CycleTimeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type ExchangeConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// ModelConfig binds one LLM strategy to its own exchange sub-account.
// Every enabled model trades each configured pair independently.
type ModelConfig struct {
	ID            string `toml:"id"`
	Display       string `toml:"display"`
	Enabled       bool   `toml:"enabled"`
	APIURL        string `toml:"api_url"`
	APIKey        string `toml:"api_key"`
	Model         string `toml:"model"`
	AccountKey    string `toml:"account_key"`
	AccountSecret string `toml:"account_secret"`
}

// PairConfig is static per-symbol configuration; immutable after load.
type PairConfig struct {
	Symbol     string  `toml:"symbol"`
	Display    string  `toml:"display"`
	Amount     float64 `toml:"amount"`
	Timeframe  string  `toml:"timeframe"`
	DataPoints int     `toml:"data_points"`

	LeverageMin     int `toml:"leverage_min"`
	LeverageMax     int `toml:"leverage_max"`
	LeverageDefault int `toml:"leverage_default"`

	// Analysis window sizes, in candles.
	ShortWindow  int `toml:"short_window"`
	MediumWindow int `toml:"medium_window"`
	LongWindow   int `toml:"long_window"`

	Simulated bool `toml:"simulated"`
	EnableAdd bool `toml:"enable_add"`
}

// ClampLeverage bounds a suggested leverage to the pair's configured range.
func (p PairConfig) ClampLeverage(lev int) int {
	if lev <= 0 {
		lev = p.LeverageDefault
	}
	if p.LeverageMin > 0 && lev < p.LeverageMin {
		lev = p.LeverageMin
	}
	if p.LeverageMax > 0 && lev > p.LeverageMax {
		lev = p.LeverageMax
	}
	return lev
}
