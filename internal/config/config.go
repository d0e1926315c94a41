// Package config defines the top-level configuration for the reward bot and
// provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by REWARDBOT_* environment variables.
type Config struct {
	Reward   RewardConfig   `toml:"reward"`
	Episode  EpisodeConfig  `toml:"episode"`
	Feed     FeedConfig     `toml:"feed"`
	Features FeaturesConfig `toml:"features"`
	Agent    AgentConfig    `toml:"agent"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RewardConfig tunes the trade-completion reward.
type RewardConfig struct {
	RPnLThreshold   float64 `toml:"rpnl_threshold"`
	RewardAsymmetry float64 `toml:"reward_asymmetry"`
}

// EpisodeConfig sizes a run and the simulated account.
type EpisodeConfig struct {
	Episodes       int       `toml:"episodes"`
	Steps          int       `toml:"steps"` // 0 runs each episode to the end of the data
	WindowSize     int       `toml:"window_size"`
	Symbol         string    `toml:"symbol"`
	InitialQuote   float64   `toml:"initial_quote"`
	InitialBase    float64   `toml:"initial_base"`
	TradeSizes     []float64 `toml:"trade_sizes"`
	MaxAllowedLoss float64   `toml:"max_allowed_loss"`

	// Bracket exits. Empty stop_loss and take_profit keep plain market
	// orders; otherwise every combination becomes its own action.
	StopLoss         []float64 `toml:"stop_loss"`
	TakeProfit       []float64 `toml:"take_profit"`
	BracketDurations []int     `toml:"bracket_durations"` // steps; 0 never expires
}

// FeedConfig selects and shapes the market data.
type FeedConfig struct {
	// Source is "tardis" for downloaded datasets or "random" for a seeded
	// random walk that needs no network.
	Source             string   `toml:"source"`
	QuotesURL          string   `toml:"quotes_url"`
	TradesURL          string   `toml:"trades_url"`
	DataDir            string   `toml:"data_dir"`
	PathPrefix         string   `toml:"path_prefix"`
	UseBlobCache       bool     `toml:"use_blob_cache"`
	Interval           duration `toml:"interval"`
	NRows              int      `toml:"nrows"`
	DownloadsPerMinute int      `toml:"downloads_per_minute"`
	RandomBars         int      `toml:"random_bars"`
	RandomSeed         int64    `toml:"random_seed"`
}

// FeaturesConfig holds the indicator periods.
type FeaturesConfig struct {
	RSIPeriod  float64 `toml:"rsi_period"`
	MACDFast   float64 `toml:"macd_fast"`
	MACDSlow   float64 `toml:"macd_slow"`
	MACDSignal float64 `toml:"macd_signal"`
}

// AgentConfig selects the policy that picks actions.
type AgentConfig struct {
	Kind       string `toml:"kind"` // random | onnx
	ModelPath  string `toml:"model_path"`
	ORTLibPath string `toml:"ort_lib_path"`
	Seed       int64  `toml:"seed"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	PriceTTL     duration `toml:"price_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ReportPrefix   string `toml:"report_prefix"`
}

// ArchiveConfig controls moving old simulated trades to object storage.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"` // 0 archives once and exits
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramBaseURL   string   `toml:"telegram_base_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Reward: RewardConfig{
			RPnLThreshold:   0.02,
			RewardAsymmetry: 2,
		},
		Episode: EpisodeConfig{
			Episodes:     1,
			Steps:        0,
			WindowSize:   10,
			Symbol:       "BTCUSDT",
			InitialQuote: 10_000,
			TradeSizes:   []float64{0.1, 0.25, 0.5},
		},
		Feed: FeedConfig{
			Source:             "tardis",
			QuotesURL:          "https://datasets.tardis.dev/v1/binance-futures/book_snapshot_25/2020/02/01/BTCUSDT.csv.gz",
			TradesURL:          "https://datasets.tardis.dev/v1/binance-futures/trades/2020/02/01/BTCUSDT.csv.gz",
			DataDir:            "data",
			PathPrefix:         "datasets/tardis",
			Interval:           duration{time.Second},
			NRows:              100_000,
			DownloadsPerMinute: 10,
			RandomBars:         5_000,
			RandomSeed:         1,
		},
		Features: FeaturesConfig{
			RSIPeriod:  20,
			MACDFast:   10,
			MACDSlow:   50,
			MACDSignal: 5,
		},
		Agent: AgentConfig{
			Kind:       "random",
			ORTLibPath: "onnxruntime.so",
			Seed:       1,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "rewardbot",
			PriceTTL:     duration{time.Hour},
			StreamMaxLen: 100_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "rewardbot-data",
			ForcePathStyle: true,
			ReportPrefix:   "reports",
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"episode_failed", "run_finished"},
		},
		Mode:     "train",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"train":   true,
	"fetch":   true,
	"server":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: train, fetch, server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Reward
	if !positive(c.Reward.RPnLThreshold) {
		errs = append(errs, fmt.Sprintf("reward: rpnl_threshold must be > 0, got %v", c.Reward.RPnLThreshold))
	}
	if !positive(c.Reward.RewardAsymmetry) {
		errs = append(errs, fmt.Sprintf("reward: reward_asymmetry must be > 0, got %v", c.Reward.RewardAsymmetry))
	}

	// Episode
	if c.Episode.Episodes < 1 {
		errs = append(errs, "episode: episodes must be >= 1")
	}
	if c.Episode.Steps < 0 {
		errs = append(errs, "episode: steps must be >= 0")
	}
	if c.Episode.WindowSize < 1 {
		errs = append(errs, "episode: window_size must be >= 1")
	}
	if c.Episode.Symbol == "" {
		errs = append(errs, "episode: symbol must not be empty")
	}
	if c.Episode.InitialQuote < 0 || c.Episode.InitialBase < 0 {
		errs = append(errs, "episode: initial balances must be >= 0")
	}
	if c.Episode.InitialQuote == 0 && c.Episode.InitialBase == 0 {
		errs = append(errs, "episode: initial_quote or initial_base must be > 0")
	}
	if len(c.Episode.TradeSizes) == 0 {
		errs = append(errs, "episode: trade_sizes must not be empty")
	}
	for _, s := range c.Episode.TradeSizes {
		if !(s > 0 && s <= 1) {
			errs = append(errs, fmt.Sprintf("episode: trade size %v must be in (0, 1]", s))
		}
	}
	if c.Episode.MaxAllowedLoss < 0 || c.Episode.MaxAllowedLoss >= 1 {
		errs = append(errs, "episode: max_allowed_loss must be in [0, 1)")
	}
	for _, v := range append(append([]float64(nil), c.Episode.StopLoss...), c.Episode.TakeProfit...) {
		if !(v > 0 && v < 1) {
			errs = append(errs, fmt.Sprintf("episode: bracket level %v must be in (0, 1)", v))
		}
	}
	for _, d := range c.Episode.BracketDurations {
		if d < 0 {
			errs = append(errs, fmt.Sprintf("episode: bracket duration %d must be >= 0", d))
		}
	}

	// Feed
	switch c.Feed.Source {
	case "tardis":
		if c.Feed.QuotesURL == "" || c.Feed.TradesURL == "" {
			errs = append(errs, "feed: quotes_url and trades_url must be set for source tardis")
		}
		if c.Feed.DataDir == "" {
			errs = append(errs, "feed: data_dir must not be empty")
		}
		if c.Feed.UseBlobCache && !c.S3.Enabled {
			errs = append(errs, "feed: use_blob_cache requires s3.enabled")
		}
	case "random":
		if c.Feed.RandomBars < 2 {
			errs = append(errs, "feed: random_bars must be >= 2")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: tardis, random)", c.Feed.Source))
	}
	if c.Feed.Interval.Duration <= 0 {
		errs = append(errs, "feed: interval must be > 0")
	}
	if c.Feed.NRows < 0 {
		errs = append(errs, "feed: nrows must be >= 0")
	}

	// Features
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"rsi_period", c.Features.RSIPeriod},
		{"macd_fast", c.Features.MACDFast},
		{"macd_slow", c.Features.MACDSlow},
		{"macd_signal", c.Features.MACDSignal},
	} {
		if !positive(p.v) {
			errs = append(errs, fmt.Sprintf("features: %s must be > 0", p.name))
		}
	}

	// Agent
	switch c.Agent.Kind {
	case "random":
	case "onnx":
		if c.Agent.ModelPath == "" {
			errs = append(errs, "agent: model_path is required for kind onnx")
		}
	default:
		errs = append(errs, fmt.Sprintf("agent: unknown kind %q (valid: random, onnx)", c.Agent.Kind))
	}

	// Postgres is the source of truth for the API and the archiver.
	if (mode == "server" || mode == "archive") && !c.Postgres.Enabled {
		errs = append(errs, "postgres: must be enabled for mode "+mode)
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if mode == "archive" && !c.S3.Enabled {
		errs = append(errs, "s3: must be enabled for mode archive")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Archive
	if c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1")
	}

	// Server
	if c.Server.Enabled && (mode == "server" || mode == "full") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
