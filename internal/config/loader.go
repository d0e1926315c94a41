package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies REWARDBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known REWARDBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Reward ──
	setFloat64(&cfg.Reward.RPnLThreshold, "REWARDBOT_REWARD_RPNL_THRESHOLD")
	setFloat64(&cfg.Reward.RewardAsymmetry, "REWARDBOT_REWARD_REWARD_ASYMMETRY")

	// ── Episode ──
	setInt(&cfg.Episode.Episodes, "REWARDBOT_EPISODE_EPISODES")
	setInt(&cfg.Episode.Steps, "REWARDBOT_EPISODE_STEPS")
	setInt(&cfg.Episode.WindowSize, "REWARDBOT_EPISODE_WINDOW_SIZE")
	setStr(&cfg.Episode.Symbol, "REWARDBOT_EPISODE_SYMBOL")
	setFloat64(&cfg.Episode.InitialQuote, "REWARDBOT_EPISODE_INITIAL_QUOTE")
	setFloat64(&cfg.Episode.InitialBase, "REWARDBOT_EPISODE_INITIAL_BASE")
	setFloat64Slice(&cfg.Episode.TradeSizes, "REWARDBOT_EPISODE_TRADE_SIZES")
	setFloat64(&cfg.Episode.MaxAllowedLoss, "REWARDBOT_EPISODE_MAX_ALLOWED_LOSS")
	setFloat64Slice(&cfg.Episode.StopLoss, "REWARDBOT_EPISODE_STOP_LOSS")
	setFloat64Slice(&cfg.Episode.TakeProfit, "REWARDBOT_EPISODE_TAKE_PROFIT")

	// ── Feed ──
	setStr(&cfg.Feed.Source, "REWARDBOT_FEED_SOURCE")
	setStr(&cfg.Feed.QuotesURL, "REWARDBOT_FEED_QUOTES_URL")
	setStr(&cfg.Feed.TradesURL, "REWARDBOT_FEED_TRADES_URL")
	setStr(&cfg.Feed.DataDir, "REWARDBOT_FEED_DATA_DIR")
	setStr(&cfg.Feed.PathPrefix, "REWARDBOT_FEED_PATH_PREFIX")
	setBool(&cfg.Feed.UseBlobCache, "REWARDBOT_FEED_USE_BLOB_CACHE")
	setDuration(&cfg.Feed.Interval, "REWARDBOT_FEED_INTERVAL")
	setInt(&cfg.Feed.NRows, "REWARDBOT_FEED_NROWS")
	setInt(&cfg.Feed.RandomBars, "REWARDBOT_FEED_RANDOM_BARS")
	setInt64(&cfg.Feed.RandomSeed, "REWARDBOT_FEED_RANDOM_SEED")

	// ── Agent ──
	setStr(&cfg.Agent.Kind, "REWARDBOT_AGENT_KIND")
	setStr(&cfg.Agent.ModelPath, "REWARDBOT_AGENT_MODEL_PATH")
	setStr(&cfg.Agent.ORTLibPath, "REWARDBOT_AGENT_ORT_LIB_PATH")
	setInt64(&cfg.Agent.Seed, "REWARDBOT_AGENT_SEED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "REWARDBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "REWARDBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform convention
	setStr(&cfg.Postgres.Host, "REWARDBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "REWARDBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "REWARDBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "REWARDBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "REWARDBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "REWARDBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "REWARDBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "REWARDBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "REWARDBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REWARDBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REWARDBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REWARDBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REWARDBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REWARDBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REWARDBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REWARDBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "REWARDBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "REWARDBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "REWARDBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "REWARDBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "REWARDBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "REWARDBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "REWARDBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "REWARDBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "REWARDBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "REWARDBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "REWARDBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "REWARDBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "REWARDBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "REWARDBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "REWARDBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "REWARDBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "REWARDBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "REWARDBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "REWARDBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "REWARDBOT_MODE")
	setStr(&cfg.LogLevel, "REWARDBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if parts := splitList(os.Getenv(key)); len(parts) > 0 {
		*dst = parts
	}
}

// setFloat64Slice leaves dst alone unless every element parses.
func setFloat64Slice(dst *[]float64, key string) {
	parts := splitList(os.Getenv(key))
	if len(parts) == 0 {
		return
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return
		}
		out[i] = f
	}
	*dst = out
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}
