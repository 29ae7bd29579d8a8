package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Venue credentials use CROSSARB_VENUE_<NAME>_API_KEY and friends.
func applyEnvOverrides(cfg *Config) {
	// --- Engine ---
	setFloat64(&cfg.Engine.MinMarginPercent, "CROSSARB_ENGINE_MIN_MARGIN_PERCENT")
	setFloat64(&cfg.Engine.MaxMarginPercent, "CROSSARB_ENGINE_MAX_MARGIN_PERCENT")
	setFloat64(&cfg.Engine.CloseMinMarginPercent, "CROSSARB_ENGINE_CLOSE_MIN_MARGIN_PERCENT")
	setFloat64(&cfg.Engine.StopLossPercent, "CROSSARB_ENGINE_STOP_LOSS_PERCENT")
	setFloat64(&cfg.Engine.TradeNotionalUSDT, "CROSSARB_ENGINE_TRADE_NOTIONAL_USDT")
	setFloat64(&cfg.Engine.Slippage, "CROSSARB_ENGINE_SLIPPAGE")
	setStr(&cfg.Engine.ReturnVariant, "CROSSARB_ENGINE_RETURN_VARIANT")
	setStr(&cfg.Engine.ReferenceVenue, "CROSSARB_ENGINE_REFERENCE_VENUE")
	setStr(&cfg.Engine.OrderTypeOnOpen, "CROSSARB_ENGINE_ORDER_TYPE_ON_OPEN")
	setDuration(&cfg.Engine.QuoteMaxAge, "CROSSARB_ENGINE_QUOTE_MAX_AGE")
	setDuration(&cfg.Engine.RefreshInterval, "CROSSARB_ENGINE_REFRESH_INTERVAL")
	setDuration(&cfg.Engine.FetchTimeout, "CROSSARB_ENGINE_FETCH_TIMEOUT")
	setInt(&cfg.Engine.LegMaxRetries, "CROSSARB_ENGINE_LEG_MAX_RETRIES")
	setDuration(&cfg.Engine.LegRetryDelay, "CROSSARB_ENGINE_LEG_RETRY_DELAY")
	setDuration(&cfg.Engine.EscalationTimeout, "CROSSARB_ENGINE_ESCALATION_TIMEOUT")
	setStringSlice(&cfg.Engine.CoinsToConsider, "CROSSARB_ENGINE_COINS_TO_CONSIDER")
	setStringSlice(&cfg.Engine.CoinsToIgnore, "CROSSARB_ENGINE_COINS_TO_IGNORE")

	// --- Venue credentials ---
	for name, vc := range cfg.Venues {
		prefix := "CROSSARB_VENUE_" + strings.ToUpper(name)
		setStr(&vc.APIKey, prefix+"_API_KEY")
		setStr(&vc.APISecret, prefix+"_API_SECRET")
		setStr(&vc.APIToken, prefix+"_API_TOKEN")
		setStr(&vc.BaseURL, prefix+"_BASE_URL")
		setBool(&vc.Enabled, prefix+"_ENABLED")
		setBool(&vc.Sandbox, prefix+"_SANDBOX")
		cfg.Venues[name] = vc
	}

	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	// --- Credentials ---
	setStr(&cfg.Credentials.EncryptedPath, "CROSSARB_CREDENTIALS_ENCRYPTED_PATH")
	setStr(&cfg.Credentials.Password, "CROSSARB_CREDENTIALS_PASSWORD")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// --- Top-level ---
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
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
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
