// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables.
type Config struct {
	Engine      EngineConfig            `toml:"engine"`
	Venues      map[string]VenueConfig  `toml:"venues"`
	Corrections map[string][]Correction `toml:"corrections"`
	Postgres    PostgresConfig          `toml:"postgres"`
	Redis       RedisConfig             `toml:"redis"`
	Credentials CredentialsConfig       `toml:"credentials"`
	Notify      NotifyConfig            `toml:"notify"`
	Mode        string                  `toml:"mode"`
	LogLevel    string                  `toml:"log_level"`
}

// EngineConfig holds the decision-loop thresholds and assumptions. The core
// treats all of these as read-only parameters.
type EngineConfig struct {
	// MinMarginPercent is the scanner's shortlist threshold and the floor
	// for opening a position on the selected return.
	MinMarginPercent float64 `toml:"min_margin_percent"`
	// MaxMarginPercent discards returns above this value as bad data.
	MaxMarginPercent float64 `toml:"max_margin_percent"`
	// CloseMinMarginPercent closes an open position once the reverse-leg
	// selected return reaches this bound.
	CloseMinMarginPercent float64 `toml:"close_min_margin_percent"`
	// StopLossPercent, when negative, additionally closes a position whose
	// selected return falls to or below it. Zero disables the stop-loss.
	StopLossPercent float64 `toml:"stop_loss_percent"`
	// TradeNotionalUSDT is the per-trade size in USDT; TMN-quoted books are
	// costed for TradeNotionalUSDT times the cycle's USDT rate.
	TradeNotionalUSDT float64 `toml:"trade_notional_usdt"`
	// Slippage is the assumed adverse-execution fraction (e.g. 0.0005).
	Slippage float64 `toml:"slippage"`
	// ReturnVariant selects the decision-making return: "plain",
	// "slippage", or "slippage_spread". Unknown values fall back to plain.
	ReturnVariant string `toml:"return_variant"`
	// ReferenceVenue quotes USDT/TMN for the synthetic-symbol conversion.
	ReferenceVenue string `toml:"reference_venue"`
	// OrderTypeOnOpen is "market" or "limit".
	OrderTypeOnOpen string `toml:"order_type_on_open"`

	// QuoteMaxAge bounds how old a streamed websocket quote may be before
	// the cycle's REST snapshot is trusted over it.
	QuoteMaxAge duration `toml:"quote_max_age"`

	RefreshInterval   duration `toml:"refresh_interval"`
	FetchTimeout      duration `toml:"fetch_timeout"`
	LegMaxRetries     int      `toml:"leg_max_retries"`
	LegRetryDelay     duration `toml:"leg_retry_delay"`
	EscalationTimeout duration `toml:"escalation_timeout"`
	PairCacheTTL      duration `toml:"pair_cache_ttl"`

	// CoinsToConsider restricts scanning to these bases; empty means all.
	CoinsToConsider []string `toml:"coins_to_consider"`
	// CoinsToIgnore excludes these bases from every venue.
	CoinsToIgnore []string `toml:"coins_to_ignore"`
}

// VenueConfig holds per-venue connectivity, fee schedule and credentials.
type VenueConfig struct {
	Enabled  bool    `toml:"enabled"`
	BaseURL  string  `toml:"base_url"`
	WSURL    string  `toml:"ws_url"`
	TakerFee float64 `toml:"taker_fee"`
	MakerFee float64 `toml:"maker_fee"`
	// TMNNative marks venues that quote TMN markets directly. Venues
	// without it trade TMN synthetically through their USDT markets.
	TMNNative bool    `toml:"tmn_native"`
	APIKey    string  `toml:"api_key"`
	APISecret string  `toml:"api_secret"`
	APIToken  string  `toml:"api_token"`
	Sandbox   bool    `toml:"sandbox"`
}

// Correction maps a venue-native rescaled base to its canonical base. A
// venue price is multiplied by Factor and an amount divided by it when
// standardizing; order placement inverts both.
type Correction struct {
	VenueBase     string  `toml:"venue_base"`
	CanonicalBase string  `toml:"canonical_base"`
	Factor        float64 `toml:"factor"`
}

// PostgresConfig holds PostgreSQL connection parameters for the position
// store.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters for the pair and quote
// caches. Disabled means in-process caches are used instead.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// CredentialsConfig optionally points at an encrypted credentials file
// whose contents override the per-venue api_key/api_secret fields.
type CredentialsConfig struct {
	EncryptedPath string `toml:"encrypted_path"`
	Password      string `toml:"password"`
}

// NotifyConfig holds operator alert channels. All channels are optional;
// with none configured, lifecycle events are only logged. Events limits
// delivery to the listed event types; empty means all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "3s" or "500ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the venue set and thresholds the
// engine ships with. A TOML file is decoded over these, so an operator only
// specifies what differs.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MinMarginPercent:      0.3,
			MaxMarginPercent:      4.0,
			CloseMinMarginPercent: 0.6,
			StopLossPercent:       0,
			TradeNotionalUSDT:     200,
			Slippage:              0.0005,
			ReturnVariant:         "plain",
			ReferenceVenue:        "nobitex",
			OrderTypeOnOpen:       "market",
			QuoteMaxAge:           duration{5 * time.Second},
			RefreshInterval:       duration{3 * time.Second},
			FetchTimeout:          duration{10 * time.Second},
			LegMaxRetries:         10,
			LegRetryDelay:         duration{500 * time.Millisecond},
			EscalationTimeout:     duration{5 * time.Second},
			PairCacheTTL:          duration{10 * time.Minute},
			CoinsToIgnore:         []string{"OMG", "X"},
		},
		Venues: map[string]VenueConfig{
			"coinex": {
				Enabled:  true,
				BaseURL:  "https://api.coinex.com",
				WSURL:    "wss://socket.coinex.com",
				TakerFee: 0.001,
				MakerFee: 0.001,
			},
			"nobitex": {
				Enabled:   true,
				BaseURL:   "https://api.nobitex.ir",
				TakerFee:  0.0015,
				MakerFee:  0.0015,
				TMNNative: true,
			},
			"wallex": {
				Enabled:   true,
				BaseURL:   "https://api.wallex.ir",
				TakerFee:  0.001,
				MakerFee:  0.001,
				TMNNative: true,
			},
		},
		Corrections: map[string][]Correction{
			"nobitex": {
				{VenueBase: "100K_FLOKI", CanonicalBase: "FLOKI", Factor: 1e-5},
				{VenueBase: "1B_BABYDOGE", CanonicalBase: "BABYDOGE", Factor: 1e-9},
				{VenueBase: "1M_BTT", CanonicalBase: "BTT", Factor: 1e-6},
				{VenueBase: "1M_NFT", CanonicalBase: "NFT", Factor: 1e-6},
				{VenueBase: "1M_PEPE", CanonicalBase: "PEPE", Factor: 1e-6},
				{VenueBase: "SHIB", CanonicalBase: "SHIB", Factor: 1e-3},
			},
			"wallex": {
				{VenueBase: "1BBABYDOGE", CanonicalBase: "BABYDOGE", Factor: 1e-9},
			},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"scan":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validReturnVariants enumerates the accepted return_variant values.
var validReturnVariants = map[string]bool{
	"plain":           true,
	"slippage":        true,
	"slippage_spread": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, scan, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Engine.MinMarginPercent <= 0 {
		errs = append(errs, "engine: min_margin_percent must be > 0")
	}
	if c.Engine.MaxMarginPercent <= c.Engine.MinMarginPercent {
		errs = append(errs, "engine: max_margin_percent must exceed min_margin_percent")
	}
	if c.Engine.TradeNotionalUSDT <= 0 {
		errs = append(errs, "engine: trade_notional_usdt must be > 0")
	}
	if c.Engine.Slippage < 0 || c.Engine.Slippage >= 1 {
		errs = append(errs, "engine: slippage must be in [0, 1)")
	}
	if c.Engine.StopLossPercent > 0 {
		errs = append(errs, "engine: stop_loss_percent must be negative or zero (zero disables)")
	}
	if !validReturnVariants[c.Engine.ReturnVariant] {
		errs = append(errs, fmt.Sprintf("engine: unknown return_variant %q (valid: plain, slippage, slippage_spread)", c.Engine.ReturnVariant))
	}
	if c.Engine.OrderTypeOnOpen != "market" && c.Engine.OrderTypeOnOpen != "limit" {
		errs = append(errs, fmt.Sprintf("engine: order_type_on_open must be market or limit, got %q", c.Engine.OrderTypeOnOpen))
	}
	if c.Engine.RefreshInterval.Duration <= 0 {
		errs = append(errs, "engine: refresh_interval must be > 0")
	}
	if c.Engine.LegMaxRetries < 0 {
		errs = append(errs, "engine: leg_max_retries must be >= 0")
	}

	enabled := 0
	for name, vc := range c.Venues {
		if !vc.Enabled {
			continue
		}
		enabled++
		if vc.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: base_url must not be empty", name))
		}
		if vc.TakerFee < 0 || vc.TakerFee >= 0.1 {
			errs = append(errs, fmt.Sprintf("venues.%s: taker_fee %g out of range [0, 0.1)", name, vc.TakerFee))
		}
	}
	if enabled < 2 {
		errs = append(errs, "venues: at least two venues must be enabled")
	}
	if rv := c.Engine.ReferenceVenue; rv != "" {
		if vc, ok := c.Venues[rv]; !ok || !vc.Enabled {
			errs = append(errs, fmt.Sprintf("engine: reference_venue %q is not an enabled venue", rv))
		}
	}

	for venue, corrs := range c.Corrections {
		for _, cor := range corrs {
			if cor.Factor <= 0 {
				errs = append(errs, fmt.Sprintf("corrections.%s: factor for %s must be > 0", venue, cor.VenueBase))
			}
			if cor.VenueBase == "" || cor.CanonicalBase == "" {
				errs = append(errs, fmt.Sprintf("corrections.%s: venue_base and canonical_base must not be empty", venue))
			}
		}
	}

	if c.Mode == "trade" || c.Mode == "monitor" {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Credentials.EncryptedPath != "" && c.Credentials.Password == "" {
		errs = append(errs, "credentials: password is required when encrypted_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
