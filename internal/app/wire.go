package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	cachmemory "github.com/quantfarm/crossarb/internal/cache/memory"
	cachredis "github.com/quantfarm/crossarb/internal/cache/redis"
	"github.com/quantfarm/crossarb/internal/config"
	"github.com/quantfarm/crossarb/internal/crypto"
	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/notify"
	"github.com/quantfarm/crossarb/internal/pricing"
	storememory "github.com/quantfarm/crossarb/internal/store/memory"
	"github.com/quantfarm/crossarb/internal/store/postgres"
	"github.com/quantfarm/crossarb/internal/symbols"
	"github.com/quantfarm/crossarb/internal/venue"
	"github.com/quantfarm/crossarb/internal/venue/coinex"
	"github.com/quantfarm/crossarb/internal/venue/nobitex"
	"github.com/quantfarm/crossarb/internal/venue/wallex"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store      domain.PositionStore
	Gateway    *venue.Router
	PairCache  domain.PairCache
	QuoteCache domain.QuoteCache
	Normalizer *symbols.Normalizer
	Fees       pricing.FeeSchedule
	// Alerts is nil when no notification channel is configured.
	Alerts *notify.Notifier

	// Venues lists the enabled venues in deterministic order.
	Venues []domain.Venue
	// TMNNative marks which enabled venues quote TMN markets directly.
	TMNNative map[domain.Venue]bool
}

// needsPostgres returns true for modes that persist positions. Scan mode is
// read-only and runs against an in-process store.
func needsPostgres(mode string) bool {
	switch strings.ToLower(mode) {
	case "trade", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Fees:      make(pricing.FeeSchedule),
		TMNNative: make(map[domain.Venue]bool),
	}

	// --- Credentials overlay ---
	venues, err := overlayCredentials(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: credentials: %w", err)
	}

	// --- Symbol normalizer ---
	corrections := make(map[domain.Venue][]symbols.Correction, len(cfg.Corrections))
	for name, corrs := range cfg.Corrections {
		for _, c := range corrs {
			corrections[domain.Venue(name)] = append(corrections[domain.Venue(name)], symbols.Correction{
				VenueBase:     c.VenueBase,
				CanonicalBase: c.CanonicalBase,
				Factor:        c.Factor,
			})
		}
	}
	deps.Normalizer = symbols.New(corrections, cfg.Engine.CoinsToConsider, cfg.Engine.CoinsToIgnore)

	// --- Caches ---
	if cfg.Redis.Enabled {
		redisClient, err := cachredis.New(ctx, cachredis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PairCache = cachredis.NewPairCache(redisClient, cfg.Engine.PairCacheTTL.Duration, logger)
		deps.QuoteCache = cachredis.NewQuoteCache(redisClient, cfg.Engine.PairCacheTTL.Duration)
	} else {
		deps.PairCache = cachmemory.NewPairCache(cfg.Engine.PairCacheTTL.Duration)
		deps.QuoteCache = cachmemory.NewQuoteCache()
	}

	// --- Venue clients ---
	var clients []venue.Client
	for name, vc := range venues {
		if !vc.Enabled {
			continue
		}
		client, err := newVenueClient(name, vc, deps.Normalizer, deps.QuoteCache, cfg.Engine.QuoteMaxAge.Duration)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		clients = append(clients, client)

		v := domain.Venue(name)
		deps.Venues = append(deps.Venues, v)
		deps.Fees[v] = vc.TakerFee
		deps.TMNNative[v] = vc.TMNNative
	}
	sort.Slice(deps.Venues, func(i, j int) bool { return deps.Venues[i] < deps.Venues[j] })

	deps.Gateway = venue.NewRouter(clients, logger)
	if err := deps.Gateway.LoadPrecisions(ctx); err != nil {
		// Sizing falls back to unquantized amounts for the affected venue
		// until the next successful load.
		logger.Warn("precision load incomplete", slog.String("error", err.Error()))
	}

	// --- PostgreSQL (only for modes that persist positions) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = postgres.NewPositionStore(pgClient.Pool())
	} else {
		deps.Store = storememory.NewPositionStore()
	}

	// --- Operator alerts ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Alerts = notify.New(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// overlayCredentials merges decrypted credentials from the configured
// encrypted file over the per-venue plaintext fields. Returns the effective
// venue configs; cfg itself is not mutated.
func overlayCredentials(cfg *config.Config) (map[string]config.VenueConfig, error) {
	venues := make(map[string]config.VenueConfig, len(cfg.Venues))
	for name, vc := range cfg.Venues {
		venues[name] = vc
	}
	if cfg.Credentials.EncryptedPath == "" {
		return venues, nil
	}

	creds, err := crypto.LoadCredentials(cfg.Credentials.EncryptedPath, cfg.Credentials.Password)
	if err != nil {
		return nil, err
	}
	for name, c := range creds {
		vc, ok := venues[name]
		if !ok {
			continue
		}
		if c.APIKey != "" {
			vc.APIKey = c.APIKey
		}
		if c.APISecret != "" {
			vc.APISecret = c.APISecret
		}
		if c.APIToken != "" {
			vc.APIToken = c.APIToken
		}
		venues[name] = vc
	}
	return venues, nil
}

// newVenueClient builds the concrete client for a known venue name. The
// quote cache carries streamed BBOs to clients with a websocket feed.
func newVenueClient(name string, vc config.VenueConfig, norm *symbols.Normalizer, quotes domain.QuoteCache, quoteMaxAge time.Duration) (venue.Client, error) {
	switch name {
	case "coinex":
		return coinex.New(coinex.Config{
			BaseURL:     vc.BaseURL,
			APIKey:      vc.APIKey,
			APISecret:   vc.APISecret,
			Quotes:      quotes,
			QuoteMaxAge: quoteMaxAge,
		}, norm), nil
	case "nobitex":
		return nobitex.New(nobitex.Config{
			BaseURL: vc.BaseURL,
			Token:   vc.APIToken,
		}, norm), nil
	case "wallex":
		return wallex.New(wallex.Config{
			BaseURL: vc.BaseURL,
			APIKey:  vc.APIKey,
		}, norm), nil
	default:
		return nil, fmt.Errorf("no client implementation for venue %q", name)
	}
}
