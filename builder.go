package credvault

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/credvault/credvault/envelope"
	"github.com/credvault/credvault/internal/metrics"
	"github.com/credvault/credvault/internal/rate"
	"github.com/credvault/credvault/shard"
	"github.com/credvault/credvault/store"
)

// Builder assembles an Engine. A Builder is single-use: Build consumes it.
type Builder struct {
	config Config
	keys   Keys
	redis  redis.UniversalClient
	router *shard.Router
	logger zerolog.Logger

	built bool
}

// New returns a Builder initialized with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKeys sets the vault's key material. See also KeysFromEnv.
func (b *Builder) WithKeys(keys Keys) *Builder {
	b.keys = Keys{
		KEK:         cloneBytes(keys.KEK),
		LookupKey:   cloneBytes(keys.LookupKey),
		AdminSecret: keys.AdminSecret,
	}
	return b
}

// WithRedis sets the Redis client used for the alias index, count cache,
// and rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRouter injects an already-opened partition router, replacing
// Config.Shards.Paths. The engine takes ownership and closes it.
func (b *Builder) WithRouter(router *shard.Router) *Builder {
	b.router = router
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = log
	return b
}

// Build validates the configuration, opens and migrates the partition
// set, and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if len(b.keys.KEK) != envelope.KeySize {
		return nil, fmt.Errorf("kek must be %d bytes", envelope.KeySize)
	}
	if len(b.keys.LookupKey) != envelope.KeySize {
		return nil, fmt.Errorf("lookup key must be %d bytes", envelope.KeySize)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	router := b.router
	if router == nil {
		if len(cfg.Shards.Paths) == 0 {
			return nil, errors.New("shard paths or a router required")
		}
		var err error
		router, err = shard.Open(cfg.Shards.Paths, b.redis, b.logger)
		if err != nil {
			return nil, err
		}
	}
	if err := router.Migrate(); err != nil {
		router.Close()
		return nil, err
	}

	m := metrics.New()

	st, err := store.New(store.Options{
		Router:          router,
		Redis:           b.redis,
		KEK:             b.keys.KEK,
		LookupKey:       b.keys.LookupKey,
		MaxActiveTokens: cfg.Tokens.MaxActive,
		Metrics:         m,
		Logger:          b.logger,
	})
	if err != nil {
		router.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimits.Enabled {
		limiter = rate.New(b.redis, map[string]rate.Budget{
			PurposeVerify: {Requests: cfg.RateLimits.Verify.Requests, Window: cfg.RateLimits.Verify.Window},
			PurposeIssue:  {Requests: cfg.RateLimits.Issue.Requests, Window: cfg.RateLimits.Issue.Window},
			PurposeRevoke: {Requests: cfg.RateLimits.Revoke.Requests, Window: cfg.RateLimits.Revoke.Window},
		}, m, b.logger)
	}

	engine := &Engine{
		config:  cfg,
		keys:    b.keys,
		router:  router,
		store:   st,
		limiter: limiter,
		metrics: m,
		log:     b.logger,
	}
	engine.pruner = newSessionPruner(st, cfg.Sessions.MaxActive, cfg.Pruner.BufferSize, b.logger)

	b.built = true

	return engine, nil
}
