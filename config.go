package credvault

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/credvault/credvault/envelope"
)

// Environment variables holding the vault's key material. Keys are byte
// strings encoded with standard base64.
const (
	EnvKEK         = "CREDVAULT_KEK"
	EnvLookupKey   = "CREDVAULT_LOOKUP_KEY"
	EnvAdminSecret = "CREDVAULT_ADMIN_SECRET"
)

// Keys holds the vault's long-lived key material. Never persisted; the
// caller loads it from the environment or a secret manager.
type Keys struct {
	// KEK is the key-encryption key all record DEKs are wrapped under.
	KEK []byte
	// LookupKey keys the deterministic lookup hash. Distinct from the KEK:
	// compromise of one must not imply compromise of the other.
	LookupKey []byte
	// AdminSecret, when non-empty, lets requests bypass rate limiting.
	AdminSecret string
}

// KeysFromEnv loads Keys from the CREDVAULT_* environment variables. The
// admin secret is optional; both keys are required and must decode to
// exactly 32 bytes.
func KeysFromEnv() (Keys, error) {
	kek, err := keyFromEnv(EnvKEK)
	if err != nil {
		return Keys{}, err
	}
	lookupKey, err := keyFromEnv(EnvLookupKey)
	if err != nil {
		return Keys{}, err
	}

	return Keys{
		KEK:         kek,
		LookupKey:   lookupKey,
		AdminSecret: os.Getenv(EnvAdminSecret),
	}, nil
}

func keyFromEnv(name string) ([]byte, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", name)
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", name, err)
	}
	if len(key) != envelope.KeySize {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d", name, envelope.KeySize, len(key))
	}
	return key, nil
}

// Config tunes the engine. Zero values fall back to the defaults from
// defaultConfig; construct via Builder, which starts from those defaults.
type Config struct {
	Shards     ShardConfig
	Tokens     TokenConfig
	Sessions   SessionConfig
	RateLimits RateLimitConfig
	Pruner     PrunerConfig
}

// ShardConfig selects the physical partition set. The path list is
// positional: reordering or resizing it strands existing records, because
// placement hashes record ids modulo the partition count.
type ShardConfig struct {
	Paths []string
}

// TokenConfig tunes API token issuance.
type TokenConfig struct {
	DefaultTTL time.Duration
	// MaxActive is the hard cap on non-expired tokens per owner.
	MaxActive int
}

// SessionConfig tunes session issuance and pruning.
type SessionConfig struct {
	TTL time.Duration
	// MaxActive is the soft cap on live sessions per owner, enforced
	// asynchronously by the pruner.
	MaxActive int
	// SlidingExpiration enables BumpSession to push a session's expiry
	// forward on activity.
	SlidingExpiration bool
}

// RateBudget is one fixed-window allowance.
type RateBudget struct {
	Requests int
	Window   time.Duration
}

// RateLimitConfig holds the per-operation budgets. Disabled turns the
// limiter off entirely.
type RateLimitConfig struct {
	Enabled bool
	Verify  RateBudget
	Issue   RateBudget
	Revoke  RateBudget
}

// PrunerConfig tunes the background session pruner.
type PrunerConfig struct {
	// BufferSize bounds the prune queue. A full queue drops the trigger;
	// the next issuance for the same owner re-enqueues it.
	BufferSize int
}

func defaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			DefaultTTL: 30 * 24 * time.Hour,
			MaxActive:  5,
		},
		Sessions: SessionConfig{
			TTL:               14 * 24 * time.Hour,
			MaxActive:         3,
			SlidingExpiration: true,
		},
		RateLimits: RateLimitConfig{
			Enabled: true,
			Verify:  RateBudget{Requests: 60, Window: time.Minute},
			Issue:   RateBudget{Requests: 10, Window: time.Minute},
			Revoke:  RateBudget{Requests: 30, Window: time.Minute},
		},
		Pruner: PrunerConfig{
			BufferSize: 256,
		},
	}
}

// Validate checks the configuration for values the engine cannot run
// with. Shard paths are validated in Build, where an injected router may
// replace them.
func (c *Config) Validate() error {
	if c.Tokens.DefaultTTL <= 0 {
		return errors.New("Tokens.DefaultTTL must be positive")
	}
	if c.Tokens.MaxActive <= 0 {
		return errors.New("Tokens.MaxActive must be positive")
	}
	if c.Sessions.TTL <= 0 {
		return errors.New("Sessions.TTL must be positive")
	}
	if c.Sessions.MaxActive <= 0 {
		return errors.New("Sessions.MaxActive must be positive")
	}
	if c.Pruner.BufferSize <= 0 {
		return errors.New("Pruner.BufferSize must be positive")
	}
	if c.RateLimits.Enabled {
		for _, b := range []RateBudget{c.RateLimits.Verify, c.RateLimits.Issue, c.RateLimits.Revoke} {
			if b.Requests < 0 || b.Window < 0 {
				return errors.New("rate budgets must not be negative")
			}
			if b.Requests > 0 && b.Window == 0 {
				return errors.New("rate budgets with requests need a window")
			}
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Shards.Paths = append([]string(nil), cfg.Shards.Paths...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
