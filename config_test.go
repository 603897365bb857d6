package credvault

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	broken := []func(*Config){
		func(c *Config) { c.Tokens.DefaultTTL = 0 },
		func(c *Config) { c.Tokens.MaxActive = 0 },
		func(c *Config) { c.Sessions.TTL = -time.Hour },
		func(c *Config) { c.Sessions.MaxActive = 0 },
		func(c *Config) { c.Pruner.BufferSize = 0 },
		func(c *Config) { c.RateLimits.Verify = RateBudget{Requests: -1, Window: time.Minute} },
		func(c *Config) { c.RateLimits.Issue = RateBudget{Requests: 5, Window: 0} },
	}
	for i, mutate := range broken {
		cfg := defaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("broken config %d passed validation", i)
		}
	}
}

func TestKeysFromEnv(t *testing.T) {
	kek := base64.StdEncoding.EncodeToString(testKEK)
	lookup := base64.StdEncoding.EncodeToString(testLookupKey)

	t.Setenv(EnvKEK, kek)
	t.Setenv(EnvLookupKey, lookup)
	t.Setenv(EnvAdminSecret, "super-secret")

	keys, err := KeysFromEnv()
	if err != nil {
		t.Fatalf("KeysFromEnv failed: %v", err)
	}
	if string(keys.KEK) != string(testKEK) {
		t.Error("KEK not decoded correctly")
	}
	if string(keys.LookupKey) != string(testLookupKey) {
		t.Error("lookup key not decoded correctly")
	}
	if keys.AdminSecret != "super-secret" {
		t.Error("admin secret not loaded")
	}
}

func TestKeysFromEnvRejectsBadInput(t *testing.T) {
	t.Setenv(EnvKEK, "")
	t.Setenv(EnvLookupKey, "")
	if _, err := KeysFromEnv(); err == nil {
		t.Error("missing keys should fail")
	}

	t.Setenv(EnvKEK, "not base64!!!")
	t.Setenv(EnvLookupKey, base64.StdEncoding.EncodeToString(testLookupKey))
	if _, err := KeysFromEnv(); err == nil {
		t.Error("invalid base64 should fail")
	}

	t.Setenv(EnvKEK, base64.StdEncoding.EncodeToString([]byte("short")))
	if _, err := KeysFromEnv(); err == nil {
		t.Error("short key should fail")
	}
}

func TestConfigCloneIsolation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Shards.Paths = []string{"a.db", "b.db"}

	clone := cloneConfig(cfg)
	clone.Shards.Paths[0] = "mutated.db"

	if cfg.Shards.Paths[0] != "a.db" {
		t.Error("cloneConfig shares the shard path slice")
	}
}
