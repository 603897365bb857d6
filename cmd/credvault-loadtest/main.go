// Command credvault-loadtest measures verification throughput and latency
// against an in-process engine. It seeds a population of tokens across
// SQLite partitions in a temp directory, then hammers Verify from
// concurrent workers, mixing in a configurable fraction of invalid
// secrets, and reports throughput and latency percentiles.
//
// Run:
//
//	go run ./cmd/credvault-loadtest -tokens 5000 -concurrency 64 -ops 100000
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	credvault "github.com/credvault/credvault"

	cryptorand "crypto/rand"
)

func main() {
	var (
		tokens      = flag.Int("tokens", 5000, "number of tokens to seed")
		owners      = flag.Int("owners", 2000, "number of distinct owners")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "total verify operations")
		invalidPct  = flag.Int("invalid-pct", 10, "percentage of lookups with unknown secrets")
		partitions  = flag.Int("partitions", 4, "number of SQLite partitions")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, miniredis is used")
	)
	flag.Parse()

	if *tokens <= 0 || *concurrency <= 0 || *ops <= 0 || *partitions <= 0 || *owners <= 0 {
		fmt.Fprintln(os.Stderr, "tokens, owners, concurrency, ops, and partitions must be > 0")
		os.Exit(2)
	}
	if *invalidPct < 0 || *invalidPct > 100 {
		fmt.Fprintln(os.Stderr, "invalid-pct must be in [0,100]")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fatalf("miniredis: %v", err)
		}
		defer mr.Close()
		addr = mr.Addr()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, PoolSize: *concurrency * 2})
	defer rdb.Close()

	dir, err := os.MkdirTemp("", "credvault-loadtest")
	if err != nil {
		fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)

	paths := make([]string, *partitions)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("partition-%d.db", i))
	}

	engine, err := credvault.New().
		WithConfig(credvault.Config{
			Shards:   credvault.ShardConfig{Paths: paths},
			Tokens:   credvault.TokenConfig{DefaultTTL: time.Hour, MaxActive: 1 << 30},
			Sessions: credvault.SessionConfig{TTL: time.Hour, MaxActive: 3, SlidingExpiration: true},
			// Throughput measurement, not throttling behavior.
			RateLimits: credvault.RateLimitConfig{Enabled: false},
			Pruner:     credvault.PrunerConfig{BufferSize: 1024},
		}).
		WithKeys(credvault.Keys{KEK: randomKey(), LookupKey: randomKey()}).
		WithRedis(rdb).
		WithLogger(zerolog.Nop()).
		Build()
	if err != nil {
		fatalf("build engine: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()

	fmt.Printf("seeding %d tokens across %d owners...\n", *tokens, *owners)
	seedStart := time.Now()
	secrets := make([]string, *tokens)
	for i := range secrets {
		owner := fmt.Sprintf("owner-%d", i%*owners)
		cred, err := engine.IssueToken(ctx, owner, time.Hour)
		if err != nil {
			fatalf("seed token %d: %v", i, err)
		}
		secrets[i] = cred.Secret
	}
	fmt.Printf("seeded in %s (%.0f tokens/s)\n\n", time.Since(seedStart).Round(time.Millisecond),
		float64(*tokens)/time.Since(seedStart).Seconds())

	var (
		wg        sync.WaitGroup
		opCounter atomic.Int64
		okCount   atomic.Int64
		errCount  atomic.Int64
		latencies = make([][]time.Duration, *concurrency)
	)

	bogus := "cvt_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			local := make([]time.Duration, 0, (*ops)/(*concurrency)+1)

			for {
				n := opCounter.Add(1)
				if n > int64(*ops) {
					break
				}

				secret := secrets[rng.Intn(len(secrets))]
				if rng.Intn(100) < *invalidPct {
					secret = bogus
				}

				opStart := time.Now()
				res, err := engine.Verify(ctx, secret)
				local = append(local, time.Since(opStart))

				if err != nil {
					errCount.Add(1)
					continue
				}
				if res.Valid {
					okCount.Add(1)
				}
			}
			latencies[worker] = local
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var all []time.Duration
	for _, l := range latencies {
		all = append(all, l...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	fmt.Printf("verify: %d ops in %s (%.0f ops/s)\n", len(all), elapsed.Round(time.Millisecond),
		float64(len(all))/elapsed.Seconds())
	fmt.Printf("  valid: %d  errors: %d\n", okCount.Load(), errCount.Load())
	fmt.Printf("  p50: %s  p95: %s  p99: %s  max: %s\n",
		percentile(all, 0.50), percentile(all, 0.95), percentile(all, 0.99), all[len(all)-1])
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func randomKey() []byte {
	key := make([]byte, 32)
	if _, err := cryptorand.Read(key); err != nil {
		fatalf("generate key: %v", err)
	}
	return key
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
