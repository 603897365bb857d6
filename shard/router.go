package shard

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// aliasKeyPrefix namespaces alias entries away from primary record ids in
// the shared Redis keyspace.
const aliasKeyPrefix = "cva"

// ErrCacheUnavailable wraps Redis faults in alias operations. Callers
// treat it as a degraded-mode signal, not a hard failure: resolution
// falls back to scanning every partition.
var ErrCacheUnavailable = errors.New("shard: alias cache unavailable")

// Router owns the partition set and the alias index. Placement is
// deterministic by record id, so a record never moves between partitions
// after creation.
type Router struct {
	parts []*Partition
	redis redis.UniversalClient
	log   zerolog.Logger
}

// NewRouter builds a router over an already-opened partition set.
func NewRouter(parts []*Partition, redisClient redis.UniversalClient, log zerolog.Logger) (*Router, error) {
	if len(parts) == 0 {
		return nil, errors.New("shard: at least one partition required")
	}
	return &Router{parts: parts, redis: redisClient, log: log}, nil
}

// Open opens one partition per path and builds a router over them.
func Open(paths []string, redisClient redis.UniversalClient, log zerolog.Logger) (*Router, error) {
	parts := make([]*Partition, 0, len(paths))
	for _, path := range paths {
		p, err := NewPartition(DSN(path))
		if err != nil {
			for _, opened := range parts {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open partition %s: %w", path, err)
		}
		parts = append(parts, p)
	}
	return NewRouter(parts, redisClient, log)
}

// Count returns the number of partitions.
func (r *Router) Count() int {
	return len(r.parts)
}

// Place deterministically assigns a record id to a partition index.
func (r *Router) Place(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(r.parts)))
}

// ByIndex returns the partition at the given index.
func (r *Router) ByIndex(i int) *Partition {
	return r.parts[i]
}

// All returns every partition, for aggregate operations that have no
// single-partition key and must reduce client-side.
func (r *Router) All() []*Partition {
	return r.parts
}

// Close closes every partition. Returns the first error encountered.
func (r *Router) Close() error {
	var firstErr error
	for _, p := range r.parts {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func aliasKey(lookupHash []byte) string {
	return aliasKeyPrefix + ":" + hex.EncodeToString(lookupHash)
}

// RegisterAlias records which partition holds the record for a lookup
// hash, so future resolutions go straight to it.
func (r *Router) RegisterAlias(ctx context.Context, lookupHash []byte, partition int) error {
	if err := r.redis.Set(ctx, aliasKey(lookupHash), partition, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// LookupAlias resolves a lookup hash to its partition index. ok is false
// when the alias is missing or the cache is unreachable; either way the
// caller must fall back to a full-partition scan.
func (r *Router) LookupAlias(ctx context.Context, lookupHash []byte) (partition int, ok bool) {
	val, err := r.redis.Get(ctx, aliasKey(lookupHash)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Msg("alias cache unreachable, degrading to partition scan")
		}
		return -1, false
	}

	idx, err := strconv.Atoi(val)
	if err != nil || idx < 0 || idx >= len(r.parts) {
		r.log.Warn().Str("value", val).Msg("stale alias entry, degrading to partition scan")
		return -1, false
	}
	return idx, true
}

// DropAlias removes the alias entry for a revoked or evicted record.
func (r *Router) DropAlias(ctx context.Context, lookupHash []byte) error {
	if err := r.redis.Del(ctx, aliasKey(lookupHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
