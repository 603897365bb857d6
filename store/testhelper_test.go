package store

import (
	"bytes"
	"fmt"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/credvault/credvault/internal/metrics"
	"github.com/credvault/credvault/shard"
)

var (
	testKEK       = bytes.Repeat([]byte{0x4b}, 32)
	testLookupKey = bytes.Repeat([]byte{0x4c}, 32)
)

func memoryDSN(t *testing.T, idx int) string {
	t.Helper()

	safeName := url.PathEscape(fmt.Sprintf("%s-p%d", t.Name(), idx))
	return fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		safeName,
	)
}

// newTestStore builds a store over in-memory partitions and a miniredis
// instance, with deterministic keys so tests can recompute hashes.
func newTestStore(t *testing.T, partitions int) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	parts := make([]*shard.Partition, 0, partitions)
	for i := 0; i < partitions; i++ {
		p, err := shard.NewPartition(memoryDSN(t, i))
		if err != nil {
			t.Fatalf("open test partition %d: %v", i, err)
		}
		t.Cleanup(func() { _ = p.Close() })
		parts = append(parts, p)
	}

	router, err := shard.NewRouter(parts, rdb, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	if err := router.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	s, err := New(Options{
		Router:    router,
		Redis:     rdb,
		KEK:       testKEK,
		LookupKey: testLookupKey,
		Metrics:   metrics.New(),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return s, mr
}

// partitionFor returns the partition a record was placed on.
func partitionFor(s *Store, rec *Record) *shard.Partition {
	return s.router.ByIndex(s.router.Place(rec.ID))
}
