package shard

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// memoryDSN builds a named shared in-memory SQLite DSN. The name is
// derived from the test name and partition index so parallel tests stay
// isolated while a partition's reader and writer share one database.
func memoryDSN(t *testing.T, idx int) string {
	t.Helper()

	safeName := url.PathEscape(fmt.Sprintf("%s-p%d", t.Name(), idx))
	return fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		safeName,
	)
}

func newTestPartitions(t *testing.T, n int) []*Partition {
	t.Helper()

	parts := make([]*Partition, 0, n)
	for i := 0; i < n; i++ {
		p, err := NewPartition(memoryDSN(t, i))
		if err != nil {
			t.Fatalf("open test partition %d: %v", i, err)
		}
		t.Cleanup(func() { _ = p.Close() })
		parts = append(parts, p)
	}
	return parts
}

func newTestRouter(t *testing.T, n int) (*Router, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r, err := NewRouter(newTestPartitions(t, n), rdb, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	if err := r.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return r, mr
}
