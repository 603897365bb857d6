// Package credvault provides an embeddable credential vault for opaque API
// tokens and login sessions: envelope-encrypted storage across sharded
// SQLite partitions, deterministic O(1) secret resolution through a keyed
// lookup hash, Redis-backed rate limiting, and per-owner quotas.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// credvault is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (Credential, VerifyResult, MetricsSnapshot).
// Cryptography lives in the envelope package, persistence in store,
// partition routing in shard, and rate limiting under internal/.
//
// # Availability contract
//
// Redis is an optimization layer, never a correctness dependency: a cache
// outage degrades resolution to partition scans and rate limiting to
// fail-open. Partition faults and integrity failures, by contrast, are
// always surfaced as errors and never folded into "invalid secret".
package credvault
