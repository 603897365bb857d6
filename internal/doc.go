// Package internal contains helper utilities that are intentionally
// private to credvault, including secret generation.
//
// # Sub-packages
//
//   - metrics - lock-free engine counters
//   - rate - Redis-backed fixed-window rate limiting
//
// # What this package must NOT do
//
//   - Export types that appear in the public credvault API.
//   - Be imported by any package outside the credvault module.
package internal
