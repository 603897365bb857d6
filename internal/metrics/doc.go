// Package metrics provides the engine's lock-free operation counters.
//
// Counters are fixed atomic slots indexed by [ID]; incrementing is
// allocation-free and safe on a nil *Metrics so components can run
// without instrumentation. Export lives in metrics/export/ and reads
// Snapshot values; this package performs no I/O and imports no sibling
// package.
package metrics
