// Package prometheus renders credvault engine counters in Prometheus text
// exposition format.
//
// [NewExporter] accepts a [credvault.Engine] and exposes an [http.Handler]
// that serves every counter from [credvault.Engine.MetricsSnapshot] with a
// credvault_*_total name.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry - callers mount the Handler.
//   - Mutate engine state.
package prometheus
