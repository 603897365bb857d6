package credvault

import "github.com/credvault/credvault/internal/metrics"

// MetricsSnapshot is a point-in-time view of the engine's counters.
type MetricsSnapshot struct {
	VerifyOK                uint64
	VerifyInvalid           uint64
	VerifyIntegrityFailures uint64
	TokensIssued            uint64
	QuotaRejections         uint64
	Revocations             uint64
	RateLimitDenials        uint64
	RateLimitFailOpens      uint64
	AliasFallbackScans      uint64
	LazyEvictions           uint64
	SessionsPruned          uint64
	PruneTriggersDropped    uint64
}

// MetricsSnapshot returns the engine's current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		VerifyOK:                e.metrics.Get(metrics.VerifyOK),
		VerifyInvalid:           e.metrics.Get(metrics.VerifyInvalid),
		VerifyIntegrityFailures: e.metrics.Get(metrics.VerifyIntegrityFailure),
		TokensIssued:            e.metrics.Get(metrics.IssueOK),
		QuotaRejections:         e.metrics.Get(metrics.IssueQuotaRejected),
		Revocations:             e.metrics.Get(metrics.RevokeOK),
		RateLimitDenials:        e.metrics.Get(metrics.RateLimitDenied),
		RateLimitFailOpens:      e.metrics.Get(metrics.RateLimitFailOpen),
		AliasFallbackScans:      e.metrics.Get(metrics.AliasFallbackScan),
		LazyEvictions:           e.metrics.Get(metrics.LazyEviction),
		SessionsPruned:          e.metrics.Get(metrics.SessionPruned),
		PruneTriggersDropped:    e.pruner.Dropped(),
	}
}
