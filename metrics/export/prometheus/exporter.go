package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	credvault "github.com/credvault/credvault"
)

type metricsSource interface {
	MetricsSnapshot() credvault.MetricsSnapshot
}

// Exporter renders credvault metrics in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an exporter that reads from the given [credvault.Engine].
func NewExporter(engine *credvault.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an exporter from a custom snapshot source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the current metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snap := e.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(4096)

	writeCounter(&b, "credvault_verify_ok_total", "Successful secret verifications.", snap.VerifyOK)
	writeCounter(&b, "credvault_verify_invalid_total", "Verifications rejected as unknown, expired, or mismatched.", snap.VerifyInvalid)
	writeCounter(&b, "credvault_verify_integrity_failures_total", "Verifications aborted by key unwrap or ciphertext authentication failures.", snap.VerifyIntegrityFailures)
	writeCounter(&b, "credvault_tokens_issued_total", "Credentials issued.", snap.TokensIssued)
	writeCounter(&b, "credvault_quota_rejections_total", "Token issuances rejected by the active token cap.", snap.QuotaRejections)
	writeCounter(&b, "credvault_revocations_total", "Credentials revoked.", snap.Revocations)
	writeCounter(&b, "credvault_rate_limit_denials_total", "Requests denied by the rate limiter.", snap.RateLimitDenials)
	writeCounter(&b, "credvault_rate_limit_fail_opens_total", "Rate checks allowed because the cache was unreachable.", snap.RateLimitFailOpens)
	writeCounter(&b, "credvault_alias_fallback_scans_total", "Resolutions that fell back to a full partition scan.", snap.AliasFallbackScans)
	writeCounter(&b, "credvault_lazy_evictions_total", "Expired records evicted on read.", snap.LazyEvictions)
	writeCounter(&b, "credvault_sessions_pruned_total", "Sessions deleted by prune passes.", snap.SessionsPruned)
	writeCounter(&b, "credvault_prune_triggers_dropped_total", "Prune triggers discarded on a full queue.", snap.PruneTriggersDropped)

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
