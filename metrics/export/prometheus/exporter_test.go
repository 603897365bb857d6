package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	credvault "github.com/credvault/credvault"
)

type fakeSource struct {
	snap credvault.MetricsSnapshot
}

func (f *fakeSource) MetricsSnapshot() credvault.MetricsSnapshot {
	return f.snap
}

func TestRenderExposesAllCounters(t *testing.T) {
	exp := NewExporterFromSource(&fakeSource{snap: credvault.MetricsSnapshot{
		VerifyOK:         7,
		VerifyInvalid:    3,
		RateLimitDenials: 1,
	}})

	out := exp.Render()

	for _, want := range []string{
		"credvault_verify_ok_total 7",
		"credvault_verify_invalid_total 3",
		"credvault_rate_limit_denials_total 1",
		"credvault_sessions_pruned_total 0",
		"# TYPE credvault_verify_ok_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	exp := NewExporterFromSource(&fakeSource{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestNilExporterRendersEmpty(t *testing.T) {
	var exp *Exporter
	if out := exp.Render(); out != "" {
		t.Errorf("nil exporter rendered %q", out)
	}
}
