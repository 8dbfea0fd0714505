package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot rideAuth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() rideAuth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func populatedSource() fakeSource {
	return fakeSource{
		snapshot: rideAuth.MetricsSnapshot{
			Counters: map[rideAuth.MetricID]uint64{
				rideAuth.MetricSignInSuccess: 7,
			},
			Histograms: map[rideAuth.MetricID][]uint64{
				rideAuth.MetricBackendLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: rideAuth.MetricsSnapshot{
			Counters:   map[rideAuth.MetricID]uint64{},
			Histograms: map[rideAuth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	out := NewPrometheusExporterFromSource(populatedSource()).Render()

	for _, want := range []string{
		"rideauth_sign_in_success_total 7",
		"rideauth_sign_up_failure_total 0",
		`rideauth_backend_latency_seconds_bucket{le="0.005"} 1`,
		`rideauth_backend_latency_seconds_bucket{le="+Inf"} 36`,
		"rideauth_backend_latency_seconds_count 36",
		"rideauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(populatedSource())

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCollectorPublishesEverySeries(t *testing.T) {
	exp := NewPrometheusExporterFromSource(populatedSource())

	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + 1
	if got := testutil.CollectAndCount(exp); got != want {
		t.Fatalf("expected %d series, got %d", want, got)
	}

	expected := `
# HELP rideauth_sign_in_success_total Sign-ins that reached success.
# TYPE rideauth_sign_in_success_total counter
rideauth_sign_in_success_total 7
# HELP rideauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE rideauth_audit_dropped_total counter
rideauth_audit_dropped_total 2
`
	if err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"rideauth_sign_in_success_total", "rideauth_audit_dropped_total"); err != nil {
		t.Fatalf("unexpected collected metrics: %v", err)
	}
}

func TestCollectorServesThroughRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewPrometheusExporterFromSource(populatedSource()))

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `rideauth_backend_latency_seconds_bucket{le="0.5"} 28`) {
		t.Fatalf("expected cumulative bucket in registry output, got:\n%s", body)
	}
}

func TestControllerExport(t *testing.T) {
	c, err := rideAuth.New().WithBackend(nopBackend{}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()

	_ = c.SignIn(t.Context(), "", "")

	out := NewPrometheusExporter(c).Render()
	if !strings.Contains(out, "rideauth_validation_rejected_total 1") {
		t.Fatalf("expected validation counter, got:\n%s", out)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(populatedSource())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}

type nopBackend struct{}

func (nopBackend) SignInWithPassword(context.Context, string, string) (rideAuth.Account, error) {
	return rideAuth.Account{}, nil
}

func (nopBackend) CreateAccount(context.Context, string, string) (rideAuth.Account, error) {
	return rideAuth.Account{}, nil
}

func (nopBackend) SetDisplayName(context.Context, rideAuth.Account, string) error { return nil }
func (nopBackend) SendVerificationEmail(context.Context, rideAuth.Account) error  { return nil }
func (nopBackend) SignOut(context.Context)                                        {}

func (nopBackend) CurrentAccount(context.Context) (rideAuth.Account, bool) {
	return rideAuth.Account{}, false
}
