package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tinykernel/pkg/http/metrics"
)

const openMetricsContentType = "application/openmetrics-text; version=1.0.0; charset=utf-8"

var errFailingWriter = errors.New("metrics: failing writer")

func TestExporterRenderProducesOpenMetrics(t *testing.T) {
	t.Parallel()

	exporter := metrics.NewExporter()
	exporter.SetContextSwitches(3)
	exporter.SetDeadlineMisses(1)
	exporter.SetJitterMisses(5)
	exporter.SetTotalTicks(42)
	exporter.SetUtilization(0.7)
	exporter.SetSchedulable(true)

	body, err := exporter.Render()
	if err != nil {
		t.Fatalf("Render() returned error: %v", err)
	}

	got := string(body)

	for _, want := range []string{
		"tinykernel_context_switches_total 3",
		"tinykernel_deadline_misses_total 1",
		"tinykernel_jitter_misses_total 5",
		"tinykernel_total_ticks_total 42",
		"tinykernel_utilization_ratio 0.700000",
		"tinykernel_schedulable 1",
		"# EOF",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Render() output missing %q:\n%s", want, got)
		}
	}
}

func TestExporterServeHTTPWritesContentType(t *testing.T) {
	t.Parallel()

	exporter := metrics.NewExporter()

	recorder := httptest.NewRecorder()
	exporter.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", recorder.Code)
	}

	if got := recorder.Header().Get("Content-Type"); got != openMetricsContentType {
		t.Fatalf("unexpected content type: %q", got)
	}
}

func TestExporterWriteToPropagatesWriterErrors(t *testing.T) {
	t.Parallel()

	exporter := metrics.NewExporter()

	_, err := exporter.WriteTo(failingWriter{})
	if err == nil {
		t.Fatal("expected error from WriteTo")
	}

	if !strings.Contains(err.Error(), "write metrics") {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestExporterClampsNegativeUtilization(t *testing.T) {
	t.Parallel()

	exporter := metrics.NewExporter()
	exporter.SetUtilization(-5)

	data, err := exporter.Render()
	if err != nil {
		t.Fatalf("Render() returned error: %v", err)
	}

	if !strings.Contains(string(data), "tinykernel_utilization_ratio 0.000000") {
		t.Fatalf("expected clamped utilization, got %s", data)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errFailingWriter
}
