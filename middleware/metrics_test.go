package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/middleware"
)

func crawlPage() *job.Job {
	return &job.Job{
		ID:      id.NewJobID(),
		TeamID:  "team-acme",
		CrawlID: "crawl-docs",
		Mode:    job.ModeCrawl,
		Queue:   "scrape",
	}
}

func adhocScrape() *job.Job {
	return &job.Job{
		ID:     id.NewJobID(),
		TeamID: "team-acme",
		Mode:   job.ModeSingleURLs,
		Queue:  "scrape",
	}
}

// manualMetrics wires the middleware to a reader the test can drain.
func manualMetrics() (*sdkmetric.ManualReader, middleware.Middleware) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, middleware.MetricsWithMeter(mp.Meter("test"))
}

func readInstrument(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	t.Fatalf("instrument %s not found", name)
	return nil
}

func attrString(set attribute.Set, key string) string {
	v, _ := set.Value(attribute.Key(key))
	return v.AsString()
}

func TestMetricsLabelsFetchOutcome(t *testing.T) {
	tests := []struct {
		name       string
		fetchErr   error
		wantStatus string
	}{
		{"page fetched", nil, "ok"},
		{"site refused", errors.New("403 from target"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, m := manualMetrics()

			_ = m(context.Background(), crawlPage(), func(_ context.Context) error {
				return tt.fetchErr
			})

			metric := readInstrument(t, reader, "sluice.job.executions")
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("executions is not an int64 sum")
			}
			if len(sum.DataPoints) != 1 {
				t.Fatalf("data points = %d, want 1", len(sum.DataPoints))
			}
			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("executions = %d, want 1", dp.Value)
			}
			if got := attrString(dp.Attributes, "status"); got != tt.wantStatus {
				t.Errorf("status = %q, want %q", got, tt.wantStatus)
			}
			if got := attrString(dp.Attributes, "mode"); got != string(job.ModeCrawl) {
				t.Errorf("mode = %q, want crawl", got)
			}
			if got := attrString(dp.Attributes, "queue"); got != "scrape" {
				t.Errorf("queue = %q, want scrape", got)
			}
		})
	}
}

func TestMetricsTimesEachScrape(t *testing.T) {
	reader, m := manualMetrics()

	_ = m(context.Background(), adhocScrape(), func(_ context.Context) error {
		return nil
	})

	metric := readInstrument(t, reader, "sluice.job.duration")
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration is not a float64 histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("duration count = %d, want 1", hist.DataPoints[0].Count)
	}
	if hist.DataPoints[0].Sum < 0 {
		t.Errorf("duration sum = %v, want non-negative seconds", hist.DataPoints[0].Sum)
	}
}

func TestMetricsSplitsSeriesByMode(t *testing.T) {
	reader, m := manualMetrics()

	// A crawl page and an ad-hoc scrape land in different series.
	for _, j := range []*job.Job{crawlPage(), adhocScrape()} {
		_ = m(context.Background(), j, func(_ context.Context) error { return nil })
	}

	metric := readInstrument(t, reader, "sluice.job.executions")
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("executions is not an int64 sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("data points = %d, want one series per mode", len(sum.DataPoints))
	}
}

func TestMetricsWithoutProviderIsPassThrough(t *testing.T) {
	// No global MeterProvider configured: noop instruments, handler runs.
	m := middleware.Metrics()

	called := false
	err := m(context.Background(), adhocScrape(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}
