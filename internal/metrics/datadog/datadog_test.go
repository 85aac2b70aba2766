package datadog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"portsignal/internal/metrics"
)

// fakeSubmitter captures submitted payloads instead of calling Datadog.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (f *fakeSubmitter) all() []datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datadogV2.MetricPayload(nil), f.payloads...)
}

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "test_job",
		FlushEvery: time.Hour, // loop never fires during a test
		now:        func() time.Time { return time.Unix(1750000000, 0) },
		newTicker:  time.NewTicker,
		submitter:  fs,
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v, want nil", err)
	}
	return b
}

func seriesByName(payloads []datadogV2.MetricPayload) map[string]datadogV2.MetricSeries {
	out := map[string]datadogV2.MetricSeries{}
	for _, p := range payloads {
		for _, s := range p.Series {
			out[s.Metric] = s
		}
	}
	return out
}

func TestBackend_CloseFlushesBufferedMetrics(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter("kpi_step_total", 1, metrics.Labels{"step": "fetch"})
	b.IncCounter("kpi_step_total", 1, metrics.Labels{"step": "fetch"})
	b.ObserveHistogram("kpi_step_duration_seconds", 0.5, nil)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v, want nil", err)
	}

	byName := seriesByName(fs.all())

	counter, ok := byName["kpi.step.total"]
	if !ok {
		t.Fatalf("no kpi.step.total series; got %v", byName)
	}
	if got := *counter.Points[0].Value; got != 2 {
		t.Fatalf("counter value=%v, want 2 (accumulated)", got)
	}
	if *counter.Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Fatalf("counter type=%v, want COUNT", *counter.Type)
	}
	foundTag := false
	for _, tag := range counter.Tags {
		if tag == "step:fetch" {
			foundTag = true
		}
	}
	if !foundTag {
		t.Fatalf("tags=%v, want step:fetch", counter.Tags)
	}

	if _, ok := byName["kpi.step.duration.seconds.p95"]; !ok {
		t.Fatalf("no p95 gauge for the histogram; got %v", byName)
	}
}

func TestBackend_FlushResetsBuffers(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter("kpi_rows_written_total", 5, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("first Flush() err=%v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush() err=%v", err)
	}
	if got := len(fs.all()); got != 1 {
		t.Fatalf("payloads=%d, want 1 (second flush had nothing buffered)", got)
	}

	_ = b.Close()
}

func TestBuildSeries_HistogramPercentiles(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer b.Close()

	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(i + 1) // 1..100
	}
	histograms := map[metricKey][]float64{
		{name: "kpi_http_request_duration_seconds"}: samples,
	}

	series := b.buildSeries(nil, histograms, 1750000000)

	got := map[string]float64{}
	for _, s := range series {
		got[s.Metric] = *s.Points[0].Value
	}
	if got["kpi.http.request.duration.seconds.max"] != 100 {
		t.Fatalf("max=%v, want 100", got["kpi.http.request.duration.seconds.max"])
	}
	if got["kpi.http.request.duration.seconds.samples"] != 100 {
		t.Fatalf("samples=%v, want 100", got["kpi.http.request.duration.seconds.samples"])
	}
	p50 := got["kpi.http.request.duration.seconds.p50"]
	if p50 < 49 || p50 > 52 {
		t.Fatalf("p50=%v, want near 50", p50)
	}
	p99 := got["kpi.http.request.duration.seconds.p99"]
	if p99 < 98 || p99 > 100 {
		t.Fatalf("p99=%v, want near 99", p99)
	}
}

func TestBuildSeries_SkipsZeroCounters(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer b.Close()

	counters := map[metricKey]float64{
		{name: "kpi_http_errors_total"}: 0,
	}
	if series := b.buildSeries(counters, nil, 0); len(series) != 0 {
		t.Fatalf("series=%d, want 0 for zero-valued counters", len(series))
	}
}

func TestKeyFor_StableTagOrder(t *testing.T) {
	a := keyFor("m", metrics.Labels{"b": "2", "a": "1"})
	bKey := keyFor("m", metrics.Labels{"a": "1", "b": "2"})
	if a != bKey {
		t.Fatalf("keys differ for equal label sets: %v vs %v", a, bKey)
	}

	tags := a.tagList()
	if !sort.StringsAreSorted(tags) {
		t.Fatalf("tags=%v, want sorted", tags)
	}
	if strings.Join(tags, ",") != "a:1,b:2" {
		t.Fatalf("tags=%v, want [a:1 b:2]", tags)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	if got := percentileNearestRank(s, 0); got != 1 {
		t.Fatalf("p0=%v, want 1", got)
	}
	if got := percentileNearestRank(s, 1); got != 4 {
		t.Fatalf("p100=%v, want 4", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty=%v, want 0", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:kpi ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "service:kpi" {
		t.Fatalf("ParseTagsCSV=%v, want [env:prod service:kpi]", got)
	}
	if got := ParseTagsCSV(""); got != nil {
		t.Fatalf("ParseTagsCSV(\"\")=%v, want nil", got)
	}
}

func TestDottedName(t *testing.T) {
	if got := dottedName("kpi_rows_written_total"); got != "kpi.rows.written.total" {
		t.Fatalf("dottedName=%q, want kpi.rows.written.total", got)
	}
}
