// Package metrics is a small facade over a swappable metrics backend.
//
// The pipeline code records against this package only; the concrete backend
// (Datadog in production, fakes in tests, nothing at all for local runs) is
// installed once at startup with SetBackend. With no backend installed every
// call is a no-op, so library code never has to check.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Labels are free-form metric dimensions (e.g. {"step": "fetch"}).
type Labels map[string]string

// Backend receives raw counter increments and histogram observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// flusher is implemented by backends that buffer (e.g. Datadog).
type flusher interface {
	Flush() error
}

var backend atomic.Value // of backendBox

type backendBox struct{ b Backend }

// SetBackend installs the process-wide backend. Safe to call concurrently
// with recording, though in practice it is called once from main.
func SetBackend(b Backend) {
	backend.Store(backendBox{b: b})
}

func current() Backend {
	box, _ := backend.Load().(backendBox)
	return box.b
}

// Flush forwards to the backend if it buffers; no-op otherwise.
func Flush() error {
	if f, ok := current().(flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep records one pipeline step outcome with its duration.
func RecordStep(step string, err error, d time.Duration) {
	b := current()
	if b == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := Labels{"step": step, "status": status}
	b.IncCounter("kpi_step_total", 1, labels)
	b.ObserveHistogram("kpi_step_duration_seconds", d.Seconds(), labels)
}

// RecordHTTP records one HTTP attempt against the vendor.
func RecordHTTP(statusCode int, err error, d time.Duration, bytes int64) {
	b := current()
	if b == nil {
		return
	}
	labels := Labels{"status": strconv.Itoa(statusCode)}
	b.IncCounter("kpi_http_requests_total", 1, labels)
	if err != nil || statusCode >= 400 || statusCode == 0 {
		b.IncCounter("kpi_http_errors_total", 1, labels)
	}
	b.ObserveHistogram("kpi_http_request_duration_seconds", d.Seconds(), labels)
	if bytes >= 0 {
		b.ObserveHistogram("kpi_http_download_bytes", float64(bytes), labels)
	}
}

// RecordRows records how many rows a table write produced.
func RecordRows(table string, n int) {
	b := current()
	if b == nil {
		return
	}
	b.IncCounter("kpi_rows_written_total", float64(n), Labels{"table": table})
}
