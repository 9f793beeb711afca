// Package metrics renders kernel health as OpenMetrics text over HTTP: a
// small set of Set* setters feeding a fixed text template, no
// client-library dependency.
package metrics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const contentType = "application/openmetrics-text; version=1.0.0; charset=utf-8"

var errNilWriter = errors.New("metrics: writer is nil")

// Exporter tracks kernel health gauges and exposes them via HTTP.
type Exporter struct {
	mu sync.RWMutex

	contextSwitches uint64
	deadlineMisses  uint64
	jitterMisses    uint64
	totalTicks      uint64
	utilization     float64
	schedulable     bool
}

// NewExporter constructs an Exporter with zeroed metrics.
func NewExporter() *Exporter {
	return new(Exporter)
}

// SetContextSwitches records the scheduler's running context-switch count.
func (e *Exporter) SetContextSwitches(count uint64) {
	e.mu.Lock()
	e.contextSwitches = count
	e.mu.Unlock()
}

// SetDeadlineMisses records the sum of deadline-miss counters across the
// task table.
func (e *Exporter) SetDeadlineMisses(count uint64) {
	e.mu.Lock()
	e.deadlineMisses = count
	e.mu.Unlock()
}

// SetJitterMisses records the sum of the stricter sub-period jitter-miss
// counters across the task table.
func (e *Exporter) SetJitterMisses(count uint64) {
	e.mu.Lock()
	e.jitterMisses = count
	e.mu.Unlock()
}

// SetTotalTicks records the kernel's running tick count.
func (e *Exporter) SetTotalTicks(count uint64) {
	e.mu.Lock()
	e.totalTicks = count
	e.mu.Unlock()
}

// SetUtilization records the task set's total utilization ratio.
func (e *Exporter) SetUtilization(ratio float64) {
	if ratio < 0 {
		ratio = 0
	}

	e.mu.Lock()
	e.utilization = ratio
	e.mu.Unlock()
}

// SetSchedulable records the scheduler's last Liu & Layland verdict.
func (e *Exporter) SetSchedulable(ok bool) {
	e.mu.Lock()
	e.schedulable = ok
	e.mu.Unlock()
}

// ServeHTTP implements http.Handler for the metrics exporter.
func (e *Exporter) ServeHTTP(writer http.ResponseWriter, _ *http.Request) {
	data, err := e.Render()
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)

		return
	}

	writer.Header().Set("Content-Type", contentType)
	_, _ = writer.Write(data)
}

// Render returns the current metrics snapshot encoded as OpenMetrics text.
func (e *Exporter) Render() ([]byte, error) {
	var buffer bytes.Buffer

	_, err := e.WriteTo(&buffer)
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

// WriteTo writes the current metrics snapshot to the provided writer.
func (e *Exporter) WriteTo(dst io.Writer) (int64, error) {
	if dst == nil {
		return 0, errNilWriter
	}

	snapshot := e.snapshot()

	schedulableValue := 0
	if snapshot.schedulable {
		schedulableValue = 1
	}

	lines := []string{
		"# HELP tinykernel_context_switches_total Dispatches whose selected task differed from the previous one.\n",
		"# TYPE tinykernel_context_switches_total counter\n",
		fmt.Sprintf("tinykernel_context_switches_total %d\n", snapshot.contextSwitches),
		"# HELP tinykernel_deadline_misses_total Activations observed overdue by at least one full period.\n",
		"# TYPE tinykernel_deadline_misses_total counter\n",
		fmt.Sprintf("tinykernel_deadline_misses_total %d\n", snapshot.deadlineMisses),
		"# HELP tinykernel_jitter_misses_total Dispatches observed later than their activation by any margin.\n",
		"# TYPE tinykernel_jitter_misses_total counter\n",
		fmt.Sprintf("tinykernel_jitter_misses_total %d\n", snapshot.jitterMisses),
		"# HELP tinykernel_total_ticks_total Number of Tick calls observed by the kernel.\n",
		"# TYPE tinykernel_total_ticks_total counter\n",
		fmt.Sprintf("tinykernel_total_ticks_total %d\n", snapshot.totalTicks),
		"# HELP tinykernel_utilization_ratio Sum of wcet/period across the active task set.\n",
		"# TYPE tinykernel_utilization_ratio gauge\n",
		fmt.Sprintf("tinykernel_utilization_ratio %.6f\n", snapshot.utilization),
		"# HELP tinykernel_schedulable Liu and Layland schedulability verdict for the active task set.\n",
		"# TYPE tinykernel_schedulable gauge\n",
		fmt.Sprintf("tinykernel_schedulable %d\n", schedulableValue),
		"# EOF\n",
	}

	var total int64

	for _, line := range lines {
		n, err := io.WriteString(dst, line)

		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write metrics: %w", err)
		}
	}

	return total, nil
}

type exporterSnapshot struct {
	contextSwitches uint64
	deadlineMisses  uint64
	jitterMisses    uint64
	totalTicks      uint64
	utilization     float64
	schedulable     bool
}

func (e *Exporter) snapshot() exporterSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return exporterSnapshot{
		contextSwitches: e.contextSwitches,
		deadlineMisses:  e.deadlineMisses,
		jitterMisses:    e.jitterMisses,
		totalTicks:      e.totalTicks,
		utilization:     e.utilization,
		schedulable:     e.schedulable,
	}
}
