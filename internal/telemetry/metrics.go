// Package telemetry exposes per-cycle monitor statistics as Prometheus metrics.
package telemetry

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ngenohkevin/hivetop/internal/monitor"
)

const namespace = "hivetop"

// Metrics is a monitor presenter that records every frame into its own registry
type Metrics struct {
	registry      *prometheus.Registry
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	processes     *prometheus.GaugeVec
	omitted       prometheus.Counter
	baselines     prometheus.Gauge
	topCPU        *prometheus.GaugeVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Sample, rank and present cycles completed.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one cycle including the settle delay.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 2, 5},
		}),
		processes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes",
			Help:      "Processes seen in the last cycle by inspection outcome.",
		}, []string{"outcome"}),
		omitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_omitted_total",
			Help:      "Processes left out of a cycle because they vanished or timed out.",
		}),
		baselines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_baselines",
			Help:      "Pids holding a CPU accounting baseline.",
		}),
		topCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "top_process_cpu_percent",
			Help:      "CPU percent of the ranked processes in the last cycle.",
		}, []string{"rank", "pid", "name"}),
	}

	m.registry.MustRegister(
		m.cycles, m.cycleDuration, m.processes, m.omitted, m.baselines, m.topCPU,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
	return m
}

// Present records one frame
func (m *Metrics) Present(_ context.Context, f monitor.Frame) error {
	m.cycles.Inc()
	m.cycleDuration.Observe(f.Elapsed.Seconds())

	m.processes.WithLabelValues("listed").Set(float64(f.Stats.Listed))
	m.processes.WithLabelValues("complete").Set(float64(f.Stats.Complete))
	m.processes.WithLabelValues("degraded").Set(float64(f.Stats.Degraded))
	m.processes.WithLabelValues("omitted").Set(float64(f.Stats.Omitted))
	m.omitted.Add(float64(f.Stats.Omitted))
	m.baselines.Set(float64(f.Stats.Baselines))

	// pids come and go, so the ranked series are rebuilt every frame
	m.topCPU.Reset()
	for i, row := range f.Rows {
		m.topCPU.WithLabelValues(strconv.Itoa(i+1), strconv.Itoa(int(row.PID)), row.Name).Set(row.CPUPercent)
	}
	return nil
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
