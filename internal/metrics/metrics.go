// Package metrics exposes scan and check outcomes in the Prometheus format,
// either as a node_exporter textfile or over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flarebyte/aegis/internal/hasher"
	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/record"
	"github.com/flarebyte/aegis/internal/snapshot"
)

type Metrics struct {
	registry *prometheus.Registry

	records       prometheus.Gauge
	files         prometheus.Gauge
	bytes         prometheus.Gauge
	errors        *prometheus.GaugeVec
	duration      prometheus.Gauge
	changes       *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
	runs          *prometheus.CounterVec
	workers       prometheus.Gauge
	baselineFound prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	// shorthand for new'ing and registering
	gauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		g := prometheus.NewGauge(opts)
		reg.MustRegister(g)
		return g
	}

	m := &Metrics{
		registry: reg,
		records:  gauge(prometheus.GaugeOpts{Name: "aegis_snapshot_records", Help: "Records in the last snapshot"}),
		files:    gauge(prometheus.GaugeOpts{Name: "aegis_snapshot_files", Help: "Hashed files in the last snapshot"}),
		bytes:    gauge(prometheus.GaugeOpts{Name: "aegis_snapshot_bytes", Help: "Bytes hashed by the last snapshot"}),
		duration: gauge(prometheus.GaugeOpts{Name: "aegis_snapshot_duration_seconds", Help: "Wall time of the last snapshot"}),
		errors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_snapshot_errors",
			Help: "ERROR records in the last snapshot by class",
		}, []string{"class"}),
		changes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_check_changes",
			Help: "Paths reported by the last check",
		}, []string{"change"}),
		lastSuccess: gauge(prometheus.GaugeOpts{Name: "aegis_last_success_timestamp_seconds", Help: "Unix time of the last successful run"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_runs_total",
			Help: "Runs by mode and outcome",
		}, []string{"mode", "outcome"}),
		workers:       gauge(prometheus.GaugeOpts{Name: "aegis_workers", Help: "Hashing pool size of the last snapshot"}),
		baselineFound: gauge(prometheus.GaugeOpts{Name: "aegis_baseline_present", Help: "1 when the last check found a baseline"}),
	}
	reg.MustRegister(m.errors, m.changes, m.runs)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveSnapshot records the shape of a completed snapshot.
func (m *Metrics) ObserveSnapshot(s snapshot.Snapshot, took time.Duration, workers int) {
	st := s.Stats()
	m.records.Set(float64(st.Records))
	m.files.Set(float64(st.Files))
	m.bytes.Set(float64(st.Bytes))
	m.duration.Set(took.Seconds())
	m.workers.Set(float64(workers))
	m.errors.Reset()
	for class, n := range ErrorClasses(s) {
		m.errors.WithLabelValues(class).Set(float64(n))
	}
}

// ObserveDiff records the last check result.
func (m *Metrics) ObserveDiff(r integrity.Result, baselineFound bool) {
	m.changes.WithLabelValues("created").Set(float64(len(r.Created)))
	m.changes.WithLabelValues("modified").Set(float64(len(r.Modified)))
	m.changes.WithLabelValues("deleted").Set(float64(len(r.Deleted)))
	if r.MetadataChanged != nil {
		m.changes.WithLabelValues("metadata").Set(float64(len(r.MetadataChanged)))
	}
	if baselineFound {
		m.baselineFound.Set(1)
	} else {
		m.baselineFound.Set(0)
	}
}

// ObserveRun counts a finished run. Outcome is "ok", "first-run", "drift" or
// "error".
func (m *Metrics) ObserveRun(mode, outcome string, at time.Time) {
	m.runs.WithLabelValues(mode, outcome).Inc()
	if outcome != "error" {
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes all metrics for the node_exporter textfile collector.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ErrorClasses counts ERROR records by failure class.
func ErrorClasses(s snapshot.Snapshot) map[string]int {
	out := map[string]int{}
	for _, r := range s.Records() {
		if r.Kind != record.KindError || r.ErrorMessage == nil {
			continue
		}
		out[hasher.ClassOf(*r.ErrorMessage)]++
	}
	return out
}
