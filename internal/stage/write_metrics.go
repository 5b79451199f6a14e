package stage

import (
	"context"
	"time"

	"github.com/flarebyte/aegis/internal/metrics"
)

const writeMetricsStage = "write-metrics"

// writeMetricsRunner updates the metric set and, when metrics.textfile is
// configured, writes it for the node_exporter textfile collector.
func writeMetricsRunner(_ context.Context, in Envelope, deps Deps) (Envelope, error) {
	cfg := in.Config
	if cfg == nil {
		return Envelope{}, errNoConfig
	}
	m := deps.Metrics
	if m == nil {
		if cfg.Metrics.Textfile == "" {
			return in, nil
		}
		m = metrics.New()
	}
	if in.Current != nil {
		var took time.Duration
		workers := 0
		if in.Meta != nil && in.Meta.Snapshot != nil {
			took = time.Duration(in.Meta.Snapshot.DurationMs) * time.Millisecond
			workers = in.Meta.Snapshot.Workers
		}
		m.ObserveSnapshot(*in.Current, took, workers)
	}
	if in.Meta != nil && in.Meta.Diff != nil {
		found := in.Meta.Baseline != nil && in.Meta.Baseline.Found
		m.ObserveDiff(*in.Meta.Diff, found)
	}
	m.ObserveRun(in.Action(), Outcome(in), deps.now())
	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return Envelope{}, err
		}
	}
	return in, nil
}

func init() { Register(writeMetricsStage, writeMetricsRunner) }
