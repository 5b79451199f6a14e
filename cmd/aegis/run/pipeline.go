package run

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/flarebyte/aegis/internal/config"
	"github.com/flarebyte/aegis/internal/metrics"
	"github.com/flarebyte/aegis/internal/stage"
)

// actionRequest describes one pipeline invocation.
type actionRequest struct {
	action    string
	cfgPath   string
	envFile   string
	config    *config.Config
	overrides *stage.Overrides
	logger    *log.Logger
	metrics   *metrics.Metrics
	progress  io.Writer
	// observe, when set, receives the envelope after every stage.
	observe func(seq int, name string, env stage.Envelope) error
}

// executeAction runs the prepared stages for an action. The progress
// reporter is configured from the envelope once validate-config has run.
func executeAction(ctx context.Context, req actionRequest) (stage.Envelope, error) {
	stages, err := PreparedActionStages(req.action)
	if err != nil {
		return stage.Envelope{}, err
	}
	in := stage.Envelope{
		Config: req.config,
		Meta: &stage.Meta{
			ConfigPath: req.cfgPath,
			EnvFile:    req.envFile,
			Overrides:  req.overrides,
			Config:     &stage.ConfigMeta{Action: req.action},
		},
	}
	deps := stage.Deps{Logger: req.logger, Metrics: req.metrics}
	return runStages(ctx, in, stages, deps, req)
}

// runStages executes the provided list of stage names in order.
func runStages(ctx context.Context, in stage.Envelope, stages []string, deps stage.Deps, req actionRequest) (stage.Envelope, error) {
	out := in
	var reporter *progressReporter
	var err error
	for i, name := range stages {
		out, err = reporter.runStage(ctx, name, out, deps)
		if err != nil {
			return stage.Envelope{}, err
		}
		if reporter == nil && out.Meta != nil && req.progress != nil {
			reporter = newProgressReporter(out.Meta.UI, req.progress)
		}
		if req.observe != nil {
			if err := req.observe(i, name, out); err != nil {
				return stage.Envelope{}, err
			}
		}
	}
	return out, nil
}

// encodeJSONLine returns the JSON encoding with HTML escaping disabled and a
// trailing newline.
func encodeJSONLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
