package stage

import (
	"context"

	"github.com/flarebyte/aegis/internal/history"
)

const recordHistoryStage = "record-history"

// Outcome classifies a completed run for history and metrics. A check
// without a baseline is a first run, never drift.
func Outcome(env Envelope) string {
	if env.Meta == nil {
		return "ok"
	}
	if env.Meta.Run != nil && env.Meta.Run.FirstRun {
		return "first-run"
	}
	if env.Meta.Diff != nil && env.Meta.Diff.Changed() {
		return "drift"
	}
	return "ok"
}

func recordHistoryRunner(ctx context.Context, in Envelope, deps Deps) (Envelope, error) {
	cfg := in.Config
	if cfg == nil {
		return Envelope{}, errNoConfig
	}
	if cfg.History.DSN == "" {
		return in, nil
	}
	if in.Current == nil {
		return Envelope{}, errNoSnapshot
	}
	store, err := history.Open(ctx, cfg.History.DSN)
	if err != nil {
		return Envelope{}, err
	}
	defer store.Close()

	out := in
	meta := ensureMeta(&out)
	st := in.Current.Stats()
	run := history.Run{
		Mode:       in.Action(),
		FinishedAt: deps.now().UTC(),
		Baseline:   cfg.Baseline.Path,
		Algorithm:  in.Current.Algorithm(),
		Files:      st.Files,
		Errors:     st.Errors,
		Outcome:    Outcome(in),
	}
	if meta.Run != nil {
		run.StartedAt = meta.Run.StartedAt
		run.FirstRun = meta.Run.FirstRun
	} else {
		run.StartedAt = run.FinishedAt
	}
	if len(in.Errors) > 0 {
		run.Message = in.Errors[0].Message
	}
	id, err := store.RecordRun(ctx, run, meta.Diff)
	if err != nil {
		return Envelope{}, err
	}
	if meta.Run == nil {
		meta.Run = &RunMeta{StartedAt: run.StartedAt}
	}
	meta.Run.ID = id
	return out, nil
}

func init() { Register(recordHistoryStage, recordHistoryRunner) }
