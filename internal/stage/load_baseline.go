package stage

import (
	"context"
	"fmt"

	"github.com/flarebyte/aegis/internal/baseline"
)

const loadBaselineStage = "load-baseline"

// loadBaselineRunner reads the persisted snapshot. A missing baseline is an
// empty snapshot and marks the run as a first run.
func loadBaselineRunner(ctx context.Context, in Envelope, deps Deps) (Envelope, error) {
	cfg := in.Config
	if cfg == nil {
		return Envelope{}, errNoConfig
	}
	st, err := baseline.Open(cfg.Baseline.Path, cfg.Baseline.Format)
	if err != nil {
		return Envelope{}, err
	}
	snap, found, err := st.Load(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if found && snap.Algorithm() != "" && snap.Algorithm() != cfg.Hash.Algorithm {
		return Envelope{}, fmt.Errorf("%w: baseline %s was hashed with %s, config uses %s",
			ErrAlgorithmMismatch, st.Path(), snap.Algorithm(), cfg.Hash.Algorithm)
	}
	out := in
	out.Baseline = &snap
	meta := ensureMeta(&out)
	meta.Baseline = &BaselineMeta{
		Path:      st.Path(),
		Format:    st.Format(),
		Algorithm: snap.Algorithm(),
		Found:     found,
	}
	if meta.Run == nil {
		meta.Run = &RunMeta{StartedAt: deps.now().UTC()}
	}
	meta.Run.FirstRun = !found
	return out, nil
}

func init() { Register(loadBaselineStage, loadBaselineRunner) }
