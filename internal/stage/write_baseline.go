package stage

import (
	"context"

	"github.com/flarebyte/aegis/internal/baseline"
	"github.com/function61/gokit/logex"
)

const writeBaselineStage = "write-baseline"

// writeBaselineRunner persists the current snapshot. init always writes;
// check writes only when the baseline update is requested.
func writeBaselineRunner(ctx context.Context, in Envelope, deps Deps) (Envelope, error) {
	cfg := in.Config
	if cfg == nil {
		return Envelope{}, errNoConfig
	}
	if in.Current == nil {
		return Envelope{}, errNoSnapshot
	}
	if in.Action() == ActionCheck && !cfg.Check.UpdateBaseline {
		return in, nil
	}
	st, err := baseline.Open(cfg.Baseline.Path, cfg.Baseline.Format)
	if err != nil {
		return Envelope{}, err
	}
	if err := st.Save(ctx, *in.Current); err != nil {
		return Envelope{}, err
	}
	logex.Levels(logex.NonNil(deps.Logger)).Info.Printf("baseline with %d records saved to %s", in.Current.Len(), st.Path())

	out := in
	meta := ensureMeta(&out)
	if meta.Baseline == nil {
		meta.Baseline = &BaselineMeta{Path: st.Path(), Format: st.Format()}
	}
	meta.Baseline.Written = true
	if st.Format() != baseline.FormatJSONL {
		meta.Baseline.Algorithm = in.Current.Algorithm()
	}
	return out, nil
}

func init() { Register(writeBaselineStage, writeBaselineRunner) }
