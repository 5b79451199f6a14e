package stage

import (
	"context"

	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/snapshot"
)

const computeIntegrityDiffStage = "compute-integrity-diff"

func computeIntegrityDiffRunner(_ context.Context, in Envelope, _ Deps) (Envelope, error) {
	cfg := in.Config
	if cfg == nil {
		return Envelope{}, errNoConfig
	}
	if in.Current == nil {
		return Envelope{}, errNoSnapshot
	}
	base := snapshot.Empty(in.Current.Algorithm())
	if in.Baseline != nil {
		base = *in.Baseline
	}
	var opts []integrity.Option
	if cfg.Check.MetadataDrift {
		opts = append(opts, integrity.WithMetadataDrift())
	}
	res, err := integrity.Diff(base.Comparables(), in.Current.Comparables(), opts...)
	if err != nil {
		return Envelope{}, err
	}
	out := in
	ensureMeta(&out).Diff = &res
	return out, nil
}

func init() { Register(computeIntegrityDiffStage, computeIntegrityDiffRunner) }
