package stage

import (
	"context"

	"github.com/flarebyte/aegis/internal/record"
	"github.com/function61/gokit/logex"
)

const snapshotFilesStage = "snapshot-files"

// snapshotFilesRunner hashes the discovered candidates. Files that cannot
// be hashed stay in the snapshot as ERROR records and are mirrored into the
// envelope errors.
func snapshotFilesRunner(ctx context.Context, in Envelope, deps Deps) (Envelope, error) {
	cfg := in.Config
	if cfg == nil {
		return Envelope{}, errNoConfig
	}
	if in.Roots == nil {
		return Envelope{}, errNoDiscovery
	}
	logl := logex.Levels(logex.NonNil(deps.Logger))

	engine := newEngine(cfg, deps, nil, nil)
	started := deps.now()
	snap, err := engine.Hash(ctx, in.Roots, in.Candidates)
	if err != nil {
		return Envelope{}, err
	}
	took := deps.now().Sub(started)
	st := snap.Stats()
	logl.Info.Printf("hashed %d files (%d errors, %d bytes) with %s in %s", st.Files, st.Errors, st.Bytes, snap.Algorithm(), took)

	out := in
	out.Current = &snap
	out.Candidates = nil
	out.Records = snap.Records()
	ensureMeta(&out).Snapshot = &SnapshotMeta{
		Algorithm:  snap.Algorithm(),
		Workers:    engine.Workers(),
		DurationMs: took.Milliseconds(),
		Stats:      st,
	}
	var envErrs []Error
	for _, r := range out.Records {
		if r.Kind == record.KindError && r.ErrorMessage != nil {
			envErrs = append(envErrs, Error{Stage: snapshotFilesStage, Locator: r.Path, Message: *r.ErrorMessage})
		}
	}
	appendSanitizedErrors(&out, envErrs)
	return out, nil
}

func init() { Register(snapshotFilesStage, snapshotFilesRunner) }
