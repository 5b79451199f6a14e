package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/flarebyte/aegis/internal/config"
	"github.com/flarebyte/aegis/internal/discovery"
	"github.com/flarebyte/aegis/internal/luafilter"
	"github.com/flarebyte/aegis/internal/snapshot"
	"github.com/function61/gokit/logex"
)

const discoverFilesStage = "discover-files"

func newEngine(cfg *config.Config, deps Deps, filter func(discovery.Candidate) bool, onSkip func(string, error)) *snapshot.Engine {
	workers := 0
	if cfg.Workers.HasCount {
		workers = int(cfg.Workers.Count)
	}
	return snapshot.NewEngine(snapshot.Config{
		Algorithm:        cfg.Hash.Algorithm,
		Workers:          workers,
		FollowSymlinks:   cfg.Discovery.FollowSymlinks,
		Exclude:          cfg.Exclude,
		MinSize:          cfg.Discovery.MinSize,
		RespectGitignore: cfg.Discovery.RespectGitignore,
		Filter:           filter,
		Progress:         deps.Progress,
		OnSkip:           onSkip,
		FailFast:         failFast(cfg),
		Skip:             cfg.Artefacts(),
	})
}

// discoverFilesRunner resolves the roots and lists the candidate files. The
// optional Lua filter runs here, on the discovery goroutine.
func discoverFilesRunner(ctx context.Context, in Envelope, deps Deps) (Envelope, error) {
	cfg := in.Config
	if cfg == nil {
		return Envelope{}, errNoConfig
	}
	logl := logex.Levels(logex.NonNil(deps.Logger))

	var envErrs []Error
	var firstErr error
	skipped, filtered := 0, 0
	onSkip := func(path string, err error) {
		skipped++
		envE := Error{Stage: discoverFilesStage, Locator: path, Message: err.Error()}
		var fatal error
		if failFast(cfg) {
			fatal = fmt.Errorf("%s: %s: %w", discoverFilesStage, path, err)
		}
		accumulateStageError(&envErrs, &firstErr, &envE, fatal)
	}

	var filter func(discovery.Candidate) bool
	if cfg.Filter.HasInline {
		opts := []luafilter.Option{luafilter.WithErrorHandler(func(path string, err error) {
			envE := Error{Stage: discoverFilesStage, Locator: path, Message: "filter: " + err.Error()}
			accumulateStageError(&envErrs, &firstErr, &envE, nil)
		})}
		if cfg.Filter.TimeoutMs > 0 {
			opts = append(opts, luafilter.WithTimeout(time.Duration(cfg.Filter.TimeoutMs)*time.Millisecond))
		}
		f, err := luafilter.Compile(cfg.Filter.Inline, opts...)
		if err != nil {
			return Envelope{}, fmt.Errorf("invalid filter.inline: %w", err)
		}
		defer f.Close()
		filter = func(c discovery.Candidate) bool {
			ok := f.Allow(c)
			if !ok {
				filtered++
			}
			return ok
		}
	}

	resolved, cands, err := newEngine(cfg, deps, filter, onSkip).Discover(ctx, cfg.Roots)
	if err != nil {
		return Envelope{}, err
	}
	if firstErr != nil {
		return Envelope{}, firstErr
	}
	if cands == nil {
		cands = []discovery.Candidate{}
	}
	logl.Debug.Printf("%d candidates under %d roots (%d filtered, %d skipped)", len(cands), len(resolved), filtered, skipped)

	out := in
	out.Roots = resolved
	out.Candidates = cands
	ensureMeta(&out).Discovery = &DiscoveryMeta{
		Roots:      resolved,
		Candidates: len(cands),
		Filtered:   filtered,
		Skipped:    skipped,
	}
	appendSanitizedErrors(&out, envErrs)
	return out, nil
}

func accumulateStageError(envErrs *[]Error, firstErr *error, envE *Error, fatal error) {
	if envE != nil {
		*envErrs = append(*envErrs, *envE)
	}
	if fatal != nil && *firstErr == nil {
		*firstErr = fatal
	}
}

func init() { Register(discoverFilesStage, discoverFilesRunner) }
