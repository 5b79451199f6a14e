package stage

import (
	"context"
	"log"
	"time"

	"github.com/flarebyte/aegis/internal/metrics"
)

// Deps are the collaborators a stage may use. Zero values are valid.
type Deps struct {
	Logger *log.Logger
	// Progress receives hashing progress from snapshot-files.
	Progress func(completed, total int)
	// Metrics is shared across runs by the scheduler; a fresh set is used
	// when nil.
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Runner executes a stage.
type Runner func(ctx context.Context, in Envelope, deps Deps) (Envelope, error)

var registry = map[string]Runner{}

// Register adds a stage runner.
func Register(name string, r Runner) {
	registry[name] = r
}

// Run executes a registered stage by name.
func Run(ctx context.Context, name string, in Envelope, deps Deps) (Envelope, error) {
	r, ok := registry[name]
	if !ok {
		return Envelope{}, ErrUnknown{name: name}
	}
	out, err := r(ctx, in, deps)
	if err != nil {
		return Envelope{}, err
	}
	ensureMeta(&out).Stage = name
	return out, nil
}

// Names lists the registered stages.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

// ErrUnknown is returned when a stage is not found.
type ErrUnknown struct{ name string }

func (e ErrUnknown) Error() string { return "unknown stage: " + e.name }
