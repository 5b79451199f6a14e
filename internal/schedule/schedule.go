// Package schedule re-runs a job on a cron schedule and exposes its state
// over HTTP.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/function61/gokit/logex"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse validates a cron expression or descriptor such as "@every 1h".
func Parse(spec string) (cron.Schedule, error) {
	s, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.spec %q: %w", spec, err)
	}
	return s, nil
}

type JobFn func(ctx context.Context, logger *log.Logger) error

type LastRun struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Error    string    `json:"error,omitempty"`
}

// Status is a copy of the runner state.
type Status struct {
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"nextRun"`
	Running bool      `json:"running"`
	Runs    int       `json:"runs"`
	Failed  int       `json:"failed"`
	LastRun *LastRun  `json:"lastRun,omitempty"`
}

// Runner executes one job at each activation of its schedule. Runs never
// overlap: an activation that falls inside a run is skipped.
type Runner struct {
	schedule cron.Schedule
	job      JobFn
	logger   *log.Logger
	logl     *logex.Leveled

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	status Status
}

func New(spec string, job JobFn, logger *log.Logger) (*Runner, error) {
	s, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	logger = logex.NonNil(logger)
	return &Runner{
		schedule: s,
		job:      job,
		logger:   logger,
		logl:     logex.Levels(logger),
		now:      time.Now,
		after:    time.After,
		status:   Status{Spec: spec},
	}, nil
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	if st.LastRun != nil {
		lr := *st.LastRun
		st.LastRun = &lr
	}
	return st
}

// Run blocks until ctx is cancelled. When immediate is set the job runs
// once before waiting for the first activation.
func (r *Runner) Run(ctx context.Context, immediate bool) error {
	if immediate {
		r.RunOnce(ctx)
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		next := r.schedule.Next(r.now())
		r.mu.Lock()
		r.status.NextRun = next
		r.mu.Unlock()
		r.logl.Debug.Printf("next run at %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return nil
		case <-r.after(time.Until(next)):
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs the job now and records its outcome.
func (r *Runner) RunOnce(ctx context.Context) {
	r.mu.Lock()
	if r.status.Running {
		r.mu.Unlock()
		r.logl.Error.Println("can't start job since previous instance is still running")
		return
	}
	r.status.Running = true
	r.mu.Unlock()

	started := r.now()
	r.logl.Info.Println("starting")
	errorStr := ""
	if err := r.job(ctx, r.logger); err != nil {
		errorStr = err.Error()
	}
	finished := r.now()
	if errorStr != "" {
		r.logl.Error.Printf("in %s: %s", finished.Sub(started), errorStr)
	} else {
		r.logl.Info.Printf("completed in %s", finished.Sub(started))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Running = false
	r.status.Runs++
	if errorStr != "" {
		r.status.Failed++
	}
	r.status.LastRun = &LastRun{Started: started, Finished: finished, Error: errorStr}
}
