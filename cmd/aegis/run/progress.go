package run

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/flarebyte/aegis/internal/stage"
)

type progressReporter struct {
	enabled  bool
	interval time.Duration
	w        io.Writer

	mu        sync.Mutex
	stageName string
	processed int
	total     int
	errors    int
}

func newProgressReporter(ui *stage.UIMeta, w io.Writer) *progressReporter {
	if ui == nil || !ui.Progress {
		return &progressReporter{enabled: false}
	}
	interval := ui.ProgressIntervalMs
	if interval <= 0 {
		interval = 500
	}
	return &progressReporter{
		enabled:  true,
		interval: time.Duration(interval) * time.Millisecond,
		w:        w,
	}
}

func (p *progressReporter) runStage(ctx context.Context, name string, in stage.Envelope, deps stage.Deps) (stage.Envelope, error) {
	if p == nil || !p.enabled {
		return stage.Run(ctx, name, in, deps)
	}

	p.setSnapshot(name, len(in.Records), 0, len(in.Errors))
	p.emit()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				p.emit()
			case <-done:
				return
			}
		}
	}()

	deps.Progress = p.observe
	out, err := stage.Run(ctx, name, in, deps)
	close(done)
	if err == nil {
		p.setSnapshot(name, len(out.Records), 0, len(out.Errors))
		p.emit()
	}
	return out, err
}

// observe receives per-file hashing progress from snapshot-files.
func (p *progressReporter) observe(completed, total int) {
	p.mu.Lock()
	p.processed = completed
	p.total = total
	p.mu.Unlock()
}

func (p *progressReporter) setSnapshot(stageName string, processed, total, errs int) {
	p.mu.Lock()
	p.stageName = stageName
	p.processed = processed
	p.total = total
	p.errors = errs
	p.mu.Unlock()
}

func (p *progressReporter) emit() {
	if p == nil || !p.enabled || p.w == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		_, _ = fmt.Fprintf(p.w, "progress stage=%s processed=%d total=%d errors=%d\n", p.stageName, p.processed, p.total, p.errors)
		return
	}
	_, _ = fmt.Fprintf(p.w, "progress stage=%s processed=%d errors=%d\n", p.stageName, p.processed, p.errors)
}
