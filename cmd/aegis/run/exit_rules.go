package run

import (
	"github.com/flarebyte/aegis/internal/record"
	"github.com/flarebyte/aegis/internal/stage"
)

const (
	exitCodeSuccess = 0
	exitCodeExecErr = 1
	exitCodeDrift   = 2
)

type runExitError struct {
	code int
	msg  string
}

func (e runExitError) Error() string { return e.msg }
func (e runExitError) ExitCode() int { return e.code }

func keepGoingMode(meta *stage.Meta) bool {
	return meta != nil && meta.Errors != nil && meta.Errors.Mode == "keep-going"
}

func countRecordResults(records []record.Record) (successes int, failures int) {
	for _, r := range records {
		if r.Kind == record.KindError {
			failures++
		} else {
			successes++
		}
	}
	return
}

func driftDetectionEnabled(meta *stage.Meta) bool {
	return meta != nil && meta.Check != nil && meta.Check.FailOnChange
}

func hasDiffChanges(env stage.Envelope) bool {
	return env.Meta != nil && env.Meta.Diff != nil && env.Meta.Diff.Changed()
}

// evaluateRunExit maps a finished envelope to the process exit status:
// drift with failOnChange exits 2; a keep-going run in which every record
// failed exits 1. A first run without baseline is a success.
func evaluateRunExit(env stage.Envelope) error {
	if driftDetectionEnabled(env.Meta) && env.Action() == stage.ActionCheck {
		if env.Meta.Run != nil && env.Meta.Run.FirstRun {
			return nil
		}
		if hasDiffChanges(env) {
			return runExitError{code: exitCodeDrift, msg: "drift detected"}
		}
	}

	if !keepGoingMode(env.Meta) {
		return nil
	}
	successes, failures := countRecordResults(env.Records)
	if failures == 0 || successes > 0 {
		return nil
	}
	return runExitError{code: exitCodeExecErr, msg: "keep-going: no successful records"}
}
