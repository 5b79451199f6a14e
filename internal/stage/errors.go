package stage

import (
	"errors"
	"sort"
	"strings"

	"github.com/flarebyte/aegis/internal/config"
)

var (
	// ErrAlgorithmMismatch is returned when the baseline was hashed with a
	// different algorithm than the one configured.
	ErrAlgorithmMismatch = errors.New("hash algorithm mismatch")
	errNoConfig          = errors.New("validate-config must run first")
	errNoDiscovery       = errors.New("discover-files must run first")
	errNoSnapshot        = errors.New("snapshot-files must run first")
)

type ErrMissingConfigPath struct{}

func (ErrMissingConfigPath) Error() string { return "missing required meta.configPath" }

func failFast(cfg *config.Config) bool {
	return cfg != nil && cfg.Errors.Mode == "fail-fast"
}

func sanitizeErrorMessage(msg string) string {
	s := strings.Join(strings.Fields(msg), " ")
	if s == "" {
		return "error"
	}
	return s
}

func appendSanitizedErrors(out *Envelope, envErrs []Error) {
	if len(envErrs) == 0 {
		return
	}
	for _, e := range envErrs {
		e.Message = sanitizeErrorMessage(e.Message)
		out.Errors = append(out.Errors, e)
	}
	SortEnvelopeErrors(out)
}

// SortEnvelopeErrors orders errors by stage, locator and message.
func SortEnvelopeErrors(env *Envelope) {
	if env == nil || len(env.Errors) == 0 {
		return
	}
	sort.Slice(env.Errors, func(i, j int) bool {
		ei, ej := env.Errors[i], env.Errors[j]
		if ei.Stage != ej.Stage {
			return ei.Stage < ej.Stage
		}
		if ei.Locator != ej.Locator {
			return ei.Locator < ej.Locator
		}
		return ei.Message < ej.Message
	})
}
