package stage

import (
	"context"
	"path/filepath"

	"github.com/flarebyte/aegis/internal/config"
)

// ValidateConfig is the stage implementation for "validate-config". It loads
// meta.configPath unless the envelope already carries a parsed config, then
// applies environment and command line overrides.
func ValidateConfig(ctx context.Context, in Envelope, deps Deps) (Envelope, error) {
	out := in
	meta := ensureMeta(&out)
	var cfg config.Config
	if in.Config != nil {
		cfg = *in.Config
	} else {
		if meta.ConfigPath == "" {
			return Envelope{}, ErrMissingConfigPath{}
		}
		loaded, err := config.Load(meta.ConfigPath)
		if err != nil {
			return Envelope{}, err
		}
		if err := loaded.ApplyEnv(meta.EnvFile); err != nil {
			return Envelope{}, err
		}
		cfg = loaded
	}
	if err := applyOverrides(&cfg, meta.Overrides); err != nil {
		return Envelope{}, err
	}

	out.Config = &cfg
	action := in.Action()
	meta.Config = &ConfigMeta{ConfigVersion: cfg.ConfigVersion, Action: action}
	meta.Errors = &ErrorsMeta{Mode: cfg.Errors.Mode}
	meta.Check = &CheckMeta{
		UpdateBaseline: cfg.Check.UpdateBaseline,
		FailOnChange:   cfg.Check.FailOnChange,
		MetadataDrift:  cfg.Check.MetadataDrift,
	}
	meta.Output = &OutputMeta{Out: cfg.Output.Out, Format: cfg.Output.Format, Pretty: cfg.Output.Pretty}
	meta.UI = &UIMeta{Progress: cfg.UI.Progress, ProgressIntervalMs: cfg.UI.ProgressIntervalMs}
	if meta.Run == nil {
		meta.Run = &RunMeta{StartedAt: deps.now().UTC()}
	}
	// Do not persist configPath in output
	meta.ConfigPath = ""
	return out, nil
}

func applyOverrides(cfg *config.Config, o *Overrides) error {
	if o == nil {
		return nil
	}
	if o.Baseline != "" {
		abs, err := filepath.Abs(o.Baseline)
		if err != nil {
			return err
		}
		cfg.Baseline.Path = abs
	}
	if o.Update {
		cfg.Check.UpdateBaseline = true
	}
	if o.FailOnChange {
		cfg.Check.FailOnChange = true
	}
	return cfg.Validate()
}

func init() { Register("validate-config", ValidateConfig) }
