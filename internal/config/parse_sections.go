package config

import "cuelang.org/go/cue"

func parseRootsSection(v cue.Value, cfg *Config) error {
	has, err := lookupStringList(v, "roots", &cfg.Roots)
	if err != nil {
		return err
	}
	if !has {
		return errMissing("roots")
	}
	_, err = lookupStringList(v, "exclude", &cfg.Exclude)
	return err
}

// parseDiscoverySection extracts optional discovery.* fields.
func parseDiscoverySection(v cue.Value, cfg *Config) error {
	if _, err := lookupBool(v, "discovery.followSymlinks", &cfg.Discovery.FollowSymlinks); err != nil {
		return err
	}
	if _, err := lookupInt(v, "discovery.minSize", &cfg.Discovery.MinSize); err != nil {
		return err
	}
	_, err := lookupBool(v, "discovery.respectGitignore", &cfg.Discovery.RespectGitignore)
	return err
}

// parseFilterSection extracts optional filter.inline.
func parseFilterSection(v cue.Value, cfg *Config) error {
	has, err := lookupString(v, "filter.inline", &cfg.Filter.Inline)
	if err != nil {
		return err
	}
	cfg.Filter.HasInline = has && cfg.Filter.Inline != ""
	_, err = lookupInt(v, "filter.timeoutMs", &cfg.Filter.TimeoutMs)
	return err
}

func parseHashSection(v cue.Value, cfg *Config) error {
	_, err := lookupString(v, "hash.algorithm", &cfg.Hash.Algorithm)
	return err
}

// parseWorkersSection extracts optional workers count.
func parseWorkersSection(v cue.Value, cfg *Config) error {
	has, err := lookupInt(v, "workers", &cfg.Workers.Count)
	cfg.Workers.HasCount = has
	return err
}

func parseBaselineSection(v cue.Value, cfg *Config) error {
	if _, err := lookupString(v, "baseline.path", &cfg.Baseline.Path); err != nil {
		return err
	}
	_, err := lookupString(v, "baseline.format", &cfg.Baseline.Format)
	return err
}

func parseCheckSection(v cue.Value, cfg *Config) error {
	if _, err := lookupBool(v, "check.updateBaseline", &cfg.Check.UpdateBaseline); err != nil {
		return err
	}
	if _, err := lookupBool(v, "check.failOnChange", &cfg.Check.FailOnChange); err != nil {
		return err
	}
	_, err := lookupBool(v, "check.metadataDrift", &cfg.Check.MetadataDrift)
	return err
}

// parseOutputSection extracts optional output.* fields.
func parseOutputSection(v cue.Value, cfg *Config) error {
	if _, err := lookupString(v, "output.out", &cfg.Output.Out); err != nil {
		return err
	}
	if _, err := lookupString(v, "output.format", &cfg.Output.Format); err != nil {
		return err
	}
	_, err := lookupBool(v, "output.pretty", &cfg.Output.Pretty)
	return err
}

// parseErrorsSection extracts optional errors.mode.
func parseErrorsSection(v cue.Value, cfg *Config) error {
	_, err := lookupString(v, "errors.mode", &cfg.Errors.Mode)
	return err
}

func parseHistorySection(v cue.Value, cfg *Config) error {
	_, err := lookupString(v, "history.dsn", &cfg.History.DSN)
	return err
}

func parseMetricsSection(v cue.Value, cfg *Config) error {
	_, err := lookupString(v, "metrics.textfile", &cfg.Metrics.Textfile)
	return err
}

func parseScheduleSection(v cue.Value, cfg *Config) error {
	_, err := lookupString(v, "schedule.spec", &cfg.Schedule.Spec)
	return err
}

func parseUISection(v cue.Value, cfg *Config) error {
	if _, err := lookupBool(v, "ui.progress", &cfg.UI.Progress); err != nil {
		return err
	}
	_, err := lookupInt(v, "ui.progressIntervalMs", &cfg.UI.ProgressIntervalMs)
	return err
}
