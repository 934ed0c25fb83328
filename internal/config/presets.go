package config

import "sort"

// Presets trade accuracy for speed. Fit settings other than the budget are
// left at their defaults.
var Presets = map[string]*Config{
	"fast": {
		Integrator: "rk45", Tolerance: ToleranceConfig{Abs: 1e-6, Rel: 1e-4}, Dt: 0.1, MaxSteps: 100_000,
		Fit: FitConfig{Optimiser: "nelder-mead", Objective: DefaultObjective, MaxEvaluations: 2000, MaxUnchangedIterations: 50, Threshold: 1e-8},
	},
	"default": {
		Integrator: DefaultIntegrator, Tolerance: ToleranceConfig{Abs: DefaultAbsTol, Rel: DefaultRelTol}, Dt: DefaultDt, MaxSteps: DefaultMaxSteps,
		Fit: FitConfig{Optimiser: DefaultOptimiser, Objective: DefaultObjective, MaxEvaluations: DefaultMaxEvaluations, MaxUnchangedIterations: DefaultMaxUnchanged, Threshold: DefaultThreshold},
	},
	"accurate": {
		Integrator: "rk45", Tolerance: ToleranceConfig{Abs: 1e-12, Rel: 1e-10}, Dt: 0.001, MaxSteps: 10_000_000,
		Fit: FitConfig{Optimiser: "cmaes", Objective: DefaultObjective, MaxEvaluations: 100_000, MaxUnchangedIterations: 500, Threshold: 1e-14},
	},
	"fixed": {
		Integrator: "rk4", Dt: 0.001, MaxSteps: 10_000_000,
		Fit: FitConfig{Optimiser: DefaultOptimiser, Objective: DefaultObjective, MaxEvaluations: DefaultMaxEvaluations, MaxUnchangedIterations: DefaultMaxUnchanged, Threshold: DefaultThreshold},
	},
}

// GetPreset returns a copy of the named preset with runs and logging
// settings taken from the defaults, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := *p
	def := DefaultConfig()
	cfg.RunsDir = def.RunsDir
	cfg.Log = def.Log
	return &cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
