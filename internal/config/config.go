// Package config holds solver and calibration settings loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/pkpdsim/internal/dynamo"
	"github.com/san-kum/pkpdsim/internal/integrators"
	"github.com/san-kum/pkpdsim/internal/model"
	"github.com/san-kum/pkpdsim/internal/optim"
)

const (
	DefaultIntegrator     = "rk45"
	DefaultAbsTol         = 1e-10
	DefaultRelTol         = 1e-8
	DefaultDt             = 0.01
	DefaultMaxSteps       = 1_000_000
	DefaultOptimiser      = "cmaes"
	DefaultObjective      = "sum-of-squares"
	DefaultMaxEvaluations = 20000
	DefaultMaxUnchanged   = 200
	DefaultThreshold      = 1e-11
	DefaultRunsDir        = "runs"
	DefaultLogLevel       = "info"
)

type Config struct {
	Integrator string          `yaml:"integrator"`
	Tolerance  ToleranceConfig `yaml:"tolerance"`
	Dt         float64         `yaml:"dt"`
	MaxDt      float64         `yaml:"max_dt"`
	MaxSteps   int             `yaml:"max_steps"`
	Workers    int             `yaml:"workers"`
	Fit        FitConfig       `yaml:"fit"`
	RunsDir    string          `yaml:"runs_dir"`
	Log        LogConfig       `yaml:"log"`
}

type ToleranceConfig struct {
	Abs float64 `yaml:"abs"`
	Rel float64 `yaml:"rel"`
}

// FitConfig sets the calibration defaults. The search stops after
// MaxUnchangedIterations iterations that improve the best score by no more
// than Threshold; zero values leave the optimiser's own defaults in place.
type FitConfig struct {
	Optimiser              string  `yaml:"optimiser"`
	Objective              string  `yaml:"objective"`
	MaxEvaluations         int     `yaml:"max_evaluations"`
	MaxUnchangedIterations int     `yaml:"max_unchanged_iterations"`
	Threshold              float64 `yaml:"threshold"`
	Seed                   int64   `yaml:"seed"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Integrator: DefaultIntegrator,
		Tolerance:  ToleranceConfig{Abs: DefaultAbsTol, Rel: DefaultRelTol},
		Dt:         DefaultDt,
		MaxSteps:   DefaultMaxSteps,
		Fit: FitConfig{
			Optimiser:              DefaultOptimiser,
			Objective:              DefaultObjective,
			MaxEvaluations:         DefaultMaxEvaluations,
			MaxUnchangedIterations: DefaultMaxUnchanged,
			Threshold:              DefaultThreshold,
		},
		RunsDir: DefaultRunsDir,
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := integrators.New(c.Integrator); err != nil {
		return err
	}
	if c.Integrator == "rk45" {
		if err := c.tolerance().Validate(); err != nil {
			return err
		}
	} else if c.Dt <= 0 {
		return fmt.Errorf("integrator %s needs a positive dt", c.Integrator)
	}
	if c.Dt < 0 || c.MaxDt < 0 {
		return fmt.Errorf("step sizes must not be negative")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative")
	}
	if _, err := optim.New(c.Fit.Optimiser); err != nil {
		return err
	}
	if c.Fit.MaxEvaluations < 0 || c.Fit.MaxUnchangedIterations < 0 {
		return fmt.Errorf("fit budgets must not be negative")
	}
	if c.Fit.Threshold < 0 {
		return fmt.Errorf("fit threshold must not be negative, got %g", c.Fit.Threshold)
	}
	switch c.Fit.Objective {
	case "sum-of-squares", "mean-squared", "root-mean-squared":
	default:
		return fmt.Errorf("unsupported objective %q", c.Fit.Objective)
	}
	return nil
}

func (c *Config) tolerance() dynamo.Tolerance {
	return dynamo.Tolerance{Abs: c.Tolerance.Abs, Rel: c.Tolerance.Rel}
}

// ModelOptions translates the solver settings into model options.
func (c *Config) ModelOptions() []model.Option {
	opts := []model.Option{
		model.WithIntegrator(c.Integrator),
		model.WithTolerance(c.tolerance()),
		model.WithMaxSteps(c.MaxSteps),
	}
	if c.Dt > 0 {
		opts = append(opts, model.WithStep(c.Dt))
	}
	if c.MaxDt > 0 {
		opts = append(opts, model.WithMaxStep(c.MaxDt))
	}
	if c.Workers > 0 {
		opts = append(opts, model.WithWorkers(c.Workers))
	}
	return opts
}
