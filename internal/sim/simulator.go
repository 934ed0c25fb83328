package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/pkpdsim/internal/dynamo"
)

type Simulator struct {
	integrator dynamo.Integrator
}

func New(integrator dynamo.Integrator) *Simulator {
	return &Simulator{integrator: integrator}
}

// Run integrates sys from t=0 to cfg.Duration starting at x0, applying the
// dosing schedule, and records the state at exactly cfg.LogTimes. Boluses
// due at a sample time are applied before that sample is recorded.
func (s *Simulator) Run(ctx context.Context, sys dynamo.System, x0 dynamo.State, sched Schedule, cfg Config) (*Result, error) {
	if err := s.validate(sys, x0, sched, cfg); err != nil {
		return nil, err
	}

	result := &Result{
		Times:  make([]float64, 0, len(cfg.LogTimes)),
		States: make([]dynamo.State, 0, len(cfg.LogTimes)),
	}

	x := x0.Clone()
	t := 0.0
	next := 0

	sched.applyBoluses(x, 0)
	record := func() {
		for next < len(cfg.LogTimes) && cfg.LogTimes[next] == t {
			result.Times = append(result.Times, t)
			result.States = append(result.States, x.Clone())
			next++
		}
	}
	record()

	dt := s.firstStep(cfg)
	for _, bp := range sched.breakpoints(cfg.Duration) {
		u := sched.Input(t, sys.StateDim())
		for t < bp {
			target := bp
			if next < len(cfg.LogTimes) && cfg.LogTimes[next] < bp {
				target = cfg.LogTimes[next]
			}

			var err error
			x, dt, err = s.advance(ctx, sys, x, u, t, target, dt, cfg, result)
			if err != nil {
				return nil, err
			}
			t = target
			if t == bp {
				sched.applyBoluses(x, t)
			}
			record()
		}
		if hasBolus(sched, bp) {
			dt = s.firstStep(cfg)
		}
	}

	if next != len(cfg.LogTimes) {
		return nil, fmt.Errorf("sample time %g was not reached", cfg.LogTimes[next])
	}

	result.FinalState = x
	result.FinalTime = t
	return result, nil
}

// advance integrates from t to target with input u held constant.
func (s *Simulator) advance(ctx context.Context, sys dynamo.System, x dynamo.State, u dynamo.Input, t, target, dt float64, cfg Config, result *Result) (dynamo.State, float64, error) {
	adaptive, isAdaptive := s.integrator.(dynamo.AdaptiveIntegrator)

	for t < target {
		select {
		case <-ctx.Done():
			return nil, dt, &dynamo.SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, ctx.Err())}
		default:
		}

		if cfg.MaxSteps > 0 && result.StepsTaken+result.Rejected >= cfg.MaxSteps {
			return nil, dt, &dynamo.SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: dynamo.ErrMaxSteps}
		}

		h := dt
		if cfg.MaxDt > 0 && h > cfg.MaxDt {
			h = cfg.MaxDt
		}
		last := false
		if t+h >= target {
			h = target - t
			last = true
		}
		if !last && h < cfg.MinDt {
			return nil, dt, &dynamo.SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: dynamo.ErrStepTooSmall}
		}

		var newX dynamo.State
		if isAdaptive {
			var ratio, suggested float64
			newX, suggested, ratio = adaptive.StepAdaptive(sys, x, u, t, h, cfg.Tolerance)
			if ratio > 1 {
				result.Rejected++
				if suggested < cfg.MinDt {
					return nil, dt, &dynamo.SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: dynamo.ErrStepTooSmall}
				}
				dt = suggested
				continue
			}
			// Keep the unclipped step size after a short final step.
			if !last || suggested > dt {
				dt = suggested
			}
		} else {
			newX = s.integrator.Step(sys, x, u, t, h)
		}

		if !newX.IsValid() {
			return nil, dt, &dynamo.SimulationError{Step: result.StepsTaken, Time: t + h, State: newX, Wrapped: dynamo.ErrInvalidState}
		}

		x = newX
		result.StepsTaken++
		if last {
			t = target
		} else {
			t += h
		}
	}

	return x, dt, nil
}

func (s *Simulator) firstStep(cfg Config) float64 {
	if cfg.Dt > 0 {
		return cfg.Dt
	}
	return math.Max(cfg.Duration/1000, 1e-6)
}

func (s *Simulator) validate(sys dynamo.System, x0 dynamo.State, sched Schedule, cfg Config) error {
	if len(x0) != sys.StateDim() {
		return fmt.Errorf("%w: state has %d entries, system expects %d", dynamo.ErrDimensionMismatch, len(x0), sys.StateDim())
	}
	if !x0.IsValid() {
		return dynamo.ErrInvalidState
	}
	if !(cfg.Duration > 0) {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Dt < 0 {
		return fmt.Errorf("dt must not be negative, got %f", cfg.Dt)
	}
	if _, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
		if err := cfg.Tolerance.Validate(); err != nil {
			return err
		}
	} else if cfg.Dt <= 0 {
		return fmt.Errorf("fixed-step integration needs a positive dt")
	}
	if err := ValidateTimes(cfg.LogTimes); err != nil {
		return err
	}
	if n := len(cfg.LogTimes); n > 0 && cfg.LogTimes[n-1] > cfg.Duration {
		return fmt.Errorf("last sample time %g is beyond duration %g", cfg.LogTimes[n-1], cfg.Duration)
	}
	return sched.Validate(sys.StateDim())
}

// ValidateTimes checks that times are finite, non-negative and strictly increasing.
func ValidateTimes(times []float64) error {
	for i, tm := range times {
		if math.IsNaN(tm) || math.IsInf(tm, 0) || tm < 0 {
			return fmt.Errorf("time %d (%g) must be finite and non-negative", i, tm)
		}
		if i > 0 && tm <= times[i-1] {
			return fmt.Errorf("times must be strictly increasing: times[%d]=%g after %g", i, tm, times[i-1])
		}
	}
	return nil
}

func hasBolus(sched Schedule, t float64) bool {
	for _, b := range sched.Boluses {
		if b.Time == t {
			return true
		}
	}
	return false
}
