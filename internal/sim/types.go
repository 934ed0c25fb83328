package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/pkpdsim/internal/dynamo"
)

// Bolus adds Amount to compartment Index instantaneously at Time.
type Bolus struct {
	Time   float64
	Index  int
	Amount float64
}

// Infusion feeds compartment Index at a constant Rate on [Start, End).
type Infusion struct {
	Start float64
	End   float64
	Index int
	Rate  float64
}

// Schedule is the dosing input of one run.
type Schedule struct {
	Boluses   []Bolus
	Infusions []Infusion
}

// Input returns the summed infusion rates active at t for a system of dim
// compartments, or nil when nothing is running.
func (s Schedule) Input(t float64, dim int) dynamo.Input {
	var u dynamo.Input
	for _, inf := range s.Infusions {
		if t >= inf.Start && t < inf.End {
			if u == nil {
				u = make(dynamo.Input, dim)
			}
			u[inf.Index] += inf.Rate
		}
	}
	return u
}

// breakpoints returns the sorted distinct event times in (0, end].
func (s Schedule) breakpoints(end float64) []float64 {
	seen := make(map[float64]bool)
	add := func(t float64) {
		if t > 0 && t <= end {
			seen[t] = true
		}
	}
	for _, b := range s.Boluses {
		add(b.Time)
	}
	for _, inf := range s.Infusions {
		add(inf.Start)
		add(inf.End)
	}
	add(end)

	out := make([]float64, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Float64s(out)
	return out
}

// applyBoluses adds every bolus scheduled exactly at t to x in place.
func (s Schedule) applyBoluses(x dynamo.State, t float64) {
	for _, b := range s.Boluses {
		if b.Time == t {
			x[b.Index] += b.Amount
		}
	}
}

// Validate checks event targets against a system of dim compartments.
func (s Schedule) Validate(dim int) error {
	for _, b := range s.Boluses {
		if b.Index < 0 || b.Index >= dim {
			return fmt.Errorf("bolus at t=%g targets compartment %d of %d", b.Time, b.Index, dim)
		}
		if b.Time < 0 || math.IsNaN(b.Time) {
			return fmt.Errorf("bolus time must be non-negative, got %g", b.Time)
		}
	}
	for _, inf := range s.Infusions {
		if inf.Index < 0 || inf.Index >= dim {
			return fmt.Errorf("infusion at t=%g targets compartment %d of %d", inf.Start, inf.Index, dim)
		}
		if inf.Start < 0 || !(inf.End > inf.Start) {
			return fmt.Errorf("infusion window [%g, %g) is invalid", inf.Start, inf.End)
		}
	}
	return nil
}

type Config struct {
	// Duration is the end of integration; LogTimes must lie in [0, Duration].
	Duration float64
	// LogTimes are the non-negative, strictly increasing sample times.
	LogTimes []float64

	Tolerance dynamo.Tolerance
	// Dt is the fixed step for non-adaptive integrators and the first trial
	// step for adaptive ones.
	Dt       float64
	MinDt    float64
	MaxDt    float64
	MaxSteps int
}

func DefaultConfig() Config {
	return Config{
		Tolerance: dynamo.DefaultTolerance(),
		Dt:        0.01,
		MinDt:     1e-12,
		MaxSteps:  1_000_000,
	}
}

type Result struct {
	Times      []float64
	States     []dynamo.State
	FinalState dynamo.State
	FinalTime  float64
	StepsTaken int
	Rejected   int
}
