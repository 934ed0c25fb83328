package dynamo

import (
	"fmt"
	"math"
)

// State holds compartment amounts in declaration order.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Input is the zero-order input rate into each compartment (amount per unit
// time), e.g. from running infusions. A nil Input means no input.
type Input []float64

// At returns the input rate for compartment i.
func (u Input) At(i int) float64 {
	if i < len(u) {
		return u[i]
	}
	return 0
}

type System interface {
	Derive(x State, u Input, t float64) State
	StateDim() int
}

type Integrator interface {
	Step(sys System, x State, u Input, t float64, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, u Input, t, dt float64, tol Tolerance) (State, float64, float64)
}

// Tolerance bounds the local error of an adaptive step per component:
// |err_i| <= Abs + Rel*max(|x_i|, |x'_i|).
type Tolerance struct {
	Abs float64
	Rel float64
}

func DefaultTolerance() Tolerance {
	return Tolerance{Abs: 1e-10, Rel: 1e-8}
}

func (t Tolerance) Validate() error {
	if t.Abs <= 0 && t.Rel <= 0 {
		return fmt.Errorf("tolerance must have a positive absolute or relative bound, got abs=%g rel=%g", t.Abs, t.Rel)
	}
	if t.Abs < 0 || t.Rel < 0 {
		return fmt.Errorf("tolerance bounds must not be negative, got abs=%g rel=%g", t.Abs, t.Rel)
	}
	return nil
}
