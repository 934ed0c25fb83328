package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/pkpdsim/internal/dynamo"
)

// firstOrderElimination is dA/dt = -k*A + u.
type firstOrderElimination struct {
	k float64
}

func (f *firstOrderElimination) Derive(x dynamo.State, u dynamo.Input, t float64) dynamo.State {
	return dynamo.State{-f.k*x[0] + u.At(0)}
}

func (f *firstOrderElimination) StateDim() int { return 1 }

// transfer moves drug from a depot into a central compartment at rate ka.
type transfer struct {
	ka float64
}

func (tr *transfer) Derive(x dynamo.State, u dynamo.Input, t float64) dynamo.State {
	flow := tr.ka * x[0]
	return dynamo.State{-flow, flow}
}

func (tr *transfer) StateDim() int { return 2 }

func TestRK4Transfer(t *testing.T) {
	sys := &transfer{ka: 1.2}
	integ := NewRK4()

	x := dynamo.State{100, 0}
	dt := 0.01
	steps := 250
	for i := 0; i < steps; i++ {
		x = integ.Step(sys, x, nil, float64(i)*dt, dt)
	}

	depot := 100 * math.Exp(-1.2*float64(steps)*dt)
	if math.Abs(x[0]-depot) > 1e-6 {
		t.Errorf("depot: got %.8f, expected %.8f", x[0], depot)
	}
	if math.Abs(x[0]+x[1]-100) > 1e-9 {
		t.Errorf("total amount drifted to %.12f", x[0]+x[1])
	}
}

func TestEulerFirstOrder(t *testing.T) {
	sys := &firstOrderElimination{k: 1}
	errAt := func(dt float64) float64 {
		integ := NewEuler()
		x := dynamo.State{1}
		steps := int(math.Round(1 / dt))
		for i := 0; i < steps; i++ {
			x = integ.Step(sys, x, nil, float64(i)*dt, dt)
		}
		return math.Abs(x[0] - math.Exp(-1))
	}

	ratio := errAt(0.01) / errAt(0.005)
	if math.Abs(ratio-2) > 0.05 {
		t.Errorf("halving dt should halve the error, ratio %.4f", ratio)
	}
}

func TestTableausAreConsistent(t *testing.T) {
	for name, tab := range map[string]tableau{"euler": eulerTableau, "rk4": rk4Tableau} {
		sum := 0.0
		for _, w := range tab.weights {
			sum += w
		}
		if math.Abs(sum-1) > 1e-15 {
			t.Errorf("%s: weights sum to %g", name, sum)
		}
		for i, row := range tab.a {
			rowSum := 0.0
			for _, v := range row {
				rowSum += v
			}
			if len(row) != i || math.Abs(rowSum-tab.nodes[i]) > 1e-15 {
				t.Errorf("%s: stage %d row %v does not match node %g", name, i, row, tab.nodes[i])
			}
		}
	}
}

func TestRK4ExponentialDecay(t *testing.T) {
	sys := &firstOrderElimination{k: 0.5}
	integ := NewRK4()

	x := dynamo.State{10.0}
	dt := 0.01
	for i := 0; i < 400; i++ {
		x = integ.Step(sys, x, nil, float64(i)*dt, dt)
	}

	expected := 10.0 * math.Exp(-0.5*4.0)
	if math.Abs(x[0]-expected) > 1e-8 {
		t.Errorf("expected %.10f, got %.10f", expected, x[0])
	}
}

func TestEulerConstantInput(t *testing.T) {
	sys := &firstOrderElimination{k: 0}
	integ := NewEuler()

	x := dynamo.State{0}
	for i := 0; i < 10; i++ {
		x = integ.Step(sys, x, dynamo.Input{2.0}, float64(i)*0.1, 0.1)
	}

	if math.Abs(x[0]-2.0) > 1e-12 {
		t.Errorf("expected 2.0 after 1 time unit at rate 2, got %f", x[0])
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		integ, err := New(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if integ == nil {
			t.Fatalf("%s: nil integrator", name)
		}
	}

	if _, err := New("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
