package integrators

import (
	"testing"

	"github.com/san-kum/pkpdsim/internal/dynamo"
)

// benchChain is a linear chain of compartments draining into each other.
type benchChain struct {
	n int
}

func (b *benchChain) StateDim() int { return b.n }

func (b *benchChain) Derive(x dynamo.State, u dynamo.Input, t float64) dynamo.State {
	dx := make(dynamo.State, b.n)
	for i := 0; i < b.n; i++ {
		out := 0.3 * x[i]
		dx[i] -= out
		if i+1 < b.n {
			dx[i+1] += out
		}
	}
	return dx
}

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	sys := &benchChain{n: 3}
	x := dynamo.State{1.0, 0.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(sys, x, nil, 0, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	sys := &benchChain{n: 3}
	x := dynamo.State{1.0, 0.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(sys, x, nil, 0, 0.01)
	}
}

func BenchmarkRK45(b *testing.B) {
	integrator := NewRK45()
	sys := &benchChain{n: 3}
	x := dynamo.State{1.0, 0.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(sys, x, nil, 0, 0.01)
	}
}

func BenchmarkRK45_Chain20(b *testing.B) {
	integrator := NewRK45()
	sys := &benchChain{n: 20}
	x := make(dynamo.State, 20)
	x[0] = 100

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(sys, x, nil, 0, 0.001)
	}
}
