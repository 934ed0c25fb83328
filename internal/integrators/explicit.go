package integrators

import "github.com/san-kum/pkpdsim/internal/dynamo"

// tableau is the Butcher tableau of an explicit Runge-Kutta method: stage i
// is evaluated at t + nodes[i]*dt from x + dt*sum_j a[i][j]*k_j.
type tableau struct {
	nodes   []float64
	a       [][]float64
	weights []float64
}

// explicitRK steps any explicit tableau with a fixed dt. Stage buffers are
// reused between steps, so a value must not be shared between goroutines.
type explicitRK struct {
	tab   tableau
	k     []dynamo.State
	stage dynamo.State
}

func (e *explicitRK) buffers(n int) {
	if len(e.stage) == n && len(e.k) == len(e.tab.weights) {
		return
	}
	e.k = make([]dynamo.State, len(e.tab.weights))
	for i := range e.k {
		e.k[i] = make(dynamo.State, n)
	}
	e.stage = make(dynamo.State, n)
}

func (e *explicitRK) Step(sys dynamo.System, x dynamo.State, u dynamo.Input, t, dt float64) dynamo.State {
	n := len(x)
	e.buffers(n)

	for s := range e.tab.weights {
		combine(e.stage, x, dt, e.tab.a[s], e.k[:s])
		copy(e.k[s], sys.Derive(e.stage, u, t+e.tab.nodes[s]*dt))
	}

	result := make(dynamo.State, n)
	combine(result, x, dt, e.tab.weights, e.k)
	return result
}

// combine writes x + dt*sum_j w[j]*k[j] into dst.
func combine(dst, x dynamo.State, dt float64, w []float64, k []dynamo.State) {
	for i := range dst {
		sum := 0.0
		for j, kj := range k {
			if w[j] != 0 {
				sum += w[j] * kj[i]
			}
		}
		dst[i] = x[i] + dt*sum
	}
}
