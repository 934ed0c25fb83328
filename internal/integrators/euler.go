package integrators

// Euler is the first-order forward method. It is only accurate for dt well
// below the fastest elimination half-life and is kept for quick checks.
type Euler struct {
	explicitRK
}

var eulerTableau = tableau{
	nodes:   []float64{0},
	a:       [][]float64{{}},
	weights: []float64{1},
}

func NewEuler() *Euler {
	return &Euler{explicitRK{tab: eulerTableau}}
}
