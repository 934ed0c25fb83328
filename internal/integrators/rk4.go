package integrators

// RK4 is the classical fourth-order Runge-Kutta method with a fixed step.
type RK4 struct {
	explicitRK
}

var rk4Tableau = tableau{
	nodes: []float64{0, 0.5, 0.5, 1},
	a: [][]float64{
		{},
		{0.5},
		{0, 0.5},
		{0, 0, 1},
	},
	weights: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
}

func NewRK4() *RK4 {
	return &RK4{explicitRK{tab: rk4Tableau}}
}
