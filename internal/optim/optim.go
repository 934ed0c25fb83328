// Package optim minimises black-box objective functions.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrNoDimensions  = errors.New("optim: problem has no dimensions")
	ErrInvalidBounds = errors.New("optim: invalid boundaries")
)

// Objective maps a point to the value to minimise. It may be called from
// several goroutines at once when Problem.Workers > 1.
type Objective func(x []float64) float64

type Problem struct {
	Func Objective
	X0   []float64
	// Sigma0 is the initial search spread per dimension. Defaults to a sixth
	// of the box width when bounded, otherwise a third of |x0| (1 if zero).
	Sigma0 []float64
	// Lower and Upper are optional; set both or neither.
	Lower []float64
	Upper []float64

	MaxEvaluations int
	// The search stops once MaxUnchangedIterations iterations in a row
	// improved the best value by no more than Threshold. Zero values pick
	// 200 iterations and 1e-11.
	MaxUnchangedIterations int
	Threshold              float64

	Seed    int64
	Workers int
}

type Result struct {
	X           []float64
	F           float64
	Evaluations int
	Iterations  int
	Status      string
}

type Optimiser interface {
	Name() string
	Minimize(ctx context.Context, p Problem) (Result, error)
}

const (
	defaultMaxEvaluations = 20000
	defaultMaxUnchanged   = 200
	defaultThreshold      = 1e-11
	// boundaryPenalty is returned, scaled by distance, for points outside the box.
	boundaryPenalty = 1e100
)

// IsPenalty reports whether f is the score given to points outside the
// boundaries or with a failed objective, i.e. no usable point was found.
func IsPenalty(f float64) bool {
	return math.IsNaN(f) || f >= boundaryPenalty
}

var registry = map[string]func() Optimiser{
	"cmaes":       func() Optimiser { return NewCMAES() },
	"nelder-mead": func() Optimiser { return NewNelderMead() },
	"pso":         func() Optimiser { return NewPSO() },
	"snes":        func() Optimiser { return NewSNES() },
	"xnes":        func() Optimiser { return NewXNES() },
	"grid":        func() Optimiser { return NewGridSearch(11) },
}

// New returns an optimiser by name.
func New(name string) (Optimiser, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("optim: unsupported optimiser %q", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalize validates p and fills in defaults.
func normalize(p Problem) (Problem, error) {
	n := len(p.X0)
	if n == 0 {
		return p, ErrNoDimensions
	}
	if p.Func == nil {
		return p, errors.New("optim: no objective function")
	}

	if (p.Lower == nil) != (p.Upper == nil) {
		return p, fmt.Errorf("%w: lower and upper must be given together", ErrInvalidBounds)
	}
	if p.Lower != nil {
		if len(p.Lower) != n || len(p.Upper) != n {
			return p, fmt.Errorf("%w: need %d lower and upper values", ErrInvalidBounds, n)
		}
		for i := range p.Lower {
			if !(p.Lower[i] < p.Upper[i]) {
				return p, fmt.Errorf("%w: lower[%d]=%g is not below upper[%d]=%g", ErrInvalidBounds, i, p.Lower[i], i, p.Upper[i])
			}
			if p.X0[i] < p.Lower[i] || p.X0[i] > p.Upper[i] {
				return p, fmt.Errorf("%w: x0[%d]=%g lies outside [%g, %g]", ErrInvalidBounds, i, p.X0[i], p.Lower[i], p.Upper[i])
			}
		}
	}

	if p.Sigma0 == nil {
		p.Sigma0 = make([]float64, n)
		for i := range p.Sigma0 {
			switch {
			case p.Lower != nil:
				p.Sigma0[i] = (p.Upper[i] - p.Lower[i]) / 6
			case p.X0[i] != 0:
				p.Sigma0[i] = math.Abs(p.X0[i]) / 3
			default:
				p.Sigma0[i] = 1
			}
		}
	}
	if len(p.Sigma0) != n {
		return p, fmt.Errorf("optim: need %d initial uncertainties, got %d", n, len(p.Sigma0))
	}
	for i, s := range p.Sigma0 {
		if !(s > 0) || math.IsInf(s, 0) {
			return p, fmt.Errorf("optim: initial uncertainty %d must be positive, got %g", i, s)
		}
	}

	if p.MaxEvaluations <= 0 {
		p.MaxEvaluations = defaultMaxEvaluations
	}
	if p.MaxUnchangedIterations < 0 || p.Threshold < 0 || math.IsNaN(p.Threshold) {
		return p, fmt.Errorf("optim: stopping criteria must not be negative, got %d iterations and threshold %g", p.MaxUnchangedIterations, p.Threshold)
	}
	if p.MaxUnchangedIterations == 0 {
		p.MaxUnchangedIterations = defaultMaxUnchanged
	}
	if p.Threshold == 0 {
		p.Threshold = defaultThreshold
	}
	if p.Workers < 1 {
		p.Workers = 1
	}
	return p, nil
}

// inBounds reports whether x lies in the box and its distance from it.
func inBounds(p Problem, x []float64) (bool, float64) {
	if p.Lower == nil {
		return true, 0
	}
	dist := 0.0
	for i, v := range x {
		if v < p.Lower[i] {
			dist += p.Lower[i] - v
		} else if v > p.Upper[i] {
			dist += v - p.Upper[i]
		}
	}
	return dist == 0, dist
}

// evaluate applies boundaries and maps NaN results to a penalty.
func evaluate(p Problem, x []float64) float64 {
	if ok, dist := inBounds(p, x); !ok {
		return boundaryPenalty * (1 + dist)
	}
	f := p.Func(x)
	if math.IsNaN(f) || math.IsInf(f, 1) {
		return boundaryPenalty
	}
	return f
}

// scaled maps the unit search space z onto x = x0 + sigma0*z.
type scaled struct {
	x0, sigma []float64
}

func (s scaled) toX(z []float64, x []float64) []float64 {
	if x == nil {
		x = make([]float64, len(z))
	}
	for i := range z {
		x[i] = s.x0[i] + s.sigma[i]*z[i]
	}
	return x
}

func clone(x []float64) []float64 {
	return append([]float64(nil), x...)
}
