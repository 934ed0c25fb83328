// Package inference calibrates model parameters against observed data.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pkpdsim/internal/data"
	"github.com/san-kum/pkpdsim/internal/model"
	"github.com/san-kum/pkpdsim/internal/optim"
)

// Objective functions.
const (
	SumOfSquares    = "sum-of-squares"
	MeanSquared     = "mean-squared"
	RootMeanSquared = "root-mean-squared"
)

var (
	ErrNotEstimated = errors.New("inference: no estimate yet, run FindOptimalParameters first")
	ErrOutputCount  = errors.New("inference: dataset columns do not match model outputs")
	ErrNoFeasible   = errors.New("inference: no parameter vector gave a finite objective")
)

// Estimate is the outcome of one calibration run.
type Estimate struct {
	Parameters  []float64
	Score       float64
	Objective   string
	Optimiser   string
	Evaluations int
	Iterations  int
	Status      string
	Elapsed     time.Duration
}

// Problem fits a model to a dataset by minimising an error measure over the
// model's fit-parameter vector. Defaults: sum of squares, CMA-ES, no
// boundaries and a Sigma0 chosen by the optimiser.
type Problem struct {
	model  model.Forward
	times  []float64
	values *mat.Dense
	// observed counts the finite cells of values; missing ones are NaN.
	observed int

	objective      string
	optimiser      string
	sigma0         []float64
	lower, upper   []float64
	maxEvaluations int
	maxUnchanged   int
	threshold      float64
	seed           int64
	workers        int

	estimate *Estimate
}

func NewProblem(m model.Forward, ds *data.Dataset) (*Problem, error) {
	if len(ds.ValueNames) != m.NOutputs() {
		return nil, fmt.Errorf("%w: %d columns, %d outputs", ErrOutputCount, len(ds.ValueNames), m.NOutputs())
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("inference: empty dataset")
	}

	values := mat.NewDense(ds.Len(), len(ds.ValueNames), nil)
	observed := 0
	for i, row := range ds.Values {
		values.SetRow(i, row)
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				observed++
			}
		}
	}
	if observed == 0 {
		return nil, fmt.Errorf("inference: dataset has no finite observations")
	}

	return &Problem{
		model:     m,
		times:     append([]float64(nil), ds.Times...),
		values:    values,
		observed:  observed,
		objective: SumOfSquares,
		optimiser: "cmaes",
		workers:   1,
	}, nil
}

func (p *Problem) SetObjectiveFunction(name string) error {
	switch name {
	case SumOfSquares, MeanSquared, RootMeanSquared:
		p.objective = name
		return nil
	}
	return fmt.Errorf("inference: objective function %q is not supported", name)
}

func (p *Problem) SetOptimiser(name string) error {
	if _, err := optim.New(name); err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	p.optimiser = name
	return nil
}

// SetInitialParameterUncertainty sets the initial search spread per fit parameter.
func (p *Problem) SetInitialParameterUncertainty(sigma0 []float64) error {
	if sigma0 != nil && len(sigma0) != p.model.NParameters() {
		return &model.ParameterCountError{Got: len(sigma0), Want: p.model.NParameters()}
	}
	p.sigma0 = append([]float64(nil), sigma0...)
	if sigma0 == nil {
		p.sigma0 = nil
	}
	return nil
}

// SetParameterBoundaries restricts the search to lower <= x <= upper.
// Passing nil for both removes the restriction.
func (p *Problem) SetParameterBoundaries(lower, upper []float64) error {
	if lower == nil && upper == nil {
		p.lower, p.upper = nil, nil
		return nil
	}
	n := p.model.NParameters()
	if len(lower) != n || len(upper) != n {
		return fmt.Errorf("inference: need %d lower and upper bounds, got %d and %d", n, len(lower), len(upper))
	}
	for i := range lower {
		if !(lower[i] < upper[i]) {
			return fmt.Errorf("inference: lower bound %g is not below upper bound %g for parameter %d", lower[i], upper[i], i)
		}
	}
	p.lower = append([]float64(nil), lower...)
	p.upper = append([]float64(nil), upper...)
	return nil
}

func (p *Problem) SetMaxEvaluations(n int) { p.maxEvaluations = n }

// SetMaxUnchangedIterations stops the search once iterations rounds in a
// row improved the best score by no more than threshold. Zero values keep
// the optimiser defaults.
func (p *Problem) SetMaxUnchangedIterations(iterations int, threshold float64) error {
	if iterations < 0 || threshold < 0 || math.IsNaN(threshold) {
		return fmt.Errorf("inference: stopping criteria must not be negative, got %d and %g", iterations, threshold)
	}
	p.maxUnchanged = iterations
	p.threshold = threshold
	return nil
}

func (p *Problem) SetSeed(seed int64)      { p.seed = seed }

// SetWorkers bounds concurrent objective evaluations in population-based optimisers.
func (p *Problem) SetWorkers(n int) { p.workers = n }

// Objective evaluates the error measure at a fit-parameter vector over the
// observed cells; missing (NaN) observations are skipped. A failed
// simulation scores +Inf.
func (p *Problem) Objective(parameters []float64) float64 {
	return p.objectiveContext(context.Background(), parameters)
}

func (p *Problem) objectiveContext(ctx context.Context, parameters []float64) float64 {
	out, err := p.model.SimulateContext(ctx, parameters, p.times)
	if err != nil {
		return math.Inf(1)
	}

	rows, cols := p.values.Dims()
	sse := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := p.values.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			d := out.At(i, j) - v
			sse += d * d
		}
	}

	switch p.objective {
	case MeanSquared:
		return sse / float64(p.observed)
	case RootMeanSquared:
		return math.Sqrt(sse / float64(p.observed))
	default:
		return sse
	}
}

// FindOptimalParameters searches for the fit-parameter vector minimising
// the objective, starting at x0.
func (p *Problem) FindOptimalParameters(ctx context.Context, x0 []float64) (*Estimate, error) {
	if len(x0) != p.model.NParameters() {
		return nil, &model.ParameterCountError{Got: len(x0), Want: p.model.NParameters()}
	}

	opt, err := optim.New(p.optimiser)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	slog.Debug("starting calibration", "optimiser", p.optimiser, "objective", p.objective, "parameters", len(x0))

	res, err := opt.Minimize(ctx, optim.Problem{
		Func:                   func(x []float64) float64 { return p.objectiveContext(ctx, x) },
		X0:                     x0,
		Sigma0:                 p.sigma0,
		Lower:                  p.lower,
		Upper:                  p.upper,
		MaxEvaluations:         p.maxEvaluations,
		MaxUnchangedIterations: p.maxUnchanged,
		Threshold:              p.threshold,
		Seed:                   p.seed,
		Workers:                p.workers,
	})
	if err != nil {
		return nil, fmt.Errorf("inference: %s failed: %w", p.optimiser, err)
	}
	if optim.IsPenalty(res.F) || math.IsInf(res.F, 0) {
		return nil, fmt.Errorf("%w after %d evaluations with %s", ErrNoFeasible, res.Evaluations, p.optimiser)
	}

	p.estimate = &Estimate{
		Parameters:  res.X,
		Score:       res.F,
		Objective:   p.objective,
		Optimiser:   p.optimiser,
		Evaluations: res.Evaluations,
		Iterations:  res.Iterations,
		Status:      res.Status,
		Elapsed:     time.Since(started),
	}
	slog.Debug("calibration finished", "score", res.F, "evaluations", res.Evaluations, "status", res.Status)

	return p.estimate, nil
}

// Estimate returns the result of the last FindOptimalParameters call.
func (p *Problem) Estimate() (*Estimate, error) {
	if p.estimate == nil {
		return nil, ErrNotEstimated
	}
	return p.estimate, nil
}
