package optim

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"gonum.org/v1/gonum/optimize"
)

// CMAES is gonum's covariance matrix adaptation evolution strategy, run in
// the space scaled by Sigma0 with unit initial step.
type CMAES struct {
	// Population defaults to gonum's choice when zero.
	Population int
}

func NewCMAES() *CMAES {
	return &CMAES{}
}

func (c *CMAES) Name() string { return "cmaes" }

func (c *CMAES) Minimize(ctx context.Context, p Problem) (Result, error) {
	p, err := normalize(p)
	if err != nil {
		return Result{}, err
	}
	method := &optimize.CmaEsChol{InitStepSize: 1, Population: c.Population}
	return runGonum(ctx, c.Name(), p, method, p.Workers)
}

// NelderMead is gonum's downhill simplex, with an initial simplex of one
// Sigma0 along each axis.
type NelderMead struct{}

func NewNelderMead() *NelderMead {
	return &NelderMead{}
}

func (n *NelderMead) Name() string { return "nelder-mead" }

func (n *NelderMead) Minimize(ctx context.Context, p Problem) (Result, error) {
	p, err := normalize(p)
	if err != nil {
		return Result{}, err
	}
	return runGonum(ctx, n.Name(), p, &optimize.NelderMead{SimplexSize: 1}, 1)
}

func runGonum(ctx context.Context, name string, p Problem, method optimize.Method, concurrent int) (Result, error) {
	s := scaled{x0: p.X0, sigma: p.Sigma0}
	var evals atomic.Int64

	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			evals.Add(1)
			if ctx.Err() != nil {
				return boundaryPenalty
			}
			return evaluate(p, s.toX(z, nil))
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: p.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   p.Threshold,
			Iterations: p.MaxUnchangedIterations,
		},
		Concurrent: concurrent,
	}

	res, err := optimize.Minimize(problem, make([]float64, len(p.X0)), settings, method)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if res == nil || len(res.X) == 0 {
		return Result{}, fmt.Errorf("optim: %s failed: %w", name, err)
	}
	if err != nil {
		slog.Debug("optimiser stopped early", "method", name, "status", res.Status.String(), "error", err)
	}

	return Result{
		X:           s.toX(res.X, nil),
		F:           res.F,
		Evaluations: int(evals.Load()),
		Iterations:  res.Stats.MajorIterations,
		Status:      res.Status.String(),
	}, nil
}
