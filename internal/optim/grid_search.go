package optim

import (
	"context"
	"fmt"
	"math"
)

// GridSearch evaluates every point of a regular grid. Without explicit
// Ranges the grid spans the boundaries, or x0 +/- 3 sigma0 when unbounded.
type GridSearch struct {
	Points int
	Ranges [][]float64
}

func NewGridSearch(points int) *GridSearch {
	return &GridSearch{Points: points}
}

func (g *GridSearch) Name() string { return "grid" }

func (g *GridSearch) Minimize(ctx context.Context, p Problem) (Result, error) {
	p, err := normalize(p)
	if err != nil {
		return Result{}, err
	}

	ranges := g.Ranges
	if ranges == nil {
		ranges = g.defaultRanges(p)
	}
	if len(ranges) != len(p.X0) {
		return Result{}, fmt.Errorf("optim: grid has %d ranges for %d dimensions", len(ranges), len(p.X0))
	}

	total := 1
	for i, r := range ranges {
		if len(r) == 0 {
			return Result{}, fmt.Errorf("optim: grid range %d is empty", i)
		}
		total *= len(r)
		if total > p.MaxEvaluations {
			return Result{}, fmt.Errorf("optim: grid needs more than %d evaluations", p.MaxEvaluations)
		}
	}

	best := math.Inf(1)
	var bestX []float64
	evals := 0

	err = g.searchRecursive(ctx, p, ranges, 0, make([]float64, len(ranges)), &best, &bestX, &evals)
	if err != nil {
		return Result{}, err
	}

	return Result{X: bestX, F: best, Evaluations: evals, Iterations: 1, Status: "GridExhausted"}, nil
}

func (g *GridSearch) defaultRanges(p Problem) [][]float64 {
	points := g.Points
	if points < 2 {
		points = 2
	}
	ranges := make([][]float64, len(p.X0))
	for i := range ranges {
		lo, hi := p.X0[i]-3*p.Sigma0[i], p.X0[i]+3*p.Sigma0[i]
		if p.Lower != nil {
			lo, hi = p.Lower[i], p.Upper[i]
		}
		ranges[i] = make([]float64, points)
		for k := range ranges[i] {
			ranges[i][k] = lo + (hi-lo)*float64(k)/float64(points-1)
		}
	}
	return ranges
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	p Problem,
	ranges [][]float64,
	depth int,
	current []float64,
	best *float64,
	bestX *[]float64,
	evals *int,
) error {
	if depth == len(ranges) {
		if err := ctx.Err(); err != nil {
			return err
		}

		*evals++
		val := evaluate(p, current)
		if val < *best || *bestX == nil {
			*best = val
			*bestX = clone(current)
		}
		return nil
	}

	for _, val := range ranges[depth] {
		current[depth] = val
		if err := g.searchRecursive(ctx, p, ranges, depth+1, current, best, bestX, evals); err != nil {
			return err
		}
	}
	return nil
}
