package optim

import (
	"context"
	"math"
	"math/rand"
)

// PSO is a global-best particle swarm with constriction coefficients.
type PSO struct {
	Particles int
	Inertia   float64
	Cognitive float64
	Social    float64
}

func NewPSO() *PSO {
	return &PSO{Inertia: 0.7298, Cognitive: 1.49618, Social: 1.49618}
}

func (o *PSO) Name() string { return "pso" }

func (o *PSO) Minimize(ctx context.Context, p Problem) (Result, error) {
	p, err := normalize(p)
	if err != nil {
		return Result{}, err
	}
	rng := rand.New(rand.NewSource(p.Seed))
	n := len(p.X0)
	s := scaled{x0: p.X0, sigma: p.Sigma0}

	size := o.Particles
	if size <= 0 {
		size = populationSize(n)
	}

	pos := make([][]float64, size)
	vel := make([][]float64, size)
	for k := range pos {
		pos[k] = make([]float64, n)
		vel[k] = make([]float64, n)
		if k == 0 {
			continue // one particle starts at x0
		}
		for i := range pos[k] {
			pos[k][i] = rng.NormFloat64()
			vel[k][i] = 0.1 * rng.NormFloat64()
		}
	}

	points := make([][]float64, size)
	toX := func() {
		for k := range pos {
			points[k] = s.toX(pos[k], points[k])
		}
	}

	toX()
	scores, err := evaluateAll(ctx, p, points)
	if err != nil {
		return Result{}, err
	}
	evals := size

	bestPos := make([][]float64, size)
	bestScore := make([]float64, size)
	g := 0
	for k := range pos {
		bestPos[k] = clone(pos[k])
		bestScore[k] = scores[k]
		if scores[k] < scores[g] {
			g = k
		}
	}
	globalPos, globalScore := clone(bestPos[g]), bestScore[g]

	st := newStall(p)
	iter := 0
	status := "FunctionEvaluationLimit"
	for evals+size <= p.MaxEvaluations {
		iter++
		for k := range pos {
			for i := range pos[k] {
				r1, r2 := rng.Float64(), rng.Float64()
				vel[k][i] = o.Inertia*vel[k][i] +
					o.Cognitive*r1*(bestPos[k][i]-pos[k][i]) +
					o.Social*r2*(globalPos[i]-pos[k][i])
				pos[k][i] += vel[k][i]
			}
		}

		toX()
		scores, err = evaluateAll(ctx, p, points)
		if err != nil {
			return Result{}, err
		}
		evals += size

		for k := range pos {
			if scores[k] < bestScore[k] {
				bestScore[k] = scores[k]
				copy(bestPos[k], pos[k])
				if scores[k] < globalScore {
					globalScore = scores[k]
					copy(globalPos, pos[k])
				}
			}
		}

		if st.update(globalScore) {
			status = "FunctionConvergence"
			break
		}
	}

	if math.IsInf(globalScore, 0) {
		status = "Failure"
	}
	return Result{X: s.toX(globalPos, nil), F: globalScore, Evaluations: evals, Iterations: iter, Status: status}, nil
}
