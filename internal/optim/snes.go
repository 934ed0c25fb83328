package optim

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

// SNES is the separable natural evolution strategy: a diagonal Gaussian
// search distribution whose mean and per-axis spread follow the natural
// gradient of ranked samples.
type SNES struct {
	Population int
}

func NewSNES() *SNES {
	return &SNES{}
}

func (o *SNES) Name() string { return "snes" }

func (o *SNES) Minimize(ctx context.Context, p Problem) (Result, error) {
	p, err := normalize(p)
	if err != nil {
		return Result{}, err
	}
	rng := rand.New(rand.NewSource(p.Seed))
	n := len(p.X0)
	s := scaled{x0: p.X0, sigma: p.Sigma0}

	lambda := o.Population
	if lambda <= 0 {
		lambda = populationSize(n)
	}
	utilities := snesUtilities(lambda)
	etaSigma := (3 + math.Log(float64(n))) / (5 * math.Sqrt(float64(n)))

	mu := make([]float64, n)
	sigma := make([]float64, n)
	for i := range sigma {
		sigma[i] = 1
	}

	bestZ := make([]float64, n)
	bestF := evaluate(p, s.toX(bestZ, nil))
	evals := 1

	samples := make([][]float64, lambda)
	points := make([][]float64, lambda)
	for k := range samples {
		samples[k] = make([]float64, n)
	}
	order := make([]int, lambda)

	st := newStall(p)
	iter := 0
	status := "FunctionEvaluationLimit"
	for evals+lambda <= p.MaxEvaluations {
		iter++
		z := make([]float64, n)
		for k := range samples {
			for i := range samples[k] {
				samples[k][i] = rng.NormFloat64()
				z[i] = mu[i] + sigma[i]*samples[k][i]
			}
			points[k] = s.toX(z, points[k])
		}

		scores, err := evaluateAll(ctx, p, points)
		if err != nil {
			return Result{}, err
		}
		evals += lambda

		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

		if f := scores[order[0]]; f < bestF {
			bestF = f
			for i := range bestZ {
				bestZ[i] = mu[i] + sigma[i]*samples[order[0]][i]
			}
		}

		for i := 0; i < n; i++ {
			gMu, gSigma := 0.0, 0.0
			for rank, k := range order {
				sk := samples[k][i]
				gMu += utilities[rank] * sk
				gSigma += utilities[rank] * (sk*sk - 1)
			}
			mu[i] += sigma[i] * gMu
			sigma[i] *= math.Exp(etaSigma / 2 * gSigma)
		}

		if st.update(bestF) {
			status = "FunctionConvergence"
			break
		}
	}

	return Result{X: s.toX(bestZ, nil), F: bestF, Evaluations: evals, Iterations: iter, Status: status}, nil
}

// snesUtilities returns rank-based fitness shaping weights, best first.
func snesUtilities(lambda int) []float64 {
	u := make([]float64, lambda)
	sum := 0.0
	for k := range u {
		u[k] = math.Max(0, math.Log(float64(lambda)/2+1)-math.Log(float64(k+1)))
		sum += u[k]
	}
	for k := range u {
		u[k] = u[k]/sum - 1/float64(lambda)
	}
	return u
}
