package optim

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// XNES is the exponential natural evolution strategy. Unlike SNES it adapts
// a full covariance, kept as a scale sigma and a shape matrix B with
// det(B) = 1, so it follows correlated parameters such as CL and V.
type XNES struct {
	Population int
}

func NewXNES() *XNES {
	return &XNES{}
}

func (o *XNES) Name() string { return "xnes" }

func (o *XNES) Minimize(ctx context.Context, p Problem) (Result, error) {
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
	etaShape := 0.6 * (3 + math.Log(float64(n))) / (float64(n) * math.Sqrt(float64(n)))

	mu := mat.NewVecDense(n, nil)
	sigma := 1.0
	shape := identity(n)

	bestZ := make([]float64, n)
	bestF := evaluate(p, s.toX(bestZ, nil))
	evals := 1

	samples := make([]*mat.VecDense, lambda)
	points := make([][]float64, lambda)
	for k := range samples {
		samples[k] = mat.NewVecDense(n, nil)
	}
	order := make([]int, lambda)
	z := mat.NewVecDense(n, nil)

	var (
		gradMu    = mat.NewVecDense(n, nil)
		gradM     = mat.NewDense(n, n, nil)
		outer     = mat.NewDense(n, n, nil)
		step      = mat.NewVecDense(n, nil)
		expShape  = mat.NewDense(n, n, nil)
		nextShape = mat.NewDense(n, n, nil)
	)

	st := newStall(p)
	iter := 0
	status := "FunctionEvaluationLimit"
	for evals+lambda <= p.MaxEvaluations {
		iter++
		for k, sk := range samples {
			for i := 0; i < n; i++ {
				sk.SetVec(i, rng.NormFloat64())
			}
			z.MulVec(shape, sk)
			z.AddScaledVec(mu, sigma, z)
			points[k] = s.toX(z.RawVector().Data, points[k])
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
			copy(bestZ, points[order[0]])
			for i := range bestZ {
				bestZ[i] = (bestZ[i] - s.x0[i]) / s.sigma[i]
			}
		}

		gradMu.Zero()
		gradM.Zero()
		for rank, k := range order {
			sk := samples[k]
			gradMu.AddScaledVec(gradMu, utilities[rank], sk)
			outer.Outer(utilities[rank], sk, sk)
			gradM.Add(gradM, outer)
			for i := 0; i < n; i++ {
				gradM.Set(i, i, gradM.At(i, i)-utilities[rank])
			}
		}
		gradSigma := mat.Trace(gradM) / float64(n)
		for i := 0; i < n; i++ {
			gradM.Set(i, i, gradM.At(i, i)-gradSigma)
		}

		step.MulVec(shape, gradMu)
		mu.AddScaledVec(mu, sigma, step)
		sigma *= math.Exp(etaShape / 2 * gradSigma)
		gradM.Scale(etaShape/2, gradM)
		expShape.Exp(gradM)
		nextShape.Mul(shape, expShape)
		shape.Copy(nextShape)

		if st.update(bestF) {
			status = "FunctionConvergence"
			break
		}
	}

	return Result{X: s.toX(bestZ, nil), F: bestF, Evaluations: evals, Iterations: iter, Status: status}, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
