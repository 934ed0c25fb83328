package inference

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/pkpdsim/internal/data"
	"github.com/san-kum/pkpdsim/internal/model"
)

func grid(n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * step
	}
	return out
}

// synthetic simulates m at truth and returns the outputs shifted by offset.
func synthetic(t *testing.T, m *model.MultiOutputModel, truth, times []float64, offset float64) *data.Dataset {
	t.Helper()

	out, err := m.Simulate(truth, times)
	require.NoError(t, err)

	rows, cols := out.Dims()
	ds := &data.Dataset{
		TimeName:   "time",
		ValueNames: m.OutputNames(),
		Times:      append([]float64(nil), times...),
		Values:     make([][]float64, rows),
	}
	for i := 0; i < rows; i++ {
		ds.Values[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			ds.Values[i][j] = out.At(i, j) + offset
		}
	}
	return ds
}

func oneCompartment(t *testing.T) *model.MultiOutputModel {
	t.Helper()
	m, err := model.NewMultiOutputModel("builtin:one_compartment")
	require.NoError(t, err)
	return m
}

func TestObjectiveFunctions(t *testing.T) {
	m := oneCompartment(t)
	truth := []float64{1, 3, 2}
	times := grid(10, 0.5)
	ds := synthetic(t, m, truth, times, 1)

	p, err := NewProblem(m, ds)
	require.NoError(t, err)

	tests := []struct {
		objective string
		want      float64
	}{
		{SumOfSquares, float64(len(times))},
		{MeanSquared, 1},
		{RootMeanSquared, 1},
	}
	for _, tt := range tests {
		t.Run(tt.objective, func(t *testing.T) {
			require.NoError(t, p.SetObjectiveFunction(tt.objective))
			assert.InDelta(t, tt.want, p.Objective(truth), 1e-9)
		})
	}
}

func TestObjectiveIsZeroAtTruth(t *testing.T) {
	m := oneCompartment(t)
	truth := []float64{1, 3, 2}
	p, err := NewProblem(m, synthetic(t, m, truth, grid(10, 0.5), 0))
	require.NoError(t, err)

	assert.InDelta(t, 0, p.Objective(truth), 1e-20)
	assert.Greater(t, p.Objective([]float64{1, 1, 2}), 0.0)
}

func TestObjectiveFailedSimulation(t *testing.T) {
	m := oneCompartment(t)
	p, err := NewProblem(m, synthetic(t, m, []float64{1, 3, 2}, grid(5, 1), 0))
	require.NoError(t, err)

	assert.True(t, math.IsInf(p.Objective([]float64{1, 3, -2}), 1), "negative volume")
	assert.True(t, math.IsInf(p.Objective([]float64{1, 3}), 1), "short vector")
}

func TestNewProblemOutputMismatch(t *testing.T) {
	m := oneCompartment(t)
	ds := &data.Dataset{
		TimeName:   "time",
		ValueNames: []string{"a", "b"},
		Times:      []float64{0, 1},
		Values:     [][]float64{{1, 1}, {0.5, 0.5}},
	}
	_, err := NewProblem(m, ds)
	assert.ErrorIs(t, err, ErrOutputCount)
}

func TestSetters(t *testing.T) {
	m := oneCompartment(t)
	p, err := NewProblem(m, synthetic(t, m, []float64{1, 3, 2}, grid(5, 1), 0))
	require.NoError(t, err)

	assert.Error(t, p.SetObjectiveFunction("log-likelihood"))
	assert.Error(t, p.SetOptimiser("bfgs"))
	assert.NoError(t, p.SetOptimiser("pso"))
	assert.NoError(t, p.SetOptimiser("xnes"))

	assert.Error(t, p.SetMaxUnchangedIterations(-1, 1e-5))
	assert.Error(t, p.SetMaxUnchangedIterations(10, -1))
	assert.NoError(t, p.SetMaxUnchangedIterations(10, 1e-5))

	var countErr *model.ParameterCountError
	assert.ErrorAs(t, p.SetInitialParameterUncertainty([]float64{1}), &countErr)
	assert.NoError(t, p.SetInitialParameterUncertainty([]float64{0.1, 0.1, 0.1}))

	assert.Error(t, p.SetParameterBoundaries([]float64{0, 0}, []float64{1, 1}))
	assert.Error(t, p.SetParameterBoundaries([]float64{0, 5, 0}, []float64{1, 1, 1}))
	assert.NoError(t, p.SetParameterBoundaries([]float64{0, 0, 0}, []float64{2, 10, 10}))
	assert.NoError(t, p.SetParameterBoundaries(nil, nil))
}

func TestEstimateBeforeRun(t *testing.T) {
	m := oneCompartment(t)
	p, err := NewProblem(m, synthetic(t, m, []float64{1, 3, 2}, grid(5, 1), 0))
	require.NoError(t, err)

	_, err = p.Estimate()
	assert.ErrorIs(t, err, ErrNotEstimated)
}

func TestFindOptimalParametersWrongLength(t *testing.T) {
	m := oneCompartment(t)
	p, err := NewProblem(m, synthetic(t, m, []float64{1, 3, 2}, grid(5, 1), 0))
	require.NoError(t, err)

	_, err = p.FindOptimalParameters(context.Background(), []float64{1, 2})
	var countErr *model.ParameterCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 3, countErr.Want)
}

// Only the initial amount and CL/V are identifiable from the decay curve.
func TestFitRecoversSyntheticData(t *testing.T) {
	m := oneCompartment(t)
	truth := []float64{1, 3, 2}
	p, err := NewProblem(m, synthetic(t, m, truth, grid(13, 0.5), 0))
	require.NoError(t, err)
	require.NoError(t, p.SetOptimiser("nelder-mead"))

	est, err := p.FindOptimalParameters(context.Background(), []float64{0.8, 2, 2.5})
	require.NoError(t, err)

	assert.Less(t, est.Score, 1e-8)
	assert.InDelta(t, truth[0], est.Parameters[0], 1e-3)
	assert.InDelta(t, truth[1]/truth[2], est.Parameters[1]/est.Parameters[2], 1e-3)
	assert.Equal(t, "nelder-mead", est.Optimiser)
	assert.Equal(t, SumOfSquares, est.Objective)

	got, err := p.Estimate()
	require.NoError(t, err)
	assert.Same(t, est, got)
}

func TestFitWithinBoundaries(t *testing.T) {
	m := oneCompartment(t)
	truth := []float64{1, 3, 2}
	p, err := NewProblem(m, synthetic(t, m, truth, grid(13, 0.5), 0))
	require.NoError(t, err)
	require.NoError(t, p.SetOptimiser("cmaes"))
	require.NoError(t, p.SetObjectiveFunction(RootMeanSquared))
	require.NoError(t, p.SetParameterBoundaries([]float64{0.1, 0.1, 2}, []float64{5, 10, 2.0001}))
	p.SetSeed(7)
	p.SetMaxEvaluations(6000)

	est, err := p.FindOptimalParameters(context.Background(), []float64{2, 5, 2})
	require.NoError(t, err)

	for i, v := range est.Parameters {
		assert.GreaterOrEqual(t, v, []float64{0.1, 0.1, 2}[i])
	}
	assert.InDelta(t, 1, est.Parameters[0], 0.05)
	assert.InDelta(t, 3, est.Parameters[1], 0.15)
}

func TestObjectiveSkipsMissingObservations(t *testing.T) {
	m := oneCompartment(t)
	truth := []float64{1, 3, 2}
	times := grid(10, 0.5)
	ds := synthetic(t, m, truth, times, 1)
	ds.Values[3][0] = math.NaN()

	p, err := NewProblem(m, ds)
	require.NoError(t, err)

	assert.InDelta(t, float64(len(times)-1), p.Objective(truth), 1e-9)
	require.NoError(t, p.SetObjectiveFunction(MeanSquared))
	assert.InDelta(t, 1, p.Objective(truth), 1e-9)
}

func TestNewProblemWithoutObservations(t *testing.T) {
	m := oneCompartment(t)
	ds := &data.Dataset{
		TimeName:   "time",
		ValueNames: m.OutputNames(),
		Times:      []float64{0, 1},
		Values:     [][]float64{{math.NaN()}, {math.NaN()}},
	}
	_, err := NewProblem(m, ds)
	assert.Error(t, err)
}

func TestFitWithMissingObservation(t *testing.T) {
	m, err := model.NewMultiOutputModel("builtin:one_compartment_bolus_linear")
	require.NoError(t, err)
	truth := []float64{0, 2, 4}
	ds := synthetic(t, m, truth, grid(13, 1), 0)
	ds.Values[3][0] = math.NaN()

	p, err := NewProblem(m, ds)
	require.NoError(t, err)
	require.NoError(t, p.SetOptimiser("nelder-mead"))
	assert.InDelta(t, 0, p.Objective(truth), 1e-20)

	est, err := p.FindOptimalParameters(context.Background(), []float64{0, 3, 5})
	require.NoError(t, err)
	assert.Less(t, est.Score, 1e-8)
	// the 10 unit bolus adds to the initial amount, so only C0 and CL/V are identifiable
	x := est.Parameters
	assert.InDelta(t, 2.5, (x[0]+10)/x[2], 1e-3)
	assert.InDelta(t, 0.5, x[1]/x[2], 1e-3)
}

func TestFitWithoutFeasiblePoint(t *testing.T) {
	m := oneCompartment(t)
	p, err := NewProblem(m, synthetic(t, m, []float64{1, 3, 2}, grid(5, 1), 0))
	require.NoError(t, err)
	require.NoError(t, p.SetOptimiser("nelder-mead"))
	require.NoError(t, p.SetMaxUnchangedIterations(5, 0))
	// every volume in the box is negative, so no simulation succeeds
	require.NoError(t, p.SetParameterBoundaries([]float64{0, 0, -2}, []float64{2, 10, -1}))

	_, err = p.FindOptimalParameters(context.Background(), []float64{1, 3, -1.5})
	assert.ErrorIs(t, err, ErrNoFeasible)

	_, err = p.Estimate()
	assert.ErrorIs(t, err, ErrNotEstimated)
}

func TestMaxUnchangedIterationsShortensSearch(t *testing.T) {
	m := oneCompartment(t)
	ds := synthetic(t, m, []float64{1, 3, 2}, grid(13, 0.5), 0)
	x0 := []float64{0.8, 2, 2.5}

	full, err := NewProblem(m, ds)
	require.NoError(t, err)
	require.NoError(t, full.SetOptimiser("nelder-mead"))
	long, err := full.FindOptimalParameters(context.Background(), x0)
	require.NoError(t, err)

	quick, err := NewProblem(m, ds)
	require.NoError(t, err)
	require.NoError(t, quick.SetOptimiser("nelder-mead"))
	require.NoError(t, quick.SetMaxUnchangedIterations(1, 1))
	short, err := quick.FindOptimalParameters(context.Background(), x0)
	require.NoError(t, err)

	assert.Less(t, short.Evaluations, long.Evaluations)
}

func TestEveryOptimiserRuns(t *testing.T) {
	m := oneCompartment(t)
	ds := synthetic(t, m, []float64{1, 3, 2}, grid(5, 1), 0)

	for _, name := range []string{"cmaes", "nelder-mead", "pso", "snes", "xnes"} {
		t.Run(name, func(t *testing.T) {
			p, err := NewProblem(m, ds)
			require.NoError(t, err)
			require.NoError(t, p.SetOptimiser(name))
			require.NoError(t, p.SetMaxUnchangedIterations(1, 1))
			p.SetSeed(2)

			est, err := p.FindOptimalParameters(context.Background(), []float64{1.1, 3.1, 2.1})
			require.NoError(t, err)
			assert.Len(t, est.Parameters, 3)
			assert.Equal(t, name, est.Optimiser)
		})
	}
}
