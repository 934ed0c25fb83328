// Package automation runs families of simulations: one-parameter sweeps and
// Monte Carlo variability studies, each summarised by exposure metrics.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/pkpdsim/internal/metrics"
	"github.com/san-kum/pkpdsim/internal/model"
)

// ParameterSweep varies one fit-vector entry over [Min, Max] in NumSteps
// evenly spaced values, holding the rest at Base.
type ParameterSweep struct {
	Parameter string
	Min       float64
	Max       float64
	NumSteps  int
	// Base defaults to the model's own values.
	Base  []float64
	Times []float64
}

type SweepResult struct {
	Value      float64
	Parameters []float64
	Metrics    map[string]float64
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, m *model.MultiOutputModel, sweep *ParameterSweep) ([]SweepResult, error) {
	idx := m.Layout().Index(sweep.Parameter)
	if idx < 0 {
		return nil, fmt.Errorf("model %s has no fit parameter %q", m.Name(), sweep.Parameter)
	}
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}
	base, err := baseVector(m, sweep.Base)
	if err != nil {
		return nil, err
	}

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.Max - sweep.Min) / float64(sweep.NumSteps-1)
	}

	sets := make([][]float64, sweep.NumSteps)
	for i := range sets {
		sets[i] = append([]float64(nil), base...)
		sets[i][idx] = sweep.Min + float64(i)*paramStep
	}

	outputs, err := m.SimulateBatch(ctx, sets, sweep.Times)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, len(sets))
	for i, out := range outputs {
		results[i] = SweepResult{
			Value:      sets[i][idx],
			Parameters: sets[i],
			Metrics:    metrics.Exposure(m.OutputNames(), sweep.Times, out),
		}
	}
	slog.Debug("sweep finished", "model", m.Name(), "parameter", sweep.Parameter, "steps", sweep.NumSteps)

	return results, nil
}

// MonteCarloConfig draws each varied entry as Base*exp(Variability*z) with
// z standard normal, the usual log-normal between-subject variability.
type MonteCarloConfig struct {
	Base        []float64
	Variability float64
	// Vary lists the fit-vector names to perturb; empty means every model
	// parameter (initial states are kept).
	Vary      []string
	NumTrials int
	Seed      int64
	Times     []float64
}

type MonteCarloResult struct {
	TrialID    int
	Parameters []float64
	Metrics    map[string]float64
}

// RunMonteCarlo executes multiple trials with random perturbations
func RunMonteCarlo(ctx context.Context, m *model.MultiOutputModel, cfg *MonteCarloConfig) ([]MonteCarloResult, error) {
	if cfg.NumTrials < 1 {
		return nil, fmt.Errorf("monte carlo needs at least one trial, got %d", cfg.NumTrials)
	}
	if cfg.Variability < 0 {
		return nil, fmt.Errorf("variability must not be negative, got %g", cfg.Variability)
	}
	base, err := baseVector(m, cfg.Base)
	if err != nil {
		return nil, err
	}

	layout := m.Layout()
	var vary []int
	if len(cfg.Vary) == 0 {
		for i := len(layout.States); i < layout.Len(); i++ {
			vary = append(vary, i)
		}
	}
	for _, name := range cfg.Vary {
		idx := layout.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("model %s has no fit parameter %q", m.Name(), name)
		}
		vary = append(vary, idx)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	sets := make([][]float64, cfg.NumTrials)
	for trial := range sets {
		p := append([]float64(nil), base...)
		for _, i := range vary {
			p[i] *= math.Exp(cfg.Variability * rng.NormFloat64())
		}
		sets[trial] = p
	}

	outputs, err := m.SimulateBatch(ctx, sets, cfg.Times)
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, len(sets))
	for trial, out := range outputs {
		results[trial] = MonteCarloResult{
			TrialID:    trial,
			Parameters: sets[trial],
			Metrics:    metrics.Exposure(m.OutputNames(), cfg.Times, out),
		}
	}
	slog.Debug("monte carlo finished", "model", m.Name(), "trials", cfg.NumTrials)

	return results, nil
}

// MonteCarloStats returns the empirical quantiles of one metric across
// trials, skipping trials where it is undefined. Each q must lie in [0, 1].
func MonteCarloStats(results []MonteCarloResult, metric string, qs ...float64) ([]float64, int) {
	values := make([]float64, 0, len(results))
	for _, r := range results {
		if v, ok := r.Metrics[metric]; ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, 0
	}
	sort.Float64s(values)

	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = stat.Quantile(q, stat.Empirical, values, nil)
	}
	return out, len(values)
}

// MetricNames returns the metric keys present in any result, sorted.
func MetricNames(results []MonteCarloResult) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		for k := range r.Metrics {
			seen[k] = true
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func baseVector(m *model.MultiOutputModel, base []float64) ([]float64, error) {
	if base == nil {
		return m.DefaultParameters(), nil
	}
	if len(base) != m.NParameters() {
		return nil, &model.ParameterCountError{Got: len(base), Want: m.NParameters()}
	}
	return append([]float64(nil), base...), nil
}
