package model

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pkpdsim/internal/dynamo"
	"github.com/san-kum/pkpdsim/internal/integrators"
	"github.com/san-kum/pkpdsim/internal/pkmodel"
	"github.com/san-kum/pkpdsim/internal/sim"
)

type options struct {
	integrator string
	cfg        sim.Config
	outputs    []string
	workers    int
	schedule   *sim.Schedule
}

type Option func(*options)

// WithIntegrator selects the integrator by registry name (default "rk45").
func WithIntegrator(name string) Option {
	return func(o *options) { o.integrator = name }
}

func WithTolerance(tol dynamo.Tolerance) Option {
	return func(o *options) { o.cfg.Tolerance = tol }
}

// WithStep sets the fixed step, or the first trial step for adaptive integrators.
func WithStep(dt float64) Option {
	return func(o *options) { o.cfg.Dt = dt }
}

func WithMaxStep(dt float64) Option {
	return func(o *options) { o.cfg.MaxDt = dt }
}

func WithMaxSteps(n int) Option {
	return func(o *options) { o.cfg.MaxSteps = n }
}

// WithOutputs overrides the output channels declared by the model file.
func WithOutputs(names ...string) Option {
	return func(o *options) { o.outputs = append([]string(nil), names...) }
}

// WithSchedule replaces the dosing protocol of the model file.
func WithSchedule(sched sim.Schedule) Option {
	return func(o *options) { o.schedule = &sched }
}

// WithWorkers bounds the goroutines used by SimulateBatch.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Forward is the part of a model that calibration needs.
type Forward interface {
	NParameters() int
	NOutputs() int
	SimulateContext(ctx context.Context, parameters, times []float64) (*mat.Dense, error)
}

var (
	_ Forward = (*MultiOutputModel)(nil)
	_ Forward = (*SingleOutputModel)(nil)
)

// MultiOutputModel simulates a compartmental model through a flat vector of
// fit parameters; see FitLayout for the vector convention. Every call builds
// a fresh system from the immutable definition, so a model may be shared
// between goroutines.
type MultiOutputModel struct {
	def     *pkmodel.Definition
	sched   sim.Schedule
	layout  FitLayout
	outputs []string
	opts    options
}

// NewMultiOutputModel loads a model file (or "builtin:<name>").
func NewMultiOutputModel(path string, opts ...Option) (*MultiOutputModel, error) {
	def, err := pkmodel.Resolve(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return FromDefinition(def, opts...)
}

// FromDefinition wraps an already loaded definition.
func FromDefinition(def *pkmodel.Definition, opts ...Option) (*MultiOutputModel, error) {
	o := options{
		integrator: "rk45",
		cfg:        sim.DefaultConfig(),
		workers:    runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := integrators.New(o.integrator); err != nil {
		return nil, &LoadError{Path: def.Source(), Err: err}
	}

	outputs := def.Outputs
	if len(o.outputs) > 0 {
		outputs = o.outputs
	}

	sys, err := pkmodel.NewSystem(def, def.InitialState(), def.ParameterValues())
	if err != nil {
		return nil, &LoadError{Path: def.Source(), Err: err}
	}
	if _, err := sys.Observer(outputs); err != nil {
		return nil, &LoadError{Path: def.Source(), Err: err}
	}

	sched, err := def.Schedule()
	if err != nil {
		return nil, &LoadError{Path: def.Source(), Err: err}
	}
	if o.schedule != nil {
		if err := o.schedule.Validate(len(def.Compartments)); err != nil {
			return nil, &LoadError{Path: def.Source(), Err: err}
		}
		sched = *o.schedule
	}

	return &MultiOutputModel{
		def:   def,
		sched: sched,
		layout: FitLayout{
			States:     def.StateNames(),
			Parameters: def.ParameterNames(),
		},
		outputs: append([]string(nil), outputs...),
		opts:    o,
	}, nil
}

func (m *MultiOutputModel) Name() string {
	return m.def.Name
}

func (m *MultiOutputModel) Definition() *pkmodel.Definition {
	return m.def
}

func (m *MultiOutputModel) StateNames() []string {
	return append([]string(nil), m.layout.States...)
}

func (m *MultiOutputModel) ParameterNames() []string {
	return append([]string(nil), m.layout.Parameters...)
}

func (m *MultiOutputModel) OutputNames() []string {
	return append([]string(nil), m.outputs...)
}

func (m *MultiOutputModel) Layout() FitLayout {
	return FitLayout{States: m.StateNames(), Parameters: m.ParameterNames()}
}

// Schedule returns the dosing events applied by every simulation.
func (m *MultiOutputModel) Schedule() sim.Schedule {
	return m.sched
}

// WithDoses returns a copy of m dosed with doses instead of the file's
// protocol, e.g. one subject's record. The copy shares the definition.
func (m *MultiOutputModel) WithDoses(doses []pkmodel.Dose) (*MultiOutputModel, error) {
	sched, err := m.def.ScheduleFor(doses)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	c := *m
	c.sched = sched
	return &c, nil
}

// NParameters is the number of fit parameters: initial states plus model parameters.
func (m *MultiOutputModel) NParameters() int {
	return m.layout.Len()
}

func (m *MultiOutputModel) NOutputs() int {
	return len(m.outputs)
}

// DefaultParameters returns the fit vector holding the file's own values.
func (m *MultiOutputModel) DefaultParameters() []float64 {
	p, _ := m.layout.Join(FitVector{Initial: m.def.InitialState(), Params: m.def.ParameterValues()})
	return p
}

// Simulate returns a len(times) x NOutputs() matrix of the outputs sampled
// at times, integrating from 0 to times[len(times)-1]+1.
func (m *MultiOutputModel) Simulate(parameters, times []float64) (*mat.Dense, error) {
	return m.SimulateContext(context.Background(), parameters, times)
}

func (m *MultiOutputModel) SimulateContext(ctx context.Context, parameters, times []float64) (*mat.Dense, error) {
	job, observe, cfg, err := m.prepare(parameters, times)
	if err != nil {
		return nil, err
	}

	integ, _ := integrators.New(m.opts.integrator)
	res, err := sim.New(integ).Run(ctx, job.System, job.Initial, job.Schedule, cfg)
	if err != nil {
		return nil, &SimulationError{Err: err}
	}
	slog.Debug("simulated model", "model", m.def.Name, "samples", len(times), "steps", res.StepsTaken, "rejected", res.Rejected)

	return m.collect(res, observe), nil
}

// SimulateBatch simulates several parameter vectors on the same time grid
// concurrently. Results are in input order.
func (m *MultiOutputModel) SimulateBatch(ctx context.Context, parameterSets [][]float64, times []float64) ([]*mat.Dense, error) {
	jobs := make([]sim.Job, len(parameterSets))
	observers := make([]func(dynamo.State, []float64), len(parameterSets))
	var cfg sim.Config
	for i, p := range parameterSets {
		job, observe, c, err := m.prepare(p, times)
		if err != nil {
			return nil, fmt.Errorf("parameter set %d: %w", i, err)
		}
		jobs[i], observers[i], cfg = job, observe, c
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	ens := sim.NewEnsemble(func() dynamo.Integrator {
		integ, _ := integrators.New(m.opts.integrator)
		return integ
	}, m.opts.workers)

	results, err := ens.Run(ctx, jobs, cfg)
	if err != nil {
		return nil, &SimulationError{Err: err}
	}

	out := make([]*mat.Dense, len(results))
	for i, res := range results {
		out[i] = m.collect(res, observers[i])
	}
	return out, nil
}

func (m *MultiOutputModel) prepare(parameters, times []float64) (sim.Job, func(dynamo.State, []float64), sim.Config, error) {
	fit, err := m.layout.Split(parameters)
	if err != nil {
		return sim.Job{}, nil, sim.Config{}, err
	}
	if len(times) == 0 {
		return sim.Job{}, nil, sim.Config{}, fmt.Errorf("%w: no sample times", ErrInvalidTimes)
	}
	if err := sim.ValidateTimes(times); err != nil {
		return sim.Job{}, nil, sim.Config{}, fmt.Errorf("%w: %v", ErrInvalidTimes, err)
	}

	sys, err := pkmodel.NewSystem(m.def, fit.Initial, fit.Params)
	if err != nil {
		return sim.Job{}, nil, sim.Config{}, &SimulationError{Err: err}
	}
	observe, err := sys.Observer(m.outputs)
	if err != nil {
		return sim.Job{}, nil, sim.Config{}, &SimulationError{Err: err}
	}

	cfg := m.opts.cfg
	cfg.LogTimes = append([]float64(nil), times...)
	cfg.Duration = times[len(times)-1] + 1

	return sim.Job{System: sys, Initial: sys.InitialState(), Schedule: m.sched}, observe, cfg, nil
}

func (m *MultiOutputModel) collect(res *sim.Result, observe func(dynamo.State, []float64)) *mat.Dense {
	out := mat.NewDense(len(res.States), len(m.outputs), nil)
	row := make([]float64, len(m.outputs))
	for i, x := range res.States {
		observe(x, row)
		out.SetRow(i, row)
	}
	return out
}
