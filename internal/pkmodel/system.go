package pkmodel

import (
	"fmt"
	"math"

	"github.com/san-kum/pkpdsim/internal/dynamo"
)

type flow struct {
	kind     string
	from, to int
	p1, p2   int
}

// System is a Definition bound to one set of initial amounts and parameter
// values. It is immutable and safe for concurrent use.
type System struct {
	def     *Definition
	initial dynamo.State
	params  []float64
	volumes []float64 // per compartment, NaN when it has none
	flows   []flow
}

var _ dynamo.System = (*System)(nil)

// NewSystem binds initial amounts (one per compartment) and parameter values
// (one per parameter, declared order) to def. Volumes must be positive.
func NewSystem(def *Definition, initial, params []float64) (*System, error) {
	if len(initial) != len(def.Compartments) {
		return nil, fmt.Errorf("%w: %d initial values for %d compartments", dynamo.ErrDimensionMismatch, len(initial), len(def.Compartments))
	}
	if len(params) != len(def.Parameters) {
		return nil, fmt.Errorf("%w: %d values for %d parameters", dynamo.ErrDimensionMismatch, len(params), len(def.Parameters))
	}

	s := &System{
		def:     def,
		initial: dynamo.State(initial).Clone(),
		params:  append([]float64(nil), params...),
		volumes: make([]float64, len(def.Compartments)),
		flows:   make([]flow, 0, len(def.Flows)),
	}

	for i, c := range def.Compartments {
		s.volumes[i] = math.NaN()
		if c.Volume == "" {
			continue
		}
		v := s.params[def.parameterIndex(c.Volume)]
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("compartment %q: volume %s must be positive, got %g", c.Name, c.Volume, v)
		}
		s.volumes[i] = v
	}

	for _, f := range def.Flows {
		cf := flow{kind: f.Kind, from: def.compartmentIndex(f.From), to: -1, p1: -1, p2: -1}
		if f.To != "" {
			cf.to = def.compartmentIndex(f.To)
		}
		switch f.Kind {
		case FlowClearance, FlowExchange:
			cf.p1 = def.parameterIndex(f.Clearance)
		case FlowFirstOrder:
			cf.p1 = def.parameterIndex(f.Rate)
		case FlowMichaelisMenten:
			cf.p1 = def.parameterIndex(f.Vmax)
			cf.p2 = def.parameterIndex(f.Km)
		}
		s.flows = append(s.flows, cf)
	}

	return s, nil
}

func (s *System) StateDim() int {
	return len(s.def.Compartments)
}

func (s *System) InitialState() dynamo.State {
	return s.initial.Clone()
}

func (s *System) Derive(x dynamo.State, u dynamo.Input, t float64) dynamo.State {
	dx := make(dynamo.State, len(x))
	for i := range dx {
		dx[i] = u.At(i)
	}

	for _, f := range s.flows {
		var rate float64
		switch f.kind {
		case FlowClearance:
			rate = s.params[f.p1] / s.volumes[f.from] * x[f.from]
		case FlowFirstOrder:
			rate = s.params[f.p1] * x[f.from]
		case FlowMichaelisMenten:
			c := x[f.from] / s.volumes[f.from]
			rate = s.params[f.p1] * c / (s.params[f.p2] + c)
		case FlowExchange:
			rate = s.params[f.p1] * (x[f.from]/s.volumes[f.from] - x[f.to]/s.volumes[f.to])
		}
		dx[f.from] -= rate
		if f.to >= 0 {
			dx[f.to] += rate
		}
	}

	return dx
}

// Observe evaluates a state or concentration variable by qualified name.
func (s *System) Observe(x dynamo.State, name string) (float64, error) {
	for i, c := range s.def.Compartments {
		if c.StateName() == name {
			return x[i], nil
		}
		if c.ConcentrationName() == name {
			return x[i] / s.volumes[i], nil
		}
	}
	return 0, fmt.Errorf("unknown variable %q", name)
}

// Observer compiles names into a function mapping a state to their values,
// in the order given.
func (s *System) Observer(names []string) (func(x dynamo.State, out []float64), error) {
	type tap struct {
		index  int
		volume float64
	}
	taps := make([]tap, len(names))
	for k, name := range names {
		found := false
		for i, c := range s.def.Compartments {
			if c.StateName() == name {
				taps[k] = tap{index: i, volume: 1}
				found = true
				break
			}
			if c.ConcentrationName() == name {
				taps[k] = tap{index: i, volume: s.volumes[i]}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown variable %q", name)
		}
	}

	return func(x dynamo.State, out []float64) {
		for k, p := range taps {
			out[k] = x[p.index] / p.volume
		}
	}, nil
}
