package model

import "fmt"

// FitLayout names every slot of a fit-parameter vector. A vector is laid out
// as the initial amount of each state, in declared order, followed by each
// model parameter, in declared order.
type FitLayout struct {
	States     []string
	Parameters []string
}

func (l FitLayout) Len() int {
	return len(l.States) + len(l.Parameters)
}

// Names returns the slot names in vector order.
func (l FitLayout) Names() []string {
	names := make([]string, 0, l.Len())
	names = append(names, l.States...)
	return append(names, l.Parameters...)
}

// Index returns the slot of a state or parameter name, or -1.
func (l FitLayout) Index(name string) int {
	for i, n := range l.Names() {
		if n == name {
			return i
		}
	}
	return -1
}

// FitVector is a fit-parameter vector split into its two named parts.
type FitVector struct {
	Initial []float64
	Params  []float64
}

// Split copies p into its initial-state prefix and model-parameter suffix.
func (l FitLayout) Split(p []float64) (FitVector, error) {
	if len(p) != l.Len() {
		return FitVector{}, &ParameterCountError{Got: len(p), Want: l.Len()}
	}
	k := len(l.States)
	return FitVector{
		Initial: append([]float64(nil), p[:k]...),
		Params:  append([]float64(nil), p[k:]...),
	}, nil
}

// Join is the inverse of Split.
func (l FitLayout) Join(v FitVector) ([]float64, error) {
	if len(v.Initial) != len(l.States) || len(v.Params) != len(l.Parameters) {
		return nil, fmt.Errorf("model: fit vector has %d+%d values, layout needs %d+%d",
			len(v.Initial), len(v.Params), len(l.States), len(l.Parameters))
	}
	p := make([]float64, 0, l.Len())
	p = append(p, v.Initial...)
	return append(p, v.Params...), nil
}
