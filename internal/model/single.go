package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pkpdsim/internal/pkmodel"
)

// SingleOutputModel is a MultiOutputModel restricted to one output channel.
type SingleOutputModel struct {
	*MultiOutputModel
}

// NewSingleOutputModel loads a model file whose output list has exactly one
// entry, or whose channel is chosen with WithOutputs.
func NewSingleOutputModel(path string, opts ...Option) (*SingleOutputModel, error) {
	def, err := pkmodel.Resolve(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return SingleFromDefinition(def, opts...)
}

func SingleFromDefinition(def *pkmodel.Definition, opts ...Option) (*SingleOutputModel, error) {
	m, err := FromDefinition(def, opts...)
	if err != nil {
		return nil, err
	}
	if m.NOutputs() != 1 {
		return nil, &LoadError{Path: def.Source(), Err: fmt.Errorf("single output model needs exactly one output, got %d", m.NOutputs())}
	}
	return &SingleOutputModel{MultiOutputModel: m}, nil
}

func (m *SingleOutputModel) OutputName() string {
	return m.outputs[0]
}

// SimulateValues returns the single output column as a slice.
func (m *SingleOutputModel) SimulateValues(parameters, times []float64) ([]float64, error) {
	out, err := m.SimulateContext(context.Background(), parameters, times)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, out), nil
}
