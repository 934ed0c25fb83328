package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTimes is returned when the requested sample times are empty,
// negative, non-finite or not strictly increasing.
var ErrInvalidTimes = errors.New("model: invalid sample times")

// LoadError reports a model file that is missing, unreadable or malformed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model: failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ParameterCountError reports a parameter vector of the wrong length.
type ParameterCountError struct {
	Got  int
	Want int
}

func (e *ParameterCountError) Error() string {
	return fmt.Sprintf("model: got %d parameters, want %d", e.Got, e.Want)
}

// SimulationError reports a failed solve for a given parameter vector.
type SimulationError struct {
	Err error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("model: simulation failed: %v", e.Err)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}
