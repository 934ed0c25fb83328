// Package dynamo provides core simulation primitives for compartmental
// pharmacokinetic systems.
//
// The package defines the fundamental interfaces and types for numerical
// simulation of ordinary differential equations (ODEs):
//
//   - [State]: compartment amounts
//   - [Input]: zero-order input rates, e.g. running infusions
//   - [System]: interface for ODE systems (dA/dt = f(A, u, t))
//   - [Integrator], [AdaptiveIntegrator]: numerical steppers
//   - [Tolerance]: absolute/relative local error bounds
//
// # Example
//
//	sys, _ := pkmodel.NewSystem(def, def.InitialState(), def.ParameterValues())
//	s := sim.New(integrators.NewRK45())
//	sched, _ := def.Schedule()
//	result, _ := s.Run(ctx, sys, sys.InitialState(), sched, cfg)
//
// # Thread Safety
//
// Systems built by pkmodel are immutable and may be shared. Integrators keep
// scratch buffers and must not be shared between goroutines.
package dynamo
