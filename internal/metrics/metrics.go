// Package metrics summarises a simulated or observed concentration-time
// curve with exposure metrics.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Metric consumes samples in increasing time order.
type Metric interface {
	Name() string
	Observe(t, c float64)
	Value() float64
	Reset()
}

// Standard returns fresh Cmax, Tmax, AUC and terminal half-life metrics.
func Standard() []Metric {
	return []Metric{NewCmax(), NewTmax(), NewAUC(), NewHalfLife(3)}
}

// Compute runs ms over one curve and returns the finite values by name.
// Each metric is reset first.
func Compute(times, values []float64, ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for i, t := range times {
			m.Observe(t, values[i])
		}
		if v := m.Value(); !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[m.Name()] = v
		}
	}
	return out
}

type Cmax struct {
	max     float64
	samples int
}

func NewCmax() *Cmax { return &Cmax{} }

func (c *Cmax) Name() string { return "cmax" }

func (c *Cmax) Observe(t, v float64) {
	if c.samples == 0 || v > c.max {
		c.max = v
	}
	c.samples++
}

func (c *Cmax) Value() float64 {
	if c.samples == 0 {
		return math.NaN()
	}
	return c.max
}

func (c *Cmax) Reset() {
	c.max = 0
	c.samples = 0
}

// Tmax is the first time the maximum is reached.
type Tmax struct {
	cmax Cmax
	at   float64
}

func NewTmax() *Tmax { return &Tmax{} }

func (m *Tmax) Name() string { return "tmax" }

func (m *Tmax) Observe(t, v float64) {
	if m.cmax.samples == 0 || v > m.cmax.max {
		m.at = t
	}
	m.cmax.Observe(t, v)
}

func (m *Tmax) Value() float64 {
	if m.cmax.samples == 0 {
		return math.NaN()
	}
	return m.at
}

func (m *Tmax) Reset() {
	m.cmax.Reset()
	m.at = 0
}

// AUC is the linear trapezoidal area under the curve between the first and
// last sample.
type AUC struct {
	sum     float64
	lastT   float64
	lastV   float64
	samples int
}

func NewAUC() *AUC { return &AUC{} }

func (a *AUC) Name() string { return "auc" }

func (a *AUC) Observe(t, v float64) {
	if a.samples > 0 {
		a.sum += 0.5 * (t - a.lastT) * (v + a.lastV)
	}
	a.lastT, a.lastV = t, v
	a.samples++
}

func (a *AUC) Value() float64 {
	if a.samples < 2 {
		return math.NaN()
	}
	return a.sum
}

func (a *AUC) Reset() {
	*a = AUC{}
}

// Exposure computes the standard metrics for every column of outputs, a
// len(times) x len(names) matrix. Keys are "name/metric".
func Exposure(names []string, times []float64, outputs mat.Matrix) map[string]float64 {
	out := make(map[string]float64)
	for j, name := range names {
		for metric, v := range Compute(times, mat.Col(nil, j, outputs), Standard()...) {
			out[name+"/"+metric] = v
		}
	}
	return out
}
