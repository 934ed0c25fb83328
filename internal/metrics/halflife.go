package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// HalfLife estimates the terminal half-life from a log-linear fit over the
// last points samples with positive values.
type HalfLife struct {
	points int
	times  []float64
	logs   []float64
}

func NewHalfLife(points int) *HalfLife {
	if points < 2 {
		points = 2
	}
	return &HalfLife{points: points}
}

func (h *HalfLife) Name() string { return "half_life" }

func (h *HalfLife) Observe(t, v float64) {
	if v <= 0 {
		// Only a positive tail can be fitted on a log scale.
		h.times = h.times[:0]
		h.logs = h.logs[:0]
		return
	}
	h.times = append(h.times, t)
	h.logs = append(h.logs, math.Log(v))
	if len(h.times) > h.points {
		h.times = h.times[1:]
		h.logs = h.logs[1:]
	}
}

// Value is NaN when the tail is too short or not declining.
func (h *HalfLife) Value() float64 {
	if len(h.times) < h.points {
		return math.NaN()
	}
	_, slope := stat.LinearRegression(h.times, h.logs, nil, false)
	if !(slope < 0) {
		return math.NaN()
	}
	return math.Ln2 / -slope
}

func (h *HalfLife) Reset() {
	h.times = nil
	h.logs = nil
}
