package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseFloats reads a comma separated list of numbers.
func parseFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = v
	}
	return out, nil
}

// maxTimes bounds the sample grid a time range may expand to.
const maxTimes = 1_000_000

// parseTimes accepts start:stop:step (stop included when on the grid) or a
// comma separated list.
func parseTimes(s string) ([]float64, error) {
	if !strings.Contains(s, ":") {
		times, err := parseFloats(s)
		if err != nil {
			return nil, err
		}
		if len(times) == 0 {
			return nil, fmt.Errorf("no sample times")
		}
		return times, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("time range %q is not start:stop:step", s)
	}
	bounds, err := parseFloats(strings.Join(parts, ","))
	if err != nil {
		return nil, err
	}
	start, stop, step := bounds[0], bounds[1], bounds[2]
	for _, v := range bounds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("time range %q must be finite", s)
		}
	}
	if !(step > 0) || stop < start {
		return nil, fmt.Errorf("time range %q needs step > 0 and stop >= start", s)
	}

	count := math.Floor((stop-start)/step+1e-9) + 1
	if count > maxTimes {
		return nil, fmt.Errorf("time range %q has more than %d samples", s, maxTimes)
	}
	n := int(count)
	times := make([]float64, n)
	for i := range times {
		times[i] = start + float64(i)*step
	}
	return times, nil
}

// vectorOrDefault parses s, falling back to def when s is empty.
func vectorOrDefault(s string, def []float64) ([]float64, error) {
	v, err := parseFloats(s)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return append([]float64(nil), def...), nil
	}
	return v, nil
}
