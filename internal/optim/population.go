package optim

import (
	"context"
	"math"
	"sync"
)

// populationSize follows the usual 4 + 3 ln(n) rule for evolution strategies.
func populationSize(n int) int {
	return 4 + int(3*math.Log(float64(n)))
}

// evaluateAll scores points concurrently with up to workers goroutines.
func evaluateAll(ctx context.Context, p Problem, points [][]float64) ([]float64, error) {
	scores := make([]float64, len(points))
	if p.Workers <= 1 {
		for i, x := range points {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			scores[i] = evaluate(p, x)
		}
		return scores, nil
	}

	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				scores[i] = evaluate(p, points[i])
			}
		}()
	}
	for i := range points {
		idx <- i
	}
	close(idx)
	wg.Wait()

	return scores, ctx.Err()
}

// stall tracks iterations without significant improvement.
type stall struct {
	best      float64
	count     int
	threshold float64
	limit     int
}

func newStall(p Problem) *stall {
	return &stall{best: math.Inf(1), threshold: p.Threshold, limit: p.MaxUnchangedIterations}
}

// update returns true once the best value has not improved for limit rounds.
func (s *stall) update(f float64) bool {
	if s.best-f > s.threshold {
		s.best = f
		s.count = 0
		return false
	}
	s.count++
	return s.count >= s.limit
}
