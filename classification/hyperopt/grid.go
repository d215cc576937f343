package hyperopt

import (
	"context"
	"math/rand"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// GridOptimizer maximises the objective by coordinate sweeps over an
// evenly spaced grid. Each round sweeps every dimension in turn while
// holding the others at the incumbent, then shrinks the ranges around
// the best point and repeats. Full cartesian grids are intractable for
// nine-dimensional spaces, so the sweep keeps the evaluation count at
// rounds * dims * levels.
type GridOptimizer struct {
	// Levels is the number of grid points per dimension and sweep.
	Levels int
	// Rounds of sweep-then-refine.
	Rounds int
	// Shrink is the factor applied to each range after a round.
	Shrink float64
	// Seed for the starting point draw. Zero means 42.
	Seed int64
}

// NewGridOptimizer returns a grid optimizer with the defaults used by
// the classification pipelines.
func NewGridOptimizer() *GridOptimizer {
	return &GridOptimizer{
		Levels: 5,
		Rounds: 3,
		Shrink: 0.5,
	}
}

// Maximise implements Optimizer.
func (g *GridOptimizer) Maximise(ctx context.Context, objective Objective, space Space) (*Result, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if g.Levels < 2 {
		return nil, errors.NewValueError("GridOptimizer.Maximise", "grid needs at least 2 levels")
	}
	if g.Rounds < 1 {
		return nil, errors.NewValueError("GridOptimizer.Maximise", "at least 1 round required")
	}

	seed := g.Seed
	if seed == 0 {
		seed = 42
	}
	rng := rand.New(rand.NewSource(seed))
	rec := newRecorder("hyperopt.grid")

	// Working copy of the bounds, shrunk after every round.
	bounds := make(Space, len(space))
	copy(bounds, space)

	current := space.Sample(rng)
	rec.evaluate(objective, current)

	for round := 0; round < g.Rounds; round++ {
		for d, p := range bounds {
			if err := checkContext(ctx); err != nil {
				return nil, err
			}

			step := (p.Max - p.Min) / float64(g.Levels-1)
			for level := 0; level < g.Levels; level++ {
				candidate := cloneParams(rec.best.Params)
				candidate[p.Name] = p.Min + float64(level)*step
				candidate = space.Clamp(candidate)
				if seenBefore(rec.trials, candidate) {
					continue
				}
				rec.evaluate(objective, candidate)
			}

			// Re-centre this dimension's range on the incumbent.
			bounds[d] = shrinkAround(space[d], p, rec.best.Params[p.Name], g.Shrink)
		}
	}

	return rec.result()
}

// shrinkAround narrows a working range around centre, keeping it inside
// the original bounds.
func shrinkAround(original, working Param, centre, shrink float64) Param {
	halfSpan := (working.Max - working.Min) * shrink / 2
	out := working
	out.Min = centre - halfSpan
	out.Max = centre + halfSpan
	if out.Min < original.Min {
		out.Min = original.Min
	}
	if out.Max > original.Max {
		out.Max = original.Max
	}
	if !(out.Min < out.Max) {
		return original
	}
	return out
}

func seenBefore(trials []Trial, candidate map[string]float64) bool {
	for _, tr := range trials {
		if paramsEqual(tr.Params, candidate) {
			return true
		}
	}
	return false
}

func paramsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
