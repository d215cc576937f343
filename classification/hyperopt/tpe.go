package hyperopt

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// TPEOptimizer maximises the objective with tree-structured Parzen
// estimators: completed trials are split into a good and a bad group by
// score, each group is modelled with a per-dimension Parzen window, and
// candidates drawn from the good model are ranked by the density ratio
// l(x)/g(x).
type TPEOptimizer struct {
	// MaxEvals is the total objective budget.
	MaxEvals int
	// StartupTrials evaluated uniformly at random before the Parzen
	// models kick in.
	StartupTrials int
	// Gamma is the quantile splitting good from bad trials.
	Gamma float64
	// Candidates drawn from the good model per step.
	Candidates int
	// Seed for the internal RNG. Zero means 42.
	Seed int64
}

// NewTPEOptimizer returns a TPE optimizer with the defaults used by the
// classification pipelines.
func NewTPEOptimizer(maxEvals int) *TPEOptimizer {
	return &TPEOptimizer{
		MaxEvals:      maxEvals,
		StartupTrials: 10,
		Gamma:         0.25,
		Candidates:    24,
	}
}

// Maximise implements Optimizer.
func (t *TPEOptimizer) Maximise(ctx context.Context, objective Objective, space Space) (*Result, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if t.MaxEvals < 1 {
		return nil, errors.NewValueError("TPEOptimizer.Maximise", "max evaluations must be >= 1")
	}

	seed := t.Seed
	if seed == 0 {
		seed = 42
	}
	rng := rand.New(rand.NewSource(seed))
	rec := newRecorder("hyperopt.tpe")

	startup := t.StartupTrials
	if startup > t.MaxEvals {
		startup = t.MaxEvals
	}

	for i := 0; i < startup; i++ {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		rec.evaluate(objective, space.Sample(rng))
	}

	for len(rec.trials) < t.MaxEvals {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		rec.evaluate(objective, t.suggest(rng, space, rec.trials))
	}

	return rec.result()
}

// suggest draws candidates from the good-trial Parzen model and keeps
// the one with the best l(x)/g(x) ratio.
func (t *TPEOptimizer) suggest(rng *rand.Rand, space Space, trials []Trial) map[string]float64 {
	good, bad := t.splitTrials(trials)
	if len(good) == 0 || len(bad) == 0 {
		return space.Sample(rng)
	}

	goodModel := fitParzen(space, good)
	badModel := fitParzen(space, bad)

	var best map[string]float64
	bestRatio := math.Inf(-1)
	for i := 0; i < t.Candidates; i++ {
		candidate := space.Clamp(goodModel.sample(rng))
		ratio := goodModel.logDensity(candidate) - badModel.logDensity(candidate)
		if ratio > bestRatio {
			bestRatio = ratio
			best = candidate
		}
	}
	if best == nil {
		return space.Sample(rng)
	}
	return best
}

// splitTrials partitions completed trials at the gamma quantile, best
// scores first. Failed trials always land in the bad group.
func (t *TPEOptimizer) splitTrials(trials []Trial) (good, bad []Trial) {
	ok := make([]Trial, 0, len(trials))
	for _, tr := range trials {
		if tr.Failed {
			bad = append(bad, tr)
			continue
		}
		ok = append(ok, tr)
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].Score > ok[j].Score })

	nGood := int(math.Ceil(t.Gamma * float64(len(ok))))
	if nGood < 1 {
		nGood = 1
	}
	if nGood > len(ok) {
		nGood = len(ok)
	}
	good = ok[:nGood]
	bad = append(bad, ok[nGood:]...)
	return good, bad
}

// parzenModel is an independent per-dimension kernel density estimate
// with Gaussian windows centred on the trial values.
type parzenModel struct {
	space   Space
	centres [][]float64
	widths  []float64
}

func fitParzen(space Space, trials []Trial) *parzenModel {
	centres := make([][]float64, len(space))
	widths := make([]float64, len(space))
	for d, p := range space {
		vals := make([]float64, 0, len(trials))
		for _, tr := range trials {
			vals = append(vals, tr.Params[p.Name])
		}
		centres[d] = vals

		// Silverman-style bandwidth with a floor so degenerate groups
		// still explore.
		span := p.Max - p.Min
		width := span / math.Max(1.0, math.Sqrt(float64(len(vals))))
		if width < span*0.01 {
			width = span * 0.01
		}
		widths[d] = width
	}
	return &parzenModel{space: space, centres: centres, widths: widths}
}

// sample draws one point by picking a random centre per dimension and
// perturbing it with the window width.
func (m *parzenModel) sample(rng *rand.Rand) map[string]float64 {
	params := make(map[string]float64, len(m.space))
	for d, p := range m.space {
		centre := m.centres[d][rng.Intn(len(m.centres[d]))]
		params[p.Name] = centre + rng.NormFloat64()*m.widths[d]
	}
	return params
}

// logDensity evaluates the log mixture density at a point.
func (m *parzenModel) logDensity(params map[string]float64) float64 {
	total := 0.0
	for d, p := range m.space {
		x := params[p.Name]
		kernel := distuv.Normal{Sigma: m.widths[d]}
		sum := 0.0
		for _, centre := range m.centres[d] {
			kernel.Mu = centre
			sum += kernel.Prob(x)
		}
		density := sum / float64(len(m.centres[d]))
		if density < 1e-300 {
			density = 1e-300
		}
		total += math.Log(density)
	}
	return total
}
