package hyperopt

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// BayesOptimizer maximises the objective with Gaussian-process
// surrogate modelling and the expected-improvement acquisition
// function. The space is scaled to the unit cube for the kernel.
type BayesOptimizer struct {
	// MaxEvals is the total objective budget, random warm-up included.
	MaxEvals int
	// InitPoints is the number of uniform random warm-up evaluations.
	InitPoints int
	// Candidates is how many random points the acquisition function is
	// scored on per step.
	Candidates int
	// LengthScale of the squared-exponential kernel in unit-cube space.
	LengthScale float64
	// Noise is the jitter added to the kernel diagonal.
	Noise float64
	// Seed for the internal RNG. Zero means 42.
	Seed int64
}

// NewBayesOptimizer returns a Bayesian optimizer with the defaults used
// by the classification pipelines.
func NewBayesOptimizer(maxEvals int) *BayesOptimizer {
	return &BayesOptimizer{
		MaxEvals:    maxEvals,
		InitPoints:  10,
		Candidates:  500,
		LengthScale: 0.2,
		Noise:       1e-6,
	}
}

// Maximise implements Optimizer.
func (b *BayesOptimizer) Maximise(ctx context.Context, objective Objective, space Space) (*Result, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if b.MaxEvals < 1 {
		return nil, errors.NewValueError("BayesOptimizer.Maximise", "max evaluations must be >= 1")
	}

	seed := b.Seed
	if seed == 0 {
		seed = 42
	}
	rng := rand.New(rand.NewSource(seed))
	rec := newRecorder("hyperopt.bayes")

	initPoints := b.InitPoints
	if initPoints > b.MaxEvals {
		initPoints = b.MaxEvals
	}

	var observedX [][]float64
	var observedY []float64

	record := func(params map[string]float64) {
		trial := rec.evaluate(objective, params)
		y := trial.Score
		if trial.Failed {
			// Penalise failed regions instead of poisoning the GP with -Inf.
			y = worstObserved(observedY)
		}
		observedX = append(observedX, space.ToVector(trial.Params))
		observedY = append(observedY, y)
	}

	for i := 0; i < initPoints; i++ {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		record(space.Sample(rng))
	}

	for len(rec.trials) < b.MaxEvals {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}

		next, err := b.suggest(rng, space, observedX, observedY)
		if err != nil {
			// Singular kernel matrix: fall back to a random draw.
			next = space.Sample(rng)
		}
		record(next)
	}

	return rec.result()
}

// suggest fits the GP posterior and returns the candidate with the
// highest expected improvement.
func (b *BayesOptimizer) suggest(rng *rand.Rand, space Space, xs [][]float64, ys []float64) (map[string]float64, error) {
	gp, err := fitGP(xs, ys, b.LengthScale, b.Noise)
	if err != nil {
		return nil, err
	}

	bestY := worstObserved(nil)
	for _, y := range ys {
		if y > bestY {
			bestY = y
		}
	}

	var bestParams map[string]float64
	bestEI := math.Inf(-1)
	for i := 0; i < b.Candidates; i++ {
		candidate := space.Sample(rng)
		mean, variance := gp.posterior(space.ToVector(candidate))
		ei := expectedImprovement(mean, variance, bestY)
		if ei > bestEI {
			bestEI = ei
			bestParams = candidate
		}
	}
	if bestParams == nil {
		return nil, errors.New("hyperopt: acquisition produced no candidate")
	}
	return bestParams, nil
}

// gaussianProcess is a fitted zero-mean GP with a squared-exponential
// kernel over observations centred on their mean.
type gaussianProcess struct {
	xs          [][]float64
	alpha       *mat.VecDense
	chol        *mat.Cholesky
	lengthScale float64
	yMean       float64
}

func fitGP(xs [][]float64, ys []float64, lengthScale, noise float64) (*gaussianProcess, error) {
	n := len(xs)
	if n == 0 {
		return nil, errors.New("hyperopt: no observations to fit")
	}

	yMean := 0.0
	for _, y := range ys {
		yMean += y
	}
	yMean /= float64(n)

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := sqExpKernel(xs[i], xs[j], lengthScale)
			if i == j {
				v += noise
			}
			k.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return nil, errors.Wrap(errors.ErrSingularMatrix, "hyperopt: kernel factorisation failed")
	}

	centred := mat.NewVecDense(n, nil)
	for i, y := range ys {
		centred.SetVec(i, y-yMean)
	}
	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, centred); err != nil {
		return nil, errors.Wrap(err, "hyperopt: kernel solve failed")
	}

	return &gaussianProcess{
		xs:          xs,
		alpha:       alpha,
		chol:        &chol,
		lengthScale: lengthScale,
		yMean:       yMean,
	}, nil
}

// posterior returns the predictive mean and variance at x.
func (gp *gaussianProcess) posterior(x []float64) (mean, variance float64) {
	n := len(gp.xs)
	kStar := mat.NewVecDense(n, nil)
	for i, xi := range gp.xs {
		kStar.SetVec(i, sqExpKernel(x, xi, gp.lengthScale))
	}

	mean = gp.yMean + mat.Dot(kStar, gp.alpha)

	v := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(v, kStar); err != nil {
		return mean, 1.0
	}
	variance = 1.0 - mat.Dot(kStar, v)
	if variance < 1e-12 {
		variance = 1e-12
	}
	return mean, variance
}

func sqExpKernel(a, b []float64, lengthScale float64) float64 {
	var dist2 float64
	for i := range a {
		d := a[i] - b[i]
		dist2 += d * d
	}
	return math.Exp(-dist2 / (2 * lengthScale * lengthScale))
}

// expectedImprovement scores a candidate under maximisation.
func expectedImprovement(mean, variance, bestY float64) float64 {
	sigma := math.Sqrt(variance)
	if sigma < 1e-12 {
		if mean > bestY {
			return mean - bestY
		}
		return 0
	}
	z := (mean - bestY) / sigma
	norm := distuv.UnitNormal
	return (mean-bestY)*norm.CDF(z) + sigma*norm.Prob(z)
}

func worstObserved(ys []float64) float64 {
	worst := math.Inf(-1)
	for _, y := range ys {
		if worst == math.Inf(-1) || y < worst {
			worst = y
		}
	}
	if math.IsInf(worst, -1) {
		return 0
	}
	return worst
}
