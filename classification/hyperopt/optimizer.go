// Package hyperopt provides hyperparameter search for gradient boosted
// tree classifiers. Three back-ends are available: Gaussian-process
// Bayesian optimisation, tree-structured Parzen estimators, and a
// refining coordinate grid search. All of them maximise a user supplied
// objective over a bounded parameter space.
package hyperopt

import (
	"context"
	"math"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

// Objective evaluates one parameter assignment and returns a score to
// maximise. Cross-validated AUC is the usual choice for classifiers.
type Objective func(params map[string]float64) (float64, error)

// Trial records one objective evaluation.
type Trial struct {
	Number int                `json:"number"`
	Params map[string]float64 `json:"params"`
	Score  float64            `json:"score"`
	Failed bool               `json:"failed,omitempty"`
}

// Result holds the outcome of an optimisation run.
type Result struct {
	BestParams map[string]float64 `json:"best_params"`
	BestScore  float64            `json:"best_score"`
	Trials     []Trial            `json:"trials"`
}

// Optimizer searches a parameter space for the assignment maximising an
// objective.
type Optimizer interface {
	// Maximise runs the search. It honours ctx cancellation between
	// objective evaluations.
	Maximise(ctx context.Context, objective Objective, space Space) (*Result, error)
}

// recorder accumulates trials and tracks the incumbent. Failed
// evaluations are kept with the worst possible score so the search
// steers away from that region without aborting the run.
type recorder struct {
	name   string
	logger log.Logger
	trials []Trial
	best   Trial
}

func newRecorder(component string) *recorder {
	return &recorder{
		name:   component,
		logger: log.GetLoggerWithName(component),
		best:   Trial{Number: -1, Score: math.Inf(-1)},
	}
}

// evaluate runs the objective once and records the trial.
func (r *recorder) evaluate(objective Objective, params map[string]float64) Trial {
	score, err := objective(params)
	trial := Trial{
		Number: len(r.trials),
		Params: cloneParams(params),
		Score:  score,
	}
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		trial.Score = math.Inf(-1)
		trial.Failed = true
		r.logger.Warn("Objective evaluation failed",
			log.TrialKey, trial.Number,
			log.ErrAttrKey, err,
		)
	}

	r.trials = append(r.trials, trial)
	if trial.Score > r.best.Score {
		r.best = trial
		r.logger.Info("New best trial",
			log.TrialKey, trial.Number,
			"score", trial.Score,
			log.HyperParamsKey, trial.Params,
		)
	}
	return trial
}

func (r *recorder) result() (*Result, error) {
	if r.best.Number < 0 {
		return nil, errors.New("hyperopt: no successful trials")
	}
	// The incumbent sitting in the first half of a long run means the
	// model-guided trials never improved on the startup phase.
	if n := len(r.trials); n >= 10 && r.best.Number < n/2 {
		errors.Warn(errors.NewConvergenceWarning(r.name, n,
			"no improvement in the second half of the search"))
	}
	return &Result{
		BestParams: cloneParams(r.best.Params),
		BestScore:  r.best.Score,
		Trials:     r.trials,
	}, nil
}

func cloneParams(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "hyperopt: search cancelled")
	default:
		return nil
	}
}
