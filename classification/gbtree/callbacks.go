package gbtree

import (
	"fmt"
	"math"
	"time"

	"github.com/dotysan/rsgislib/pkg/log"
)

// CallbackEnv is the environment passed to training callbacks.
type CallbackEnv struct {
	Model        *Model
	Iteration    int
	BeginTime    time.Time
	EndTime      time.Time
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback is invoked around every boosting iteration.
type Callback func(env *CallbackEnv) error

// PrintEvaluation logs evaluation results every period iterations.
func PrintEvaluation(period int) Callback {
	logger := log.GetLoggerWithName("gbtree.eval")
	return func(env *CallbackEnv) error {
		if period > 0 && env.Iteration%period == 0 {
			fields := []any{log.IterationKey, env.Iteration}
			for name, value := range env.EvalResults {
				fields = append(fields, name, value)
			}
			logger.Info("Evaluation", fields...)
		}
		return nil
	}
}

// RecordEvaluation appends evaluation results to a history map.
func RecordEvaluation(history *map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		if *history == nil {
			*history = make(map[string][]float64)
		}
		for name, value := range env.EvalResults {
			(*history)[name] = append((*history)[name], value)
		}
		return nil
	}
}

// EarlyStoppingCallback stops training after rounds iterations without
// improvement of the named metric.
func EarlyStoppingCallback(rounds int, metric string, minimize bool) Callback {
	bestScore := math.Inf(1)
	if !minimize {
		bestScore = math.Inf(-1)
	}
	bestIteration := 0
	roundsNoImprove := 0
	logger := log.GetLoggerWithName("gbtree.early_stopping")

	return func(env *CallbackEnv) error {
		value, exists := env.EvalResults[metric]
		if !exists {
			return nil
		}

		improved := value < bestScore
		if !minimize {
			improved = value > bestScore
		}

		if improved {
			bestScore = value
			bestIteration = env.Iteration
			roundsNoImprove = 0
		} else {
			roundsNoImprove++
		}

		if roundsNoImprove >= rounds {
			logger.Info("Early stopping triggered",
				log.IterationKey, env.Iteration,
				"best_iteration", bestIteration,
				"metric", metric,
				"best_score", bestScore,
			)
			env.StopTraining = true
		}
		return nil
	}
}

// TimeLimit stops training after the given duration.
func TimeLimit(maxDuration time.Duration) Callback {
	startTime := time.Now()
	logger := log.GetLoggerWithName("gbtree.trainer")
	return func(env *CallbackEnv) error {
		if time.Since(startTime) > maxDuration {
			logger.Warn("Time limit reached", log.IterationKey, env.Iteration)
			env.StopTraining = true
		}
		return nil
	}
}

// ModelCheckpoint saves the model every period iterations.
func ModelCheckpoint(pathPrefix string, period int) Callback {
	return func(env *CallbackEnv) error {
		if period <= 0 || env.Iteration%period != 0 {
			return nil
		}
		filename := fmt.Sprintf("%s_iter_%d.json", pathPrefix, env.Iteration)
		return env.Model.SaveToJSON(filename)
	}
}

// CallbackList manages multiple callbacks sharing one environment.
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
}

// NewCallbackList creates a callback list.
func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{
		callbacks: callbacks,
		env: &CallbackEnv{
			EvalResults: make(map[string]float64),
		},
	}
}

// BeforeIteration runs the callbacks before an iteration.
func (cl *CallbackList) BeforeIteration(iteration int, model *Model) error {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.BeginTime = time.Now()

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
		if cl.env.StopTraining {
			break
		}
	}
	return nil
}

// AfterIteration runs the callbacks after an iteration.
func (cl *CallbackList) AfterIteration(iteration int, model *Model, evalResults map[string]float64) error {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.EndTime = time.Now()
	cl.env.EvalResults = evalResults

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop reports whether a callback requested a stop.
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}
