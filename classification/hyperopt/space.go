package hyperopt

import (
	"math"
	"math/rand"

	"github.com/dotysan/rsgislib/classification/gbtree"
	"github.com/dotysan/rsgislib/pkg/errors"
)

// Param describes one bounded search dimension. Integer dimensions are
// sampled continuously and rounded before evaluation.
type Param struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Integer bool    `json:"integer,omitempty"`
}

// Space is an ordered set of search dimensions.
type Space []Param

// DefaultClassifierSpace returns the search space used for boosted tree
// classifiers when the caller does not provide one.
func DefaultClassifierSpace() Space {
	return Space{
		{Name: "max_depth", Min: 3, Max: 10, Integer: true},
		{Name: "num_leaves", Min: 6, Max: 50, Integer: true},
		{Name: "min_data_in_leaf", Min: 3, Max: 50, Integer: true},
		{Name: "lambda_l1", Min: 0, Max: 5},
		{Name: "lambda_l2", Min: 0, Max: 3},
		{Name: "feature_fraction", Min: 0.1, Max: 0.9},
		{Name: "bagging_fraction", Min: 0.8, Max: 1.0},
		{Name: "min_split_gain", Min: 0.001, Max: 0.1},
		{Name: "min_child_weight", Min: 1, Max: 50},
	}
}

// Validate checks that every dimension has a usable range.
func (s Space) Validate() error {
	if len(s) == 0 {
		return errors.NewValueError("Space.Validate", "search space is empty")
	}
	seen := make(map[string]bool, len(s))
	for _, p := range s {
		if p.Name == "" {
			return errors.NewValueError("Space.Validate", "unnamed dimension")
		}
		if seen[p.Name] {
			return errors.Newf("hyperopt: duplicate dimension %q", p.Name)
		}
		seen[p.Name] = true
		if !(p.Min < p.Max) {
			return errors.Newf("hyperopt: dimension %q has empty range [%g, %g]", p.Name, p.Min, p.Max)
		}
	}
	return nil
}

// Sample draws a uniform random point from the space.
func (s Space) Sample(rng *rand.Rand) map[string]float64 {
	params := make(map[string]float64, len(s))
	for _, p := range s {
		params[p.Name] = p.round(p.Min + rng.Float64()*(p.Max-p.Min))
	}
	return params
}

// Clamp pulls every coordinate back inside its bounds and rounds
// integer dimensions.
func (s Space) Clamp(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(s))
	for _, p := range s {
		v := params[p.Name]
		if v < p.Min {
			v = p.Min
		}
		if v > p.Max {
			v = p.Max
		}
		out[p.Name] = p.round(v)
	}
	return out
}

// ToVector encodes a parameter map as a unit-scaled vector in the
// space's dimension order.
func (s Space) ToVector(params map[string]float64) []float64 {
	vec := make([]float64, len(s))
	for i, p := range s {
		vec[i] = (params[p.Name] - p.Min) / (p.Max - p.Min)
	}
	return vec
}

// FromVector decodes a unit-scaled vector back into a parameter map,
// clamping to the bounds.
func (s Space) FromVector(vec []float64) map[string]float64 {
	params := make(map[string]float64, len(s))
	for i, p := range s {
		v := vec[i]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		params[p.Name] = p.round(p.Min + v*(p.Max-p.Min))
	}
	return params
}

func (p Param) round(v float64) float64 {
	if p.Integer {
		return math.Round(v)
	}
	return v
}

// ApplyToTrainingParams copies the searched values onto a set of
// training parameters. Unknown names are ignored so callers can carry
// extra metadata in the map.
func ApplyToTrainingParams(base gbtree.TrainingParams, params map[string]float64) gbtree.TrainingParams {
	out := base
	for name, v := range params {
		switch name {
		case "max_depth":
			out.MaxDepth = int(v)
		case "num_leaves":
			out.NumLeaves = int(v)
		case "min_data_in_leaf":
			out.MinDataInLeaf = int(v)
		case "lambda_l1":
			out.LambdaL1 = v
		case "lambda_l2":
			out.LambdaL2 = v
		case "feature_fraction":
			out.FeatureFraction = v
		case "bagging_fraction":
			out.BaggingFraction = v
		case "min_split_gain":
			out.MinSplitGain = v
		case "min_child_weight":
			out.MinChildWeight = v
		case "learning_rate":
			out.LearningRate = v
		case "num_iterations":
			out.NumIterations = int(v)
		case "scale_pos_weight":
			out.ScalePosWeight = v
		}
	}
	return out
}

// WriteParams persists the searched values as a training parameter
// side-car next to a model file.
func WriteParams(path string, base gbtree.TrainingParams, params map[string]float64) error {
	return gbtree.SaveParams(path, ApplyToTrainingParams(base, params))
}
