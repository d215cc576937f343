package gbtree

import (
	"encoding/json"
	"math/rand"
	"os"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// TrainingParams holds the boosting hyperparameters. JSON tags follow the
// LightGBM parameter names so a side-car written by the hyperparameter
// optimiser unmarshals directly into this struct.
type TrainingParams struct {
	// Basic parameters.
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	MaxDepth      int     `json:"max_depth"`
	MinDataInLeaf int     `json:"min_data_in_leaf"`

	// Regularisation.
	LambdaL1       float64 `json:"lambda_l1"`
	LambdaL2       float64 `json:"lambda_l2"`
	MinSplitGain   float64 `json:"min_split_gain"`
	MinChildWeight float64 `json:"min_child_weight"`

	// Sampling.
	FeatureFraction float64 `json:"feature_fraction"`
	BaggingFraction float64 `json:"bagging_fraction"`
	BaggingFreq     int     `json:"bagging_freq"`

	// Class balance.
	ScalePosWeight float64 `json:"scale_pos_weight"`
	IsUnbalance    bool    `json:"is_unbalance"`

	// Objective.
	Objective string `json:"objective"`
	NumClass  int    `json:"num_class"`

	// Early stopping and evaluation.
	EarlyStoppingRound int    `json:"early_stopping_round"`
	Metric             string `json:"metric"`

	// Other.
	Seed             int  `json:"seed"`
	NumThreads       int  `json:"num_threads"`
	Verbosity        int  `json:"verbosity"`
	BoostFromAverage bool `json:"boost_from_average"`
}

// DefaultParams returns the defaults used by the binary classification
// pipeline.
func DefaultParams() TrainingParams {
	return TrainingParams{
		NumIterations:      100,
		LearningRate:       0.1,
		NumLeaves:          31,
		MaxDepth:           -1,
		MinDataInLeaf:      20,
		LambdaL2:           0.0,
		LambdaL1:           0.0,
		MinSplitGain:       0.0,
		MinChildWeight:     1e-3,
		FeatureFraction:    1.0,
		BaggingFraction:    1.0,
		BaggingFreq:        0,
		ScalePosWeight:     1.0,
		Objective:          string(BinaryLogistic),
		Metric:             "auc",
		EarlyStoppingRound: 0,
		BoostFromAverage:   true,
	}
}

// applyDefaults fills zero-valued fields with defaults.
func (p *TrainingParams) applyDefaults() {
	if p.NumIterations == 0 {
		p.NumIterations = 100
	}
	if p.LearningRate == 0 {
		p.LearningRate = 0.1
	}
	if p.NumLeaves == 0 {
		p.NumLeaves = 31
	}
	if p.MinDataInLeaf == 0 {
		p.MinDataInLeaf = 20
	}
	if p.MinChildWeight == 0 {
		p.MinChildWeight = 1e-3
	}
	if p.FeatureFraction == 0 {
		p.FeatureFraction = 1.0
	}
	if p.BaggingFraction == 0 {
		p.BaggingFraction = 1.0
	}
	if p.ScalePosWeight == 0 {
		p.ScalePosWeight = 1.0
	}
	if p.Objective == "" {
		p.Objective = string(BinaryLogistic)
	}
	if p.Metric == "" {
		p.Metric = "auc"
	}
}

// Validate checks parameter ranges before training.
func (p *TrainingParams) Validate() error {
	if p.NumIterations < 1 {
		return errors.NewValidationError("num_iterations", "must be >= 1", p.NumIterations)
	}
	if p.LearningRate <= 0 || p.LearningRate > 1 {
		return errors.NewValidationError("learning_rate", "must be in (0, 1]", p.LearningRate)
	}
	if p.NumLeaves < 2 {
		return errors.NewValidationError("num_leaves", "must be >= 2", p.NumLeaves)
	}
	if p.FeatureFraction <= 0 || p.FeatureFraction > 1 {
		return errors.NewValidationError("feature_fraction", "must be in (0, 1]", p.FeatureFraction)
	}
	if p.BaggingFraction <= 0 || p.BaggingFraction > 1 {
		return errors.NewValidationError("bagging_fraction", "must be in (0, 1]", p.BaggingFraction)
	}
	if p.ScalePosWeight < 0 {
		return errors.NewValidationError("scale_pos_weight", "must be >= 0", p.ScalePosWeight)
	}
	if ObjectiveType(p.Objective) == MulticlassSoftmax && p.NumClass < 3 {
		return errors.NewValidationError("num_class", "multiclass objective needs >= 3 classes", p.NumClass)
	}
	return nil
}

// LoadParams reads a hyperparameter side-car JSON file.
func LoadParams(path string) (TrainingParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TrainingParams{}, errors.NewFileIOError("LoadParams", path, err)
	}

	var params TrainingParams
	if err := json.Unmarshal(data, &params); err != nil {
		return TrainingParams{}, errors.NewFileIOError("LoadParams", path, err)
	}
	params.applyDefaults()
	return params, nil
}

// SaveParams writes a hyperparameter side-car JSON file.
func SaveParams(path string, params TrainingParams) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal params")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewFileIOError("SaveParams", path, err)
	}
	return nil
}

// SamplingStrategy handles row and feature sampling during tree building.
type SamplingStrategy struct {
	rng             *rand.Rand
	featureFraction float64
	baggingFraction float64
	baggingFreq     int
}

// NewSamplingStrategy creates a sampling strategy seeded from the params.
func NewSamplingStrategy(params TrainingParams) *SamplingStrategy {
	seed := params.Seed
	if seed == 0 {
		seed = 42
	}
	return &SamplingStrategy{
		rng:             rand.New(rand.NewSource(int64(seed))),
		featureFraction: params.FeatureFraction,
		baggingFraction: params.BaggingFraction,
		baggingFreq:     params.BaggingFreq,
	}
}

// SampleFeatures returns the feature subset to consider this iteration.
func (s *SamplingStrategy) SampleFeatures(numFeatures int) []int {
	if s.featureFraction >= 1.0 || s.featureFraction <= 0 {
		return identityIndices(numFeatures)
	}

	numSample := int(float64(numFeatures) * s.featureFraction)
	if numSample < 1 {
		numSample = 1
	}
	if numSample > numFeatures {
		numSample = numFeatures
	}

	// Partial Fisher-Yates shuffle.
	perm := identityIndices(numFeatures)
	for i := 0; i < numSample; i++ {
		j := i + s.rng.Intn(numFeatures-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:numSample]
}

// SampleInstances returns the row subset to train on this iteration.
func (s *SamplingStrategy) SampleInstances(numInstances, iteration int) []int {
	if s.baggingFraction >= 1.0 || s.baggingFraction <= 0 {
		return identityIndices(numInstances)
	}
	// bagging_freq k: re-sample every k iterations; 0 disables bagging.
	if s.baggingFreq <= 0 || iteration%s.baggingFreq != 0 {
		return identityIndices(numInstances)
	}

	numSample := int(float64(numInstances) * s.baggingFraction)
	if numSample < 1 {
		numSample = 1
	}
	if numSample > numInstances {
		numSample = numInstances
	}

	perm := identityIndices(numInstances)
	for i := 0; i < numSample; i++ {
		j := i + s.rng.Intn(numInstances-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:numSample]
}

func identityIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// RegularizationStrategy applies L1/L2 regularisation to leaf values and
// split gains.
type RegularizationStrategy struct {
	lambdaL1 float64
	lambdaL2 float64
}

// NewRegularizationStrategy creates a regularisation strategy from params.
func NewRegularizationStrategy(params TrainingParams) *RegularizationStrategy {
	return &RegularizationStrategy{
		lambdaL1: params.LambdaL1,
		lambdaL2: params.LambdaL2,
	}
}

// LeafValue computes the regularised optimal leaf value, with L1 soft
// thresholding.
func (r *RegularizationStrategy) LeafValue(sumGrad, sumHess float64) float64 {
	const epsilon = 1e-10
	denominator := sumHess + r.lambdaL2 + epsilon

	if r.lambdaL1 > 0 {
		switch {
		case sumGrad > r.lambdaL1:
			return -(sumGrad - r.lambdaL1) / denominator
		case sumGrad < -r.lambdaL1:
			return -(sumGrad + r.lambdaL1) / denominator
		default:
			return 0.0
		}
	}
	return -sumGrad / denominator
}

// SplitGain computes the regularised gain of splitting a parent node.
func (r *RegularizationStrategy) SplitGain(leftGrad, leftHess, rightGrad, rightHess, parentGrad, parentHess float64) float64 {
	return r.nodeScore(leftGrad, leftHess) + r.nodeScore(rightGrad, rightHess) - r.nodeScore(parentGrad, parentHess)
}

func (r *RegularizationStrategy) nodeScore(sumGrad, sumHess float64) float64 {
	const epsilon = 1e-10
	denominator := sumHess + r.lambdaL2 + epsilon

	var numerator float64
	if r.lambdaL1 > 0 {
		switch {
		case sumGrad > r.lambdaL1:
			numerator = sumGrad - r.lambdaL1
		case sumGrad < -r.lambdaL1:
			numerator = sumGrad + r.lambdaL1
		default:
			return 0.0
		}
	} else {
		numerator = sumGrad
	}

	return 0.5 * numerator * numerator / denominator
}
