package gbtree

import (
	"math"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// ObjectiveFunction defines gradient/hessian/loss for one class score.
type ObjectiveFunction interface {
	// CalculateGradient returns the gradient for a single sample.
	CalculateGradient(rawScore, target float64) float64

	// CalculateHessian returns the hessian for a single sample.
	CalculateHessian(rawScore, target float64) float64

	// CalculateLoss returns the loss for a single sample.
	CalculateLoss(rawScore, target float64) float64

	// GetInitScore returns the baseline raw score for this objective,
	// optionally weighted per sample.
	GetInitScore(targets, weights []float64) float64

	// Name returns the objective name.
	Name() string
}

// BinaryLogisticObjective implements binary cross-entropy on raw scores
// (logits). Class weighting for unbalanced problems is applied by the
// trainer through sample weights.
type BinaryLogisticObjective struct{}

// NewBinaryLogisticObjective creates the binary logistic objective.
func NewBinaryLogisticObjective() *BinaryLogisticObjective {
	return &BinaryLogisticObjective{}
}

func (o *BinaryLogisticObjective) CalculateGradient(rawScore, target float64) float64 {
	return stableSigmoid(rawScore) - target
}

func (o *BinaryLogisticObjective) CalculateHessian(rawScore, target float64) float64 {
	p := stableSigmoid(rawScore)
	h := p * (1.0 - p)
	if h < 1e-16 {
		h = 1e-16
	}
	return h
}

func (o *BinaryLogisticObjective) CalculateLoss(rawScore, target float64) float64 {
	p := stableSigmoid(rawScore)
	const eps = 1e-15
	if p < eps {
		p = eps
	} else if p > 1-eps {
		p = 1 - eps
	}
	if target == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

// GetInitScore boosts from the (weighted) average positive rate:
// logit(mean(y)).
func (o *BinaryLogisticObjective) GetInitScore(targets, weights []float64) float64 {
	if len(targets) == 0 {
		return 0.0
	}

	var sum, wSum float64
	for i, t := range targets {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		sum += t * w
		wSum += w
	}
	if wSum == 0 {
		return 0.0
	}

	p := sum / wSum
	const eps = 1e-12
	if p < eps {
		p = eps
	} else if p > 1-eps {
		p = 1 - eps
	}
	return math.Log(p / (1 - p))
}

func (o *BinaryLogisticObjective) Name() string {
	return string(BinaryLogistic)
}

// SoftmaxObjective implements multiclass cross-entropy with a diagonal
// hessian approximation. The trainer calls PerClass to obtain gradients
// for every class score of a sample in one pass.
type SoftmaxObjective struct {
	numClasses int
}

// NewSoftmaxObjective creates the softmax objective for numClasses classes.
func NewSoftmaxObjective(numClasses int) *SoftmaxObjective {
	return &SoftmaxObjective{numClasses: numClasses}
}

// PerClass computes the per-class gradients and hessians for one sample
// from its raw scores and integer class label.
func (o *SoftmaxObjective) PerClass(rawScores []float64, label int) (grads, hess []float64) {
	probs := stableSoftmax(rawScores)
	grads = make([]float64, o.numClasses)
	hess = make([]float64, o.numClasses)
	for k := 0; k < o.numClasses; k++ {
		p := probs[k]
		if k == label {
			grads[k] = p - 1.0
		} else {
			grads[k] = p
		}
		h := p * (1.0 - p)
		if h < 1e-16 {
			h = 1e-16
		}
		hess[k] = h
	}
	return grads, hess
}

// Loss computes the cross-entropy for one sample.
func (o *SoftmaxObjective) Loss(rawScores []float64, label int) float64 {
	maxScore := rawScores[0]
	for _, s := range rawScores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	logSumExp := 0.0
	for _, s := range rawScores {
		logSumExp += math.Exp(s - maxScore)
	}
	logSumExp = math.Log(logSumExp) + maxScore

	return -(rawScores[label] - logSumExp)
}

// InitScores returns per-class baseline scores from class priors.
func (o *SoftmaxObjective) InitScores(labels []int) []float64 {
	counts := make([]float64, o.numClasses)
	for _, l := range labels {
		if l >= 0 && l < o.numClasses {
			counts[l]++
		}
	}
	n := float64(len(labels))
	scores := make([]float64, o.numClasses)
	for k := range scores {
		p := counts[k] / n
		const eps = 1e-12
		if p < eps {
			p = eps
		}
		scores[k] = math.Log(p)
	}
	return scores
}

func (o *SoftmaxObjective) Name() string {
	return string(MulticlassSoftmax)
}

// CreateObjectiveFunction resolves an objective name to its single-score
// implementation. Multiclass training does not go through this path; the
// trainer uses SoftmaxObjective directly.
func CreateObjectiveFunction(objective string) (ObjectiveFunction, error) {
	switch objective {
	case "binary", "binary_logloss", "logistic":
		return NewBinaryLogisticObjective(), nil
	default:
		return nil, errors.Newf("unknown objective: %s", objective)
	}
}
