// Package metrics implements the evaluation metrics used when training and
// validating classifiers: accuracy, ROC AUC, log loss and confusion matrices.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// Accuracy computes the fraction of predictions matching the true labels.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracySlice is a convenience wrapper over label slices.
func AccuracySlice(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, errors.NewDimensionError("Accuracy", len(yTrue), len(yPred), 0)
	}
	if len(yTrue) == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	return Accuracy(mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(yPred), yPred))
}

// ROCAUC computes the area under the ROC curve for binary labels {0,1}
// against predicted scores. Ties are handled with mid-ranks
// (Mann-Whitney U formulation).
func ROCAUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("ROCAUC", "empty vector")
	}
	if yScore.Len() != n {
		return 0, errors.NewDimensionError("ROCAUC", n, yScore.Len(), 0)
	}

	nPos, nNeg := 0, 0
	for i := 0; i < n; i++ {
		switch yTrue.AtVec(i) {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return 0, errors.NewValueError("ROCAUC", "labels must be 0 or 1")
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, errors.NewValueError("ROCAUC", "need at least one positive and one negative sample")
	}

	type scored struct {
		score float64
		label float64
	}
	items := make([]scored, n)
	for i := 0; i < n; i++ {
		items[i] = scored{score: yScore.AtVec(i), label: yTrue.AtVec(i)}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score < items[j].score })

	// Sum of positive-class ranks, with mid-ranks for tied scores.
	var rankSum float64
	i := 0
	for i < n {
		j := i
		for j < n && items[j].score == items[i].score {
			j++
		}
		// ranks are 1-based; tied block [i, j) shares the average rank
		midRank := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			if items[k].label == 1 {
				rankSum += midRank
			}
		}
		i = j
	}

	u := rankSum - float64(nPos)*float64(nPos+1)/2.0
	return u / (float64(nPos) * float64(nNeg)), nil
}

// ROCAUCSlice is a convenience wrapper over label/score slices.
func ROCAUCSlice(yTrue, yScore []float64) (float64, error) {
	if len(yTrue) != len(yScore) {
		return 0, errors.NewDimensionError("ROCAUC", len(yTrue), len(yScore), 0)
	}
	if len(yTrue) == 0 {
		return 0, errors.NewValueError("ROCAUC", "empty vector")
	}
	return ROCAUC(mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(yScore), yScore))
}

// LogLoss computes the binary cross-entropy between labels {0,1} and
// predicted probabilities. Probabilities are clipped away from 0 and 1.
func LogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("LogLoss", "empty vector")
	}
	if yProb.Len() != n {
		return 0, errors.NewDimensionError("LogLoss", n, yProb.Len(), 0)
	}

	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		p := yProb.AtVec(i)
		if p < eps {
			p = eps
		} else if p > 1-eps {
			p = 1 - eps
		}
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ConfusionMatrix computes an nClasses x nClasses matrix where entry (i, j)
// counts samples of true class i predicted as class j. Labels must be
// integers in [0, nClasses).
func ConfusionMatrix(yTrue, yPred []float64, nClasses int) (*mat.Dense, error) {
	if nClasses <= 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "nClasses must be positive")
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.NewDimensionError("ConfusionMatrix", len(yTrue), len(yPred), 0)
	}

	cm := mat.NewDense(nClasses, nClasses, nil)
	for i := range yTrue {
		ti, pi := int(yTrue[i]), int(yPred[i])
		if ti < 0 || ti >= nClasses {
			return nil, errors.NewValueError("ConfusionMatrix", "true label out of range")
		}
		if pi < 0 || pi >= nClasses {
			return nil, errors.NewValueError("ConfusionMatrix", "predicted label out of range")
		}
		cm.Set(ti, pi, cm.At(ti, pi)+1)
	}
	return cm, nil
}

// F1Score computes the F1 score for the positive class of binary labels.
// Returns 0 when precision and recall are both undefined.
func F1Score(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, errors.NewDimensionError("F1Score", len(yTrue), len(yPred), 0)
	}
	if len(yTrue) == 0 {
		return 0, errors.NewValueError("F1Score", "empty vector")
	}

	var tp, fp, fn float64
	for i := range yTrue {
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			tp++
		case yPred[i] == 1 && yTrue[i] == 0:
			fp++
		case yPred[i] == 0 && yTrue[i] == 1:
			fn++
		}
	}
	if tp == 0 {
		return 0, nil
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	return 2 * precision * recall / (precision + recall), nil
}
