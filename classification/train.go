package classification

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/dotysan/rsgislib/classification/gbtree"
	"github.com/dotysan/rsgislib/classification/hyperopt"
	"github.com/dotysan/rsgislib/metrics"
	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

// BinarySamples names the staged sample files for a two-class problem.
// Class 1 is the class of interest (label 1), class 2 is everything
// else (label 0).
type BinarySamples struct {
	Class1Train string
	Class1Valid string
	Class1Test  string
	Class2Train string
	Class2Valid string
	Class2Test  string
}

// binarySet is one loaded train/valid/test partition.
type binarySet struct {
	X    *mat.Dense
	Y    *mat.Dense
	NPos int
	NNeg int
}

// minClassSamples is the per-class size below which reported scores
// are unlikely to be stable.
const minClassSamples = 50

func loadBinarySet(cls1, cls2 string) (*binarySet, error) {
	pos, err := ReadSamples(cls1)
	if err != nil {
		return nil, err
	}
	neg, err := ReadSamples(cls2)
	if err != nil {
		return nil, err
	}
	X, y, err := buildLabelled([]*mat.Dense{pos, neg}, []float64{1, 0})
	if err != nil {
		return nil, err
	}
	nPos, _ := pos.Dims()
	nNeg, _ := neg.Dims()
	warnSmallClasses(nPos, nNeg)
	return &binarySet{X: X, Y: y, NPos: nPos, NNeg: nNeg}, nil
}

// warnSmallClasses flags class sample counts too small for stable
// scores.
func warnSmallClasses(nPos, nNeg int) {
	if nPos < minClassSamples {
		errors.Warn(errors.NewSmallSampleWarning("class 1", nPos, minClassSamples))
	}
	if nNeg < minClassSamples {
		errors.Warn(errors.NewSmallSampleWarning("class 2", nNeg, minClassSamples))
	}
}

// scalePosWeight balances an unbalanced two-class problem by weighting
// the class of interest with n_other/n_interest, never below one.
func scalePosWeight(nPos, nNeg int) float64 {
	if nPos == 0 {
		return 1.0
	}
	w := float64(nNeg) / float64(nPos)
	if w < 1.0 {
		return 1.0
	}
	return w
}

// OptimiseBinaryClassifier searches for boosting hyperparameters that
// maximise validation AUC and writes the winning set as a parameter
// side-car at paramsOut. The base parameters supply everything the
// search space does not cover.
func OptimiseBinaryClassifier(ctx context.Context, opt hyperopt.Optimizer, samples BinarySamples,
	base gbtree.TrainingParams, paramsOut string) (gbtree.TrainingParams, error) {

	logger := log.GetLoggerWithName("classification.optimise")

	train, err := loadBinarySet(samples.Class1Train, samples.Class2Train)
	if err != nil {
		return base, err
	}
	valid, err := loadBinarySet(samples.Class1Valid, samples.Class2Valid)
	if err != nil {
		return base, err
	}

	base.ScalePosWeight = scalePosWeight(train.NPos, train.NNeg)
	logger.Info("Starting hyperparameter search",
		log.SamplesKey, train.NPos+train.NNeg,
		"scale_pos_weight", base.ScalePosWeight,
	)

	objective := func(params map[string]float64) (float64, error) {
		candidate := hyperopt.ApplyToTrainingParams(base, params)
		auc, _, err := trainAndScoreBinary(candidate, train, valid)
		return auc, err
	}

	result, err := opt.Maximise(ctx, objective, hyperopt.DefaultClassifierSpace())
	if err != nil {
		return base, err
	}

	best := hyperopt.ApplyToTrainingParams(base, result.BestParams)
	logger.Info("Hyperparameter search finished",
		"trials", len(result.Trials),
		log.AUCKey, result.BestScore,
		log.HyperParamsKey, result.BestParams,
	)

	if paramsOut != "" {
		if err := gbtree.SaveParams(paramsOut, best); err != nil {
			return best, err
		}
	}
	return best, nil
}

// TrainBinaryClassifier trains a binary classifier with early stopping
// on the validation partition, reports test-set skill, and saves the
// model with its parameter side-car next to it.
func TrainBinaryClassifier(samples BinarySamples, params gbtree.TrainingParams,
	modelOut, paramsOut string) (*gbtree.Model, error) {

	logger := log.GetLoggerWithName("classification.trainer")
	start := time.Now()

	train, err := loadBinarySet(samples.Class1Train, samples.Class2Train)
	if err != nil {
		return nil, err
	}
	valid, err := loadBinarySet(samples.Class1Valid, samples.Class2Valid)
	if err != nil {
		return nil, err
	}

	if params.ScalePosWeight <= 1.0 {
		params.ScalePosWeight = scalePosWeight(train.NPos, train.NNeg)
	}
	if params.EarlyStoppingRound == 0 {
		params.EarlyStoppingRound = 10
	}

	trainer := gbtree.NewTrainer(params)
	if err := trainer.SetValidation(valid.X, valid.Y); err != nil {
		return nil, err
	}
	if err := trainer.Fit(train.X, train.Y); err != nil {
		return nil, err
	}
	model := trainer.GetModel()

	fields := []any{
		log.SamplesKey, train.NPos + train.NNeg,
		log.DurationSecondsKey, time.Since(start).Seconds(),
	}
	if samples.Class1Test != "" && samples.Class2Test != "" {
		test, err := loadBinarySet(samples.Class1Test, samples.Class2Test)
		if err != nil {
			return nil, err
		}
		auc, acc, err := scoreBinary(model, test)
		if err != nil {
			return nil, err
		}
		fields = append(fields, log.PhaseKey, log.PhaseTesting, log.AUCKey, auc, log.AccuracyKey, acc)
	}
	logger.Info("Classifier trained", fields...)

	if modelOut != "" {
		if err := model.SaveToJSON(modelOut); err != nil {
			return nil, err
		}
	}
	if paramsOut != "" {
		if err := gbtree.SaveParams(paramsOut, params); err != nil {
			return nil, err
		}
	}
	return model, nil
}

// TrainOptBinaryClassifier runs the hyperparameter search and then
// trains the final model with the winning parameters.
func TrainOptBinaryClassifier(ctx context.Context, opt hyperopt.Optimizer, samples BinarySamples,
	base gbtree.TrainingParams, modelOut, paramsOut string) (*gbtree.Model, error) {

	best, err := OptimiseBinaryClassifier(ctx, opt, samples, base, "")
	if err != nil {
		return nil, err
	}
	return TrainBinaryClassifier(samples, best, modelOut, paramsOut)
}

// trainAndScoreBinary trains one candidate and returns validation AUC
// and accuracy.
func trainAndScoreBinary(params gbtree.TrainingParams, train, valid *binarySet) (float64, float64, error) {
	trainer := gbtree.NewTrainer(params)
	if err := trainer.Fit(train.X, train.Y); err != nil {
		return 0, 0, err
	}
	return scoreBinary(trainer.GetModel(), valid)
}

// scoreBinary computes AUC and accuracy of a model on a labelled set.
func scoreBinary(model *gbtree.Model, set *binarySet) (auc, acc float64, err error) {
	probs, err := model.PredictProba(set.X)
	if err != nil {
		return 0, 0, err
	}
	rows, _ := probs.Dims()
	scores := make([]float64, rows)
	labels := make([]float64, rows)
	preds := make([]float64, rows)
	for i := 0; i < rows; i++ {
		scores[i] = probs.At(i, 0)
		labels[i] = set.Y.At(i, 0)
		if scores[i] >= 0.5 {
			preds[i] = 1
		}
	}
	auc, err = metrics.ROCAUCSlice(labels, scores)
	if err != nil {
		return 0, 0, err
	}
	acc, err = metrics.AccuracySlice(labels, preds)
	if err != nil {
		return 0, 0, err
	}
	return auc, acc, nil
}

// OptimiseMulticlassClassifier searches for boosting hyperparameters
// that maximise validation accuracy across all classes and writes the
// winning set as a parameter side-car at paramsOut.
func OptimiseMulticlassClassifier(ctx context.Context, opt hyperopt.Optimizer,
	classes map[string]ClassInfo, base gbtree.TrainingParams,
	paramsOut string) (gbtree.TrainingParams, error) {

	ordered, err := SortClassInfo(classes)
	if err != nil {
		return base, err
	}

	logger := log.GetLoggerWithName("classification.optimise")

	trainPaths := make([]string, len(ordered))
	labels := make([]float64, len(ordered))
	validPaths := make([]string, len(ordered))
	for i, info := range ordered {
		if info.TrainFileH5 == "" || info.ValidFileH5 == "" {
			return base, errors.Newf(
				"classification: class %q is missing train or valid sample files", info.Name)
		}
		trainPaths[i] = info.TrainFileH5
		validPaths[i] = info.ValidFileH5
		labels[i] = float64(info.ID)
	}

	X, y, err := loadLabelled(trainPaths, labels)
	if err != nil {
		return base, err
	}
	Xv, yv, err := loadLabelled(validPaths, labels)
	if err != nil {
		return base, err
	}

	base.Objective = string(gbtree.MulticlassSoftmax)
	base.NumClass = len(ordered)
	if base.Metric == "" || base.Metric == "auc" {
		base.Metric = "multi_logloss"
	}

	rows, _ := X.Dims()
	logger.Info("Starting hyperparameter search",
		log.ClassesKey, len(ordered),
		log.SamplesKey, rows,
	)

	objective := func(params map[string]float64) (float64, error) {
		candidate := hyperopt.ApplyToTrainingParams(base, params)
		trainer := gbtree.NewTrainer(candidate)
		if err := trainer.Fit(X, y); err != nil {
			return 0, err
		}
		return scoreMulticlass(trainer.GetModel(), Xv, yv)
	}

	result, err := opt.Maximise(ctx, objective, hyperopt.DefaultClassifierSpace())
	if err != nil {
		return base, err
	}

	best := hyperopt.ApplyToTrainingParams(base, result.BestParams)
	logger.Info("Hyperparameter search finished",
		"trials", len(result.Trials),
		log.AccuracyKey, result.BestScore,
		log.HyperParamsKey, result.BestParams,
	)

	if paramsOut != "" {
		if err := gbtree.SaveParams(paramsOut, best); err != nil {
			return best, err
		}
	}
	return best, nil
}

// scoreMulticlass computes argmax accuracy of a softmax model on a
// labelled set.
func scoreMulticlass(model *gbtree.Model, X, y *mat.Dense) (float64, error) {
	probs, err := model.PredictProba(X)
	if err != nil {
		return 0, err
	}
	rows, cols := probs.Dims()
	labels := make([]float64, rows)
	preds := make([]float64, rows)
	for i := 0; i < rows; i++ {
		labels[i] = y.At(i, 0)
		best := 0
		for k := 1; k < cols; k++ {
			if probs.At(i, k) > probs.At(i, best) {
				best = k
			}
		}
		preds[i] = float64(best)
	}
	return metrics.AccuracySlice(labels, preds)
}

// TrainMulticlassClassifier trains a softmax classifier from per-class
// staged samples. Classes are validated with SortClassInfo before
// loading; the returned order matches the model's class indices.
func TrainMulticlassClassifier(classes map[string]ClassInfo, params gbtree.TrainingParams,
	modelOut, paramsOut string) (*gbtree.Model, []ClassInfo, error) {

	ordered, err := SortClassInfo(classes)
	if err != nil {
		return nil, nil, err
	}

	logger := log.GetLoggerWithName("classification.trainer")
	start := time.Now()

	trainPaths := make([]string, len(ordered))
	trainLabels := make([]float64, len(ordered))
	validPaths := make([]string, len(ordered))
	for i, info := range ordered {
		if info.TrainFileH5 == "" || info.ValidFileH5 == "" {
			return nil, nil, errors.Newf(
				"classification: class %q is missing train or valid sample files", info.Name)
		}
		trainPaths[i] = info.TrainFileH5
		validPaths[i] = info.ValidFileH5
		trainLabels[i] = float64(info.ID)
	}

	X, y, err := loadLabelled(trainPaths, trainLabels)
	if err != nil {
		return nil, nil, err
	}
	Xv, yv, err := loadLabelled(validPaths, trainLabels)
	if err != nil {
		return nil, nil, err
	}

	params.Objective = string(gbtree.MulticlassSoftmax)
	params.NumClass = len(ordered)
	if params.Metric == "" || params.Metric == "auc" {
		params.Metric = "multi_logloss"
	}
	if params.EarlyStoppingRound == 0 {
		params.EarlyStoppingRound = 10
	}

	trainer := gbtree.NewTrainer(params)
	if err := trainer.SetValidation(Xv, yv); err != nil {
		return nil, nil, err
	}
	if err := trainer.Fit(X, y); err != nil {
		return nil, nil, err
	}
	model := trainer.GetModel()

	rows, _ := X.Dims()
	logger.Info("Multiclass classifier trained",
		log.ClassesKey, len(ordered),
		log.SamplesKey, rows,
		log.DurationSecondsKey, time.Since(start).Seconds(),
	)

	if modelOut != "" {
		if err := model.SaveToJSON(modelOut); err != nil {
			return nil, nil, err
		}
	}
	if paramsOut != "" {
		if err := gbtree.SaveParams(paramsOut, params); err != nil {
			return nil, nil, err
		}
	}
	return model, ordered, nil
}
