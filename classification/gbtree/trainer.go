package gbtree

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/dotysan/rsgislib/core/model"
	"github.com/dotysan/rsgislib/metrics"
	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

var (
	_ model.Fitter    = (*Trainer)(nil)
	_ model.Predictor = (*Model)(nil)
)

// Trainer grows a boosted-tree ensemble with exact greedy splits.
type Trainer struct {
	model.BaseEstimator

	params TrainingParams

	// Training data.
	X       *mat.Dense
	labels  []float64
	weights []float64

	// Optional validation data for early stopping.
	validX      *mat.Dense
	validLabels []float64

	// Current gradients/hessians for the class being grown.
	gradients []float64
	hessians  []float64

	// Cached raw ensemble scores, [row] for binary and [row][class] for
	// multiclass.
	rawScores   []float64
	rawScoresMC [][]float64

	trees     []Tree
	iteration int

	objective  ObjectiveFunction
	softmax    *SoftmaxObjective
	initScore  float64
	initScores []float64

	sampler   *SamplingStrategy
	reg       *RegularizationStrategy
	callbacks *CallbackList

	bestIteration int
}

// SplitInfo describes a candidate split.
type SplitInfo struct {
	Feature    int
	Threshold  float64
	Gain       float64
	LeftCount  int
	RightCount int
}

// NewTrainer creates a trainer with defaults filled in.
func NewTrainer(params TrainingParams) *Trainer {
	params.applyDefaults()
	return &Trainer{
		params:        params,
		bestIteration: -1,
	}
}

// WithCallbacks attaches training callbacks.
func (t *Trainer) WithCallbacks(callbacks ...Callback) *Trainer {
	t.callbacks = NewCallbackList(callbacks...)
	return t
}

// SetValidation provides a held-out set used for per-iteration evaluation
// and early stopping.
func (t *Trainer) SetValidation(X mat.Matrix, y mat.Matrix) error {
	xd, yd, err := toDense(X, y)
	if err != nil {
		return err
	}
	t.validX = xd
	t.validLabels = columnToSlice(yd)
	return nil
}

// Fit trains the ensemble on X with labels y. For binary objectives y must
// be {0,1}; for multiclass, integer class indices in [0, num_class).
func (t *Trainer) Fit(X, y mat.Matrix) error {
	if err := t.params.Validate(); err != nil {
		return err
	}

	xd, yd, err := toDense(X, y)
	if err != nil {
		return err
	}
	t.X = xd
	t.labels = columnToSlice(yd)

	rows, cols := t.X.Dims()
	if rows == 0 || cols == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if t.validX != nil {
		_, vCols := t.validX.Dims()
		if vCols != cols {
			return errors.NewDimensionError("Fit", cols, vCols, 1)
		}
	}

	t.sampler = NewSamplingStrategy(t.params)
	t.reg = NewRegularizationStrategy(t.params)
	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.trees = nil
	t.bestIteration = -1

	logger := log.GetLoggerWithName("gbtree.trainer").With(
		log.ModelNameKey, "GBTreeClassifier",
	)
	logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"objective", t.params.Objective,
	)

	if ObjectiveType(t.params.Objective) == MulticlassSoftmax {
		err = t.fitMulticlass(logger)
	} else {
		err = t.fitBinary(logger)
	}
	if err != nil {
		return err
	}

	t.SetFitted()
	logger.Info("Training finished",
		"trees", len(t.trees),
		"best_iteration", t.bestIteration,
	)
	return nil
}

func (t *Trainer) fitBinary(logger log.Logger) error {
	rows, _ := t.X.Dims()

	for _, l := range t.labels {
		if l != 0 && l != 1 {
			return errors.NewValueError("Fit", "binary labels must be 0 or 1")
		}
	}

	t.weights = t.binaryWeights()

	obj, err := CreateObjectiveFunction(t.params.Objective)
	if err != nil {
		return err
	}
	t.objective = obj

	if t.params.BoostFromAverage {
		t.initScore = obj.GetInitScore(t.labels, t.weights)
	}
	t.rawScores = make([]float64, rows)
	for i := range t.rawScores {
		t.rawScores[i] = t.initScore
	}

	stop := newEarlyStopState(t.params)

	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.iteration = iter

		if halted, err := t.runBeforeCallbacks(iter, logger); err != nil || halted {
			return err
		}

		// Gradients over the full set; the tree only sees sampled rows.
		for i := 0; i < rows; i++ {
			t.gradients[i] = t.objective.CalculateGradient(t.rawScores[i], t.labels[i]) * t.weights[i]
			t.hessians[i] = t.objective.CalculateHessian(t.rawScores[i], t.labels[i]) * t.weights[i]
		}
		if err := errors.CheckNumericalStability("gradient_update", t.gradients[:minInt(rows, 64)], iter); err != nil {
			return err
		}

		indices := t.sampler.SampleInstances(rows, iter)
		features := t.sampler.SampleFeatures(t.featureCount())

		tree := t.buildTree(indices, features, 0)
		t.trees = append(t.trees, tree)

		for i := 0; i < rows; i++ {
			t.rawScores[i] += tree.Predict(t.X.RawRowView(i))
		}

		evalResults := map[string]float64{
			"training_loss": t.binaryTrainingLoss(),
		}
		if t.validX != nil {
			score, err := t.evalBinaryValidation()
			if err != nil {
				return err
			}
			evalResults["valid_"+t.params.Metric] = score

			if stop.update(iter, score) {
				logger.Info("Early stopping",
					log.IterationKey, iter,
					"best_iteration", stop.bestIteration,
					"best_score", stop.bestScore,
				)
				t.truncateToIteration(stop.bestIteration, 1)
				t.bestIteration = stop.bestIteration
				return nil
			}
		}

		if halted, err := t.runAfterCallbacks(iter, evalResults, logger); err != nil || halted {
			return err
		}

		if t.params.Verbosity > 0 && iter%10 == 0 {
			logger.Debug("Training progress",
				log.IterationKey, iter,
				log.LossKey, evalResults["training_loss"],
			)
		}
	}

	if stop.bestIteration >= 0 {
		t.bestIteration = stop.bestIteration
	}
	return nil
}

func (t *Trainer) fitMulticlass(logger log.Logger) error {
	rows, _ := t.X.Dims()
	k := t.params.NumClass

	intLabels := make([]int, rows)
	for i, l := range t.labels {
		li := int(l)
		if float64(li) != l || li < 0 || li >= k {
			return errors.NewValueError("Fit", "multiclass labels must be integers in [0, num_class)")
		}
		intLabels[i] = li
	}

	t.weights = uniformWeights(rows)
	t.softmax = NewSoftmaxObjective(k)
	if t.params.BoostFromAverage {
		t.initScores = t.softmax.InitScores(intLabels)
	} else {
		t.initScores = make([]float64, k)
	}

	t.rawScoresMC = make([][]float64, rows)
	for i := range t.rawScoresMC {
		t.rawScoresMC[i] = make([]float64, k)
		copy(t.rawScoresMC[i], t.initScores)
	}

	stop := newEarlyStopState(t.params)

	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.iteration = iter

		if halted, err := t.runBeforeCallbacks(iter, logger); err != nil || halted {
			return err
		}

		indices := t.sampler.SampleInstances(rows, iter)
		features := t.sampler.SampleFeatures(t.featureCount())

		// Per-sample gradients for every class, then one tree per class.
		grads := make([][]float64, rows)
		hess := make([][]float64, rows)
		for i := 0; i < rows; i++ {
			grads[i], hess[i] = t.softmax.PerClass(t.rawScoresMC[i], intLabels[i])
		}

		for cls := 0; cls < k; cls++ {
			for i := 0; i < rows; i++ {
				t.gradients[i] = grads[i][cls]
				t.hessians[i] = hess[i][cls]
			}

			tree := t.buildTree(indices, features, cls)
			t.trees = append(t.trees, tree)

			for i := 0; i < rows; i++ {
				t.rawScoresMC[i][cls] += tree.Predict(t.X.RawRowView(i))
			}
		}

		evalResults := map[string]float64{
			"training_loss": t.multiclassTrainingLoss(intLabels),
		}
		if t.validX != nil {
			score, err := t.evalMulticlassValidation()
			if err != nil {
				return err
			}
			evalResults["valid_multi_logloss"] = score

			if stop.update(iter, score) {
				logger.Info("Early stopping",
					log.IterationKey, iter,
					"best_iteration", stop.bestIteration,
					"best_score", stop.bestScore,
				)
				t.truncateToIteration(stop.bestIteration, k)
				t.bestIteration = stop.bestIteration
				return nil
			}
		}

		if halted, err := t.runAfterCallbacks(iter, evalResults, logger); err != nil || halted {
			return err
		}
	}

	if stop.bestIteration >= 0 {
		t.bestIteration = stop.bestIteration
	}
	return nil
}

// binaryWeights derives per-sample weights from scale_pos_weight or
// is_unbalance.
func (t *Trainer) binaryWeights() []float64 {
	rows := len(t.labels)
	weights := uniformWeights(rows)

	posWeight := t.params.ScalePosWeight
	if t.params.IsUnbalance {
		var nPos, nNeg float64
		for _, l := range t.labels {
			if l == 1 {
				nPos++
			} else {
				nNeg++
			}
		}
		if nPos > 0 {
			posWeight = nNeg / nPos
		}
	}
	if posWeight <= 0 {
		posWeight = 1.0
	}

	for i, l := range t.labels {
		if l == 1 {
			weights[i] = posWeight
		}
	}
	return weights
}

// buildTree grows one tree on the sampled rows and features.
func (t *Trainer) buildTree(indices, features []int, classIdx int) Tree {
	tree := Tree{
		TreeIndex:     len(t.trees),
		ClassIndex:    classIdx,
		ShrinkageRate: t.params.LearningRate,
		Nodes:         []Node{},
	}

	t.buildNode(&tree, indices, features, -1, 0)
	tree.NumLeaves = countLeaves(&tree)
	return tree
}

// buildNode recursively grows the tree depth-first.
func (t *Trainer) buildNode(tree *Tree, indices, features []int, parentIdx, depth int) int {
	nodeIdx := len(tree.Nodes)

	numLeaves := countLeaves(tree)
	atLimit := (t.params.MaxDepth > 0 && depth >= t.params.MaxDepth) ||
		len(indices) < 2*t.params.MinDataInLeaf ||
		(t.params.NumLeaves > 0 && numLeaves >= t.params.NumLeaves-1)

	if !atLimit {
		bestSplit := t.findBestSplit(indices, features)
		if bestSplit.Gain > t.params.MinSplitGain && bestSplit.Gain > 0 {
			tree.Nodes = append(tree.Nodes, Node{
				NodeID:       nodeIdx,
				ParentID:     parentIdx,
				NodeType:     NumericalNode,
				SplitFeature: bestSplit.Feature,
				Threshold:    bestSplit.Threshold,
				Gain:         bestSplit.Gain,
				LeftChild:    -1,
				RightChild:   -1,
			})

			leftIndices, rightIndices := t.splitData(indices, bestSplit)
			leftChild := t.buildNode(tree, leftIndices, features, nodeIdx, depth+1)
			rightChild := t.buildNode(tree, rightIndices, features, nodeIdx, depth+1)
			tree.Nodes[nodeIdx].LeftChild = leftChild
			tree.Nodes[nodeIdx].RightChild = rightChild
			return nodeIdx
		}
	}

	// Leaf.
	var sumGrad, sumHess float64
	for _, idx := range indices {
		sumGrad += t.gradients[idx]
		sumHess += t.hessians[idx]
	}
	tree.Nodes = append(tree.Nodes, Node{
		NodeID:     nodeIdx,
		ParentID:   parentIdx,
		NodeType:   LeafNode,
		LeafValue:  t.reg.LeafValue(sumGrad, sumHess),
		LeafCount:  len(indices),
		LeftChild:  -1,
		RightChild: -1,
	})
	return nodeIdx
}

// findBestSplit scans the sampled features for the best gain.
func (t *Trainer) findBestSplit(indices, features []int) SplitInfo {
	bestSplit := SplitInfo{Gain: -math.MaxFloat64}
	for _, j := range features {
		split := t.findBestSplitForFeature(indices, j)
		if split.Gain > bestSplit.Gain {
			bestSplit = split
		}
	}
	return bestSplit
}

// findBestSplitForFeature does a sorted scan over one feature's values.
func (t *Trainer) findBestSplitForFeature(indices []int, feature int) SplitInfo {
	type featVal struct {
		value float64
		idx   int
	}
	values := make([]featVal, len(indices))
	for i, idx := range indices {
		values[i] = featVal{value: t.X.At(idx, feature), idx: idx}
	}
	sort.Slice(values, func(i, j int) bool { return values[i].value < values[j].value })

	var totalGrad, totalHess float64
	for _, idx := range indices {
		totalGrad += t.gradients[idx]
		totalHess += t.hessians[idx]
	}

	bestSplit := SplitInfo{Feature: feature, Gain: -math.MaxFloat64}

	var leftGrad, leftHess float64
	leftCount := 0

	for i := 0; i < len(values)-1; i++ {
		idx := values[i].idx
		leftGrad += t.gradients[idx]
		leftHess += t.hessians[idx]
		leftCount++

		if values[i].value == values[i+1].value {
			continue
		}

		rightGrad := totalGrad - leftGrad
		rightHess := totalHess - leftHess
		rightCount := len(indices) - leftCount

		if leftCount < t.params.MinDataInLeaf || rightCount < t.params.MinDataInLeaf {
			continue
		}
		// min_child_weight bounds the hessian mass on each side.
		if leftHess < t.params.MinChildWeight || rightHess < t.params.MinChildWeight {
			continue
		}

		gain := t.reg.SplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess)
		if gain > bestSplit.Gain {
			bestSplit.Gain = gain
			bestSplit.Threshold = (values[i].value + values[i+1].value) / 2
			bestSplit.LeftCount = leftCount
			bestSplit.RightCount = rightCount
		}
	}

	return bestSplit
}

func (t *Trainer) splitData(indices []int, split SplitInfo) ([]int, []int) {
	var leftIndices, rightIndices []int
	for _, idx := range indices {
		if t.X.At(idx, split.Feature) <= split.Threshold {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}
	return leftIndices, rightIndices
}

func (t *Trainer) binaryTrainingLoss() float64 {
	var loss, wSum float64
	for i, l := range t.labels {
		loss += t.objective.CalculateLoss(t.rawScores[i], l) * t.weights[i]
		wSum += t.weights[i]
	}
	if wSum == 0 {
		return 0
	}
	return loss / wSum
}

func (t *Trainer) multiclassTrainingLoss(intLabels []int) float64 {
	var loss float64
	for i := range intLabels {
		loss += t.softmax.Loss(t.rawScoresMC[i], intLabels[i])
	}
	return loss / float64(len(intLabels))
}

// evalBinaryValidation scores the validation set with the configured
// metric: "auc" (maximised) or "binary_logloss" (minimised).
func (t *Trainer) evalBinaryValidation() (float64, error) {
	m := t.GetModel()
	probs, err := m.PredictProba(t.validX)
	if err != nil {
		return 0, err
	}

	n := len(t.validLabels)
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		scores[i] = probs.At(i, 0)
	}

	switch t.params.Metric {
	case "binary_logloss", "logloss":
		return metrics.LogLoss(
			mat.NewVecDense(n, t.validLabels),
			mat.NewVecDense(n, scores),
		)
	default:
		return metrics.ROCAUCSlice(t.validLabels, scores)
	}
}

func (t *Trainer) evalMulticlassValidation() (float64, error) {
	m := t.GetModel()
	probs, err := m.PredictProba(t.validX)
	if err != nil {
		return 0, err
	}

	var loss float64
	const eps = 1e-15
	for i, l := range t.validLabels {
		p := probs.At(i, int(l))
		if p < eps {
			p = eps
		}
		loss += -math.Log(p)
	}
	return loss / float64(len(t.validLabels)), nil
}

// truncateToIteration drops trees grown after the best iteration.
func (t *Trainer) truncateToIteration(bestIter, treesPerIter int) {
	keep := (bestIter + 1) * treesPerIter
	if keep < len(t.trees) {
		t.trees = t.trees[:keep]
	}
}

func (t *Trainer) runBeforeCallbacks(iter int, logger log.Logger) (bool, error) {
	if t.callbacks == nil {
		return false, nil
	}
	if err := t.callbacks.BeforeIteration(iter, t.GetModel()); err != nil {
		return false, errors.Wrapf(err, "callback error at iteration %d", iter)
	}
	if t.callbacks.ShouldStop() {
		logger.Info("Training stopped by callback", log.IterationKey, iter)
		return true, nil
	}
	return false, nil
}

func (t *Trainer) runAfterCallbacks(iter int, evalResults map[string]float64, logger log.Logger) (bool, error) {
	if t.callbacks == nil {
		return false, nil
	}
	if err := t.callbacks.AfterIteration(iter, t.GetModel(), evalResults); err != nil {
		return false, errors.Wrapf(err, "callback error at iteration %d", iter)
	}
	if t.callbacks.ShouldStop() {
		logger.Info("Training stopped by callback", log.IterationKey, iter)
		return true, nil
	}
	return false, nil
}

// GetModel assembles the current ensemble into a Model.
func (t *Trainer) GetModel() *Model {
	m := NewModel()
	m.Trees = t.trees
	m.LearningRate = t.params.LearningRate
	m.NumLeaves = t.params.NumLeaves
	m.MaxDepth = t.params.MaxDepth
	m.NumFeatures = t.featureCount()
	m.Objective = ObjectiveType(t.params.Objective)
	m.InitScore = t.initScore
	m.InitScores = t.initScores
	m.BestIteration = t.bestIteration

	if t.params.NumClass > 0 {
		m.NumClass = t.params.NumClass
	}
	if m.NumClass > 2 {
		m.NumIteration = len(t.trees) / m.NumClass
	} else {
		m.NumIteration = len(t.trees)
	}
	return m
}

func (t *Trainer) featureCount() int {
	if t.X == nil {
		return 0
	}
	_, cols := t.X.Dims()
	return cols
}

// earlyStopState tracks validation scores across iterations.
type earlyStopState struct {
	rounds        int
	maximise      bool
	bestScore     float64
	bestIteration int
	noImprove     int
}

func newEarlyStopState(params TrainingParams) *earlyStopState {
	maximise := params.Metric == "auc"
	best := math.Inf(1)
	if maximise {
		best = math.Inf(-1)
	}
	return &earlyStopState{
		rounds:        params.EarlyStoppingRound,
		maximise:      maximise,
		bestScore:     best,
		bestIteration: -1,
	}
}

// update records a score and reports whether training should stop.
func (s *earlyStopState) update(iter int, score float64) bool {
	improved := score < s.bestScore
	if s.maximise {
		improved = score > s.bestScore
	}
	if improved {
		s.bestScore = score
		s.bestIteration = iter
		s.noImprove = 0
		return false
	}
	s.noImprove++
	return s.rounds > 0 && s.noImprove >= s.rounds
}

// toDense converts arbitrary matrices to Dense without copying when
// already dense.
func toDense(X, y mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	xRows, _ := X.Dims()
	yRows, yCols := y.Dims()
	if yCols != 1 {
		return nil, nil, errors.NewValueError("Fit", "y must be a column vector")
	}
	if xRows != yRows {
		return nil, nil, errors.NewDimensionError("Fit", xRows, yRows, 0)
	}

	xd, ok := X.(*mat.Dense)
	if !ok {
		xd = mat.DenseCopyOf(X)
	}
	yd, ok := y.(*mat.Dense)
	if !ok {
		yd = mat.DenseCopyOf(y)
	}
	return xd, yd, nil
}

func columnToSlice(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = m.At(i, 0)
	}
	return out
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0
	}
	return w
}

func countLeaves(tree *Tree) int {
	count := 0
	for i := range tree.Nodes {
		if tree.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
