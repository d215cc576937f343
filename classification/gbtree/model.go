// Package gbtree implements the gradient boosted decision tree classifier
// used by the classification pipelines. Training is exact greedy with
// LightGBM-style regularisation and sampling; models serialise to a
// versioned JSON format with a hyperparameter side-car.
package gbtree

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/dotysan/rsgislib/core/parallel"
	"github.com/dotysan/rsgislib/pkg/errors"
)

// NodeType represents the type of a tree node.
type NodeType int

const (
	// LeafNode is a terminal node carrying a value.
	LeafNode NodeType = iota
	// NumericalNode splits on value <= threshold.
	NumericalNode
)

// Node is a single node in a decision tree.
type Node struct {
	NodeID     int
	ParentID   int // -1 for root
	LeftChild  int // -1 if leaf
	RightChild int // -1 if leaf
	NodeType   NodeType

	// Split information (internal nodes).
	SplitFeature int
	Threshold    float64
	DefaultLeft  bool
	Gain         float64

	// Leaf information.
	LeafValue float64
	LeafCount int
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree is a single decision tree in the ensemble.
type Tree struct {
	TreeIndex     int
	ClassIndex    int // class this tree contributes to (0 for binary)
	NumLeaves     int
	ShrinkageRate float64
	Nodes         []Node
}

// Predict returns the (shrinkage-scaled) raw output of this tree for one
// sample.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0

	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]

		if node.IsLeaf() {
			return node.LeafValue * t.ShrinkageRate
		}

		featureValue := features[node.SplitFeature]
		if math.IsNaN(featureValue) {
			if node.DefaultLeft {
				nodeID = node.LeftChild
			} else {
				nodeID = node.RightChild
			}
			continue
		}

		if featureValue <= node.Threshold {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}

	return 0.0
}

// ObjectiveType names the training objective.
type ObjectiveType string

const (
	// BinaryLogistic is binary classification with logistic loss.
	BinaryLogistic ObjectiveType = "binary"
	// MulticlassSoftmax is multiclass classification with softmax loss.
	MulticlassSoftmax ObjectiveType = "multiclass"
)

// Model is a trained boosted-tree ensemble.
type Model struct {
	Objective    ObjectiveType
	NumClass     int // 1 for binary
	NumIteration int
	LearningRate float64
	NumLeaves    int
	MaxDepth     int

	Trees []Tree

	NumFeatures  int
	FeatureNames []string

	// BestIteration is set when early stopping truncated training
	// (-1 when unused).
	BestIteration int

	// InitScore is the baseline raw prediction (per-class baselines for
	// multiclass live in InitScores).
	InitScore  float64
	InitScores []float64
}

// NewModel creates an empty model with the library defaults.
func NewModel() *Model {
	return &Model{
		Trees:         make([]Tree, 0),
		LearningRate:  0.1,
		NumLeaves:     31,
		MaxDepth:      -1,
		NumClass:      1,
		BestIteration: -1,
	}
}

// treesPerIteration is the number of trees added per boosting round.
func (m *Model) treesPerIteration() int {
	if m.NumClass > 2 {
		return m.NumClass
	}
	return 1
}

// RawScores returns the untransformed ensemble outputs for one sample,
// one value per class (a single value for binary).
func (m *Model) RawScores(features []float64) []float64 {
	k := m.treesPerIteration()
	scores := make([]float64, k)
	if k > 1 && len(m.InitScores) == k {
		copy(scores, m.InitScores)
	} else {
		for i := range scores {
			scores[i] = m.InitScore
		}
	}

	for i := range m.Trees {
		tree := &m.Trees[i]
		scores[tree.ClassIndex] += tree.Predict(features)
	}
	return scores
}

// PredictSingle returns probabilities for one sample: a single
// positive-class probability for binary models, or one probability per
// class for multiclass models.
func (m *Model) PredictSingle(features []float64) []float64 {
	scores := m.RawScores(features)

	switch m.Objective {
	case MulticlassSoftmax:
		return stableSoftmax(scores)
	default:
		return []float64{stableSigmoid(scores[0])}
	}
}

// Predict returns class labels for the rows of X: 0/1 for binary models,
// the argmax class index for multiclass.
func (m *Model) Predict(X mat.Matrix) (mat.Matrix, error) {
	probs, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}

	rows, cols := probs.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		if cols == 1 {
			if probs.At(i, 0) >= 0.5 {
				out.Set(i, 0, 1)
			}
			continue
		}
		best, bestP := 0, probs.At(i, 0)
		for j := 1; j < cols; j++ {
			if p := probs.At(i, j); p > bestP {
				best, bestP = j, p
			}
		}
		out.Set(i, 0, float64(best))
	}
	return out, nil
}

// PredictProba returns class probabilities for the rows of X. Rows are
// processed in parallel chunks.
func (m *Model) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if len(m.Trees) == 0 {
		return nil, errors.NewNotFittedError("GBTreeModel", "PredictProba")
	}

	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("PredictProba", m.NumFeatures, cols, 1)
	}

	outputCols := 1
	if m.NumClass > 2 {
		outputCols = m.NumClass
	}
	predictions := mat.NewDense(rows, outputCols, nil)

	parallel.ParallelizeWithThreshold(rows, 256, func(start, end int) {
		features := make([]float64, cols)
		for i := start; i < end; i++ {
			for j := 0; j < cols; j++ {
				features[j] = X.At(i, j)
			}
			pred := m.PredictSingle(features)
			for j := 0; j < outputCols; j++ {
				predictions.Set(i, j, pred[j])
			}
		}
	})

	return predictions, nil
}

// FeatureImportance returns normalised per-feature importance, either by
// split count ("split") or total gain ("gain").
func (m *Model) FeatureImportance(importanceType string) []float64 {
	importance := make([]float64, m.NumFeatures)

	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			switch importanceType {
			case "gain":
				importance[node.SplitFeature] += node.Gain
			default:
				importance[node.SplitFeature]++
			}
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return importance
}

// stableSigmoid computes the logistic function without overflow.
func stableSigmoid(x float64) float64 {
	if x >= 0 {
		return 1.0 / (1.0 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1.0 + e)
}

// stableSoftmax computes softmax with the max-subtraction trick.
func stableSoftmax(x []float64) []float64 {
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	expSum := 0.0
	result := make([]float64, len(x))
	for i, v := range x {
		result[i] = math.Exp(v - maxVal)
		expSum += result[i]
	}
	if expSum > 0 {
		for i := range result {
			result[i] /= expSum
		}
	}
	return result
}
