package gbtree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// modelFormatVersion is bumped when the serialised schema changes.
const modelFormatVersion = "1"

// JSONModel is the serialised form of a trained ensemble.
type JSONModel struct {
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Objective     string         `json:"objective"`
	NumClass      int            `json:"num_class"`
	NumIteration  int            `json:"num_iteration"`
	BestIteration int            `json:"best_iteration"`
	NumFeatures   int            `json:"num_features"`
	LearningRate  float64        `json:"learning_rate"`
	NumLeaves     int            `json:"num_leaves"`
	MaxDepth      int            `json:"max_depth"`
	InitScore     float64        `json:"init_score"`
	InitScores    []float64      `json:"init_scores,omitempty"`
	FeatureNames  []string       `json:"feature_names,omitempty"`
	TreeInfo      []JSONTreeInfo `json:"tree_info"`
}

// JSONTreeInfo is one serialised tree.
type JSONTreeInfo struct {
	TreeIndex  int        `json:"tree_index"`
	ClassIndex int        `json:"class_index"`
	NumLeaves  int        `json:"num_leaves"`
	Shrinkage  float64    `json:"shrinkage"`
	Nodes      []JSONNode `json:"nodes"`
}

// JSONNode is one serialised tree node, flat-indexed as in memory.
type JSONNode struct {
	NodeID       int     `json:"node_id"`
	ParentID     int     `json:"parent_id"`
	LeftChild    int     `json:"left_child"`
	RightChild   int     `json:"right_child"`
	SplitFeature int     `json:"split_feature,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	DefaultLeft  bool    `json:"default_left,omitempty"`
	Gain         float64 `json:"gain,omitempty"`
	LeafValue    float64 `json:"leaf_value,omitempty"`
	LeafCount    int     `json:"leaf_count,omitempty"`
}

// SaveToJSON writes the model to path.
func (m *Model) SaveToJSON(path string) error {
	jm := JSONModel{
		Name:          "gbtree",
		Version:       modelFormatVersion,
		Objective:     string(m.Objective),
		NumClass:      m.NumClass,
		NumIteration:  m.NumIteration,
		BestIteration: m.BestIteration,
		NumFeatures:   m.NumFeatures,
		LearningRate:  m.LearningRate,
		NumLeaves:     m.NumLeaves,
		MaxDepth:      m.MaxDepth,
		InitScore:     m.InitScore,
		InitScores:    m.InitScores,
		FeatureNames:  m.FeatureNames,
		TreeInfo:      make([]JSONTreeInfo, 0, len(m.Trees)),
	}

	for _, tree := range m.Trees {
		ti := JSONTreeInfo{
			TreeIndex:  tree.TreeIndex,
			ClassIndex: tree.ClassIndex,
			NumLeaves:  tree.NumLeaves,
			Shrinkage:  tree.ShrinkageRate,
			Nodes:      make([]JSONNode, 0, len(tree.Nodes)),
		}
		for _, node := range tree.Nodes {
			ti.Nodes = append(ti.Nodes, JSONNode{
				NodeID:       node.NodeID,
				ParentID:     node.ParentID,
				LeftChild:    node.LeftChild,
				RightChild:   node.RightChild,
				SplitFeature: node.SplitFeature,
				Threshold:    node.Threshold,
				DefaultLeft:  node.DefaultLeft,
				Gain:         node.Gain,
				LeafValue:    node.LeafValue,
				LeafCount:    node.LeafCount,
			})
		}
		jm.TreeInfo = append(jm.TreeInfo, ti)
	}

	data, err := json.MarshalIndent(&jm, "", " ")
	if err != nil {
		return errors.Wrap(err, "marshal model")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewFileIOError("SaveToJSON", path, err)
	}
	return nil
}

// LoadFromJSON reads a model written by SaveToJSON.
func LoadFromJSON(path string) (*Model, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return nil, errors.NewValueError("LoadFromJSON", "path traversal detected")
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.NewFileIOError("LoadFromJSON", path, err)
	}

	var jm JSONModel
	if err := json.Unmarshal(data, &jm); err != nil {
		return nil, errors.NewFileIOError("LoadFromJSON", path, err)
	}
	if jm.Version == "" {
		return nil, errors.NewValueError("LoadFromJSON", "missing model format version")
	}

	m := NewModel()
	m.Objective = ObjectiveType(jm.Objective)
	m.NumClass = jm.NumClass
	m.NumIteration = jm.NumIteration
	m.BestIteration = jm.BestIteration
	m.NumFeatures = jm.NumFeatures
	m.LearningRate = jm.LearningRate
	m.NumLeaves = jm.NumLeaves
	m.MaxDepth = jm.MaxDepth
	m.InitScore = jm.InitScore
	m.InitScores = jm.InitScores
	m.FeatureNames = jm.FeatureNames

	for _, ti := range jm.TreeInfo {
		tree := Tree{
			TreeIndex:     ti.TreeIndex,
			ClassIndex:    ti.ClassIndex,
			NumLeaves:     ti.NumLeaves,
			ShrinkageRate: ti.Shrinkage,
			Nodes:         make([]Node, 0, len(ti.Nodes)),
		}
		for _, jn := range ti.Nodes {
			nodeType := NumericalNode
			if jn.LeftChild == -1 && jn.RightChild == -1 {
				nodeType = LeafNode
			}
			tree.Nodes = append(tree.Nodes, Node{
				NodeID:       jn.NodeID,
				ParentID:     jn.ParentID,
				LeftChild:    jn.LeftChild,
				RightChild:   jn.RightChild,
				NodeType:     nodeType,
				SplitFeature: jn.SplitFeature,
				Threshold:    jn.Threshold,
				DefaultLeft:  jn.DefaultLeft,
				Gain:         jn.Gain,
				LeafValue:    jn.LeafValue,
				LeafCount:    jn.LeafCount,
			})
		}
		m.Trees = append(m.Trees, tree)
	}

	return m, nil
}
