package gbtree

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// makeBinaryData builds a linearly separable two-feature problem with a
// noisy second feature.
func makeBinaryData(n int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0 := rng.Float64()
		x1 := rng.Float64()
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		if x0 > 0.5 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func makeMulticlassData(n int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		cls := i % 3
		X.Set(i, 0, float64(cls)+rng.NormFloat64()*0.15)
		X.Set(i, 1, float64(cls)*2+rng.NormFloat64()*0.15)
		y.Set(i, 0, float64(cls))
	}
	return X, y
}

func TestTrainer_Fit_BinaryClassification(t *testing.T) {
	X, y := makeBinaryData(400, 1)

	params := DefaultParams()
	params.NumIterations = 30
	params.NumLeaves = 7
	params.MinDataInLeaf = 5
	params.Seed = 7

	trainer := NewTrainer(params)
	if err := trainer.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	model := trainer.GetModel()
	if len(model.Trees) == 0 {
		t.Fatal("no trees were grown")
	}

	preds, err := model.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	correct := 0
	rows, _ := X.Dims()
	for i := 0; i < rows; i++ {
		if preds.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	acc := float64(correct) / float64(rows)
	if acc < 0.9 {
		t.Errorf("training accuracy = %.3f, want >= 0.9", acc)
	}
}

func TestTrainer_Fit_RejectsBadLabels(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{0, 1, 2, 1})

	trainer := NewTrainer(DefaultParams())
	if err := trainer.Fit(X, y); err == nil {
		t.Error("expected error for non-binary labels")
	}
}

func TestTrainer_PredictProba_Range(t *testing.T) {
	X, y := makeBinaryData(200, 2)

	params := DefaultParams()
	params.NumIterations = 10
	params.MinDataInLeaf = 5
	trainer := NewTrainer(params)
	if err := trainer.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	probs, err := trainer.GetModel().PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}

	rows, _ := probs.Dims()
	for i := 0; i < rows; i++ {
		p := probs.At(i, 0)
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("probability out of range at row %d: %f", i, p)
		}
	}
}

func TestTrainer_EarlyStopping(t *testing.T) {
	X, y := makeBinaryData(400, 3)
	Xv, yv := makeBinaryData(100, 4)

	params := DefaultParams()
	params.NumIterations = 200
	params.NumLeaves = 7
	params.MinDataInLeaf = 5
	params.EarlyStoppingRound = 5
	params.Metric = "auc"

	trainer := NewTrainer(params)
	if err := trainer.SetValidation(Xv, yv); err != nil {
		t.Fatalf("SetValidation failed: %v", err)
	}
	if err := trainer.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	model := trainer.GetModel()
	if len(model.Trees) >= 200 {
		t.Errorf("early stopping did not truncate: %d trees", len(model.Trees))
	}
	if model.BestIteration < 0 {
		t.Error("best iteration not recorded")
	}
}

func TestTrainer_Multiclass(t *testing.T) {
	X, y := makeMulticlassData(300, 5)

	params := DefaultParams()
	params.Objective = string(MulticlassSoftmax)
	params.NumClass = 3
	params.NumIterations = 20
	params.NumLeaves = 7
	params.MinDataInLeaf = 5

	trainer := NewTrainer(params)
	if err := trainer.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	model := trainer.GetModel()
	if len(model.Trees)%3 != 0 {
		t.Errorf("multiclass ensemble should hold 3 trees per iteration, got %d trees", len(model.Trees))
	}

	probs, err := model.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	_, cols := probs.Dims()
	if cols != 3 {
		t.Fatalf("expected 3 probability columns, got %d", cols)
	}

	// Probabilities per row must sum to one.
	rows, _ := probs.Dims()
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < 3; j++ {
			sum += probs.At(i, j)
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("row %d probabilities sum to %f", i, sum)
		}
	}

	preds, err := model.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if preds.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	if acc := float64(correct) / float64(rows); acc < 0.9 {
		t.Errorf("multiclass training accuracy = %.3f, want >= 0.9", acc)
	}
}

func TestTrainer_Deterministic(t *testing.T) {
	X, y := makeBinaryData(200, 6)

	params := DefaultParams()
	params.NumIterations = 10
	params.MinDataInLeaf = 5
	params.FeatureFraction = 0.5
	params.Seed = 99

	train := func() *Model {
		tr := NewTrainer(params)
		if err := tr.Fit(X, y); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		return tr.GetModel()
	}

	m1, m2 := train(), train()
	p1, _ := m1.PredictProba(X)
	p2, _ := m2.PredictProba(X)

	rows, _ := p1.Dims()
	for i := 0; i < rows; i++ {
		if p1.At(i, 0) != p2.At(i, 0) {
			t.Fatalf("predictions differ at row %d under fixed seed", i)
		}
	}
}

func TestModel_PredictNotFitted(t *testing.T) {
	m := NewModel()
	m.NumFeatures = 2
	X := mat.NewDense(1, 2, []float64{0.1, 0.2})

	_, err := m.PredictProba(X)
	if err == nil {
		t.Fatal("expected NotFittedError")
	}
	var nfe *errors.NotFittedError
	if !errors.As(err, &nfe) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
}

func TestModel_SaveLoadJSON(t *testing.T) {
	X, y := makeBinaryData(200, 8)

	params := DefaultParams()
	params.NumIterations = 10
	params.MinDataInLeaf = 5
	trainer := NewTrainer(params)
	if err := trainer.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	model := trainer.GetModel()

	path := filepath.Join(t.TempDir(), "model.json")
	if err := model.SaveToJSON(path); err != nil {
		t.Fatalf("SaveToJSON failed: %v", err)
	}

	loaded, err := LoadFromJSON(path)
	if err != nil {
		t.Fatalf("LoadFromJSON failed: %v", err)
	}
	if loaded.NumFeatures != model.NumFeatures {
		t.Errorf("NumFeatures = %d, want %d", loaded.NumFeatures, model.NumFeatures)
	}
	if len(loaded.Trees) != len(model.Trees) {
		t.Fatalf("tree count = %d, want %d", len(loaded.Trees), len(model.Trees))
	}

	p1, _ := model.PredictProba(X)
	p2, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba on loaded model failed: %v", err)
	}
	rows, _ := p1.Dims()
	for i := 0; i < rows; i++ {
		if math.Abs(p1.At(i, 0)-p2.At(i, 0)) > 1e-12 {
			t.Fatalf("loaded model prediction differs at row %d", i)
		}
	}
}

func TestSamplingStrategy_FeatureFraction(t *testing.T) {
	params := DefaultParams()
	params.FeatureFraction = 0.5
	params.Seed = 1

	s := NewSamplingStrategy(params)
	feats := s.SampleFeatures(10)
	if len(feats) != 5 {
		t.Errorf("sampled %d features, want 5", len(feats))
	}

	seen := make(map[int]bool)
	for _, f := range feats {
		if f < 0 || f >= 10 {
			t.Errorf("feature index out of range: %d", f)
		}
		if seen[f] {
			t.Errorf("duplicate feature index: %d", f)
		}
		seen[f] = true
	}
}

func TestRegularization_L1SoftThreshold(t *testing.T) {
	params := DefaultParams()
	params.LambdaL1 = 1.0
	r := NewRegularizationStrategy(params)

	// |sumGrad| below lambda_l1 must give a zero leaf.
	if v := r.LeafValue(0.5, 10); v != 0 {
		t.Errorf("LeafValue(0.5) = %f, want 0", v)
	}
	if v := r.LeafValue(2.0, 10); v >= 0 {
		t.Errorf("LeafValue(2.0) = %f, want negative", v)
	}
	if v := r.LeafValue(-2.0, 10); v <= 0 {
		t.Errorf("LeafValue(-2.0) = %f, want positive", v)
	}
}

func TestParams_SaveLoadRoundTrip(t *testing.T) {
	params := DefaultParams()
	params.MaxDepth = 8
	params.NumLeaves = 42
	params.LambdaL1 = 1.5
	params.ScalePosWeight = 3.25

	path := filepath.Join(t.TempDir(), "params.json")
	if err := SaveParams(path, params); err != nil {
		t.Fatalf("SaveParams failed: %v", err)
	}

	loaded, err := LoadParams(path)
	if err != nil {
		t.Fatalf("LoadParams failed: %v", err)
	}
	if loaded.MaxDepth != 8 || loaded.NumLeaves != 42 {
		t.Errorf("structural params not preserved: %+v", loaded)
	}
	if loaded.LambdaL1 != 1.5 || loaded.ScalePosWeight != 3.25 {
		t.Errorf("regularisation params not preserved: %+v", loaded)
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TrainingParams)
	}{
		{"zero learning rate", func(p *TrainingParams) { p.LearningRate = -0.1 }},
		{"one leaf", func(p *TrainingParams) { p.NumLeaves = 1 }},
		{"bad feature fraction", func(p *TrainingParams) { p.FeatureFraction = 1.5 }},
		{"multiclass without classes", func(p *TrainingParams) {
			p.Objective = string(MulticlassSoftmax)
			p.NumClass = 2
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			tt.mutate(&params)
			if err := params.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEarlyStopState(t *testing.T) {
	params := DefaultParams()
	params.EarlyStoppingRound = 3
	params.Metric = "auc"

	s := newEarlyStopState(params)
	if s.update(0, 0.7) {
		t.Error("should not stop on first improvement")
	}
	if s.update(1, 0.8) {
		t.Error("should not stop while improving")
	}
	if s.update(2, 0.75) || s.update(3, 0.75) {
		t.Error("should not stop before the round budget")
	}
	if !s.update(4, 0.75) {
		t.Error("should stop after 3 rounds without improvement")
	}
	if s.bestIteration != 1 {
		t.Errorf("bestIteration = %d, want 1", s.bestIteration)
	}
}
