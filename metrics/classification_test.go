package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAccuracy(t *testing.T) {
	yTrue := mat.NewVecDense(5, []float64{1, 0, 1, 1, 0})
	yPred := mat.NewVecDense(5, []float64{1, 0, 0, 1, 0})

	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		t.Fatalf("Accuracy returned error: %v", err)
	}
	if math.Abs(acc-0.8) > 1e-12 {
		t.Errorf("Accuracy = %f, want 0.8", acc)
	}
}

func TestAccuracyDimensionMismatch(t *testing.T) {
	yTrue := mat.NewVecDense(3, []float64{1, 0, 1})
	yPred := mat.NewVecDense(2, []float64{1, 0})

	if _, err := Accuracy(yTrue, yPred); err == nil {
		t.Error("expected dimension error")
	}
}

func TestROCAUCPerfectSeparation(t *testing.T) {
	yTrue := mat.NewVecDense(6, []float64{0, 0, 0, 1, 1, 1})
	yScore := mat.NewVecDense(6, []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9})

	auc, err := ROCAUC(yTrue, yScore)
	if err != nil {
		t.Fatalf("ROCAUC returned error: %v", err)
	}
	if math.Abs(auc-1.0) > 1e-12 {
		t.Errorf("AUC = %f, want 1.0", auc)
	}
}

func TestROCAUCRandomScores(t *testing.T) {
	// Identical scores for every sample: AUC must be exactly 0.5.
	yTrue := mat.NewVecDense(4, []float64{0, 1, 0, 1})
	yScore := mat.NewVecDense(4, []float64{0.5, 0.5, 0.5, 0.5})

	auc, err := ROCAUC(yTrue, yScore)
	if err != nil {
		t.Fatalf("ROCAUC returned error: %v", err)
	}
	if math.Abs(auc-0.5) > 1e-12 {
		t.Errorf("AUC = %f, want 0.5", auc)
	}
}

func TestROCAUCKnownValue(t *testing.T) {
	// One inversion among 2x2 pairs gives AUC of 0.75.
	yTrue := mat.NewVecDense(4, []float64{0, 0, 1, 1})
	yScore := mat.NewVecDense(4, []float64{0.1, 0.6, 0.4, 0.8})

	auc, err := ROCAUC(yTrue, yScore)
	if err != nil {
		t.Fatalf("ROCAUC returned error: %v", err)
	}
	if math.Abs(auc-0.75) > 1e-12 {
		t.Errorf("AUC = %f, want 0.75", auc)
	}
}

func TestROCAUCSingleClass(t *testing.T) {
	yTrue := mat.NewVecDense(3, []float64{1, 1, 1})
	yScore := mat.NewVecDense(3, []float64{0.2, 0.5, 0.9})

	if _, err := ROCAUC(yTrue, yScore); err == nil {
		t.Error("expected error for single-class labels")
	}
}

func TestLogLoss(t *testing.T) {
	yTrue := mat.NewVecDense(2, []float64{1, 0})
	yProb := mat.NewVecDense(2, []float64{0.8, 0.1})

	ll, err := LogLoss(yTrue, yProb)
	if err != nil {
		t.Fatalf("LogLoss returned error: %v", err)
	}
	want := -(math.Log(0.8) + math.Log(0.9)) / 2
	if math.Abs(ll-want) > 1e-12 {
		t.Errorf("LogLoss = %f, want %f", ll, want)
	}
}

func TestLogLossClipsProbabilities(t *testing.T) {
	yTrue := mat.NewVecDense(2, []float64{1, 0})
	yProb := mat.NewVecDense(2, []float64{0.0, 1.0})

	ll, err := LogLoss(yTrue, yProb)
	if err != nil {
		t.Fatalf("LogLoss returned error: %v", err)
	}
	if math.IsInf(ll, 0) || math.IsNaN(ll) {
		t.Errorf("LogLoss should be finite after clipping, got %f", ll)
	}
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := []float64{0, 0, 1, 1, 2, 2}
	yPred := []float64{0, 1, 1, 1, 2, 0}

	cm, err := ConfusionMatrix(yTrue, yPred, 3)
	if err != nil {
		t.Fatalf("ConfusionMatrix returned error: %v", err)
	}

	want := [][]float64{
		{1, 1, 0},
		{0, 2, 0},
		{1, 0, 1},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if cm.At(i, j) != want[i][j] {
				t.Errorf("cm[%d][%d] = %f, want %f", i, j, cm.At(i, j), want[i][j])
			}
		}
	}
}

func TestF1Score(t *testing.T) {
	yTrue := []float64{1, 1, 0, 0, 1}
	yPred := []float64{1, 0, 1, 0, 1}

	f1, err := F1Score(yTrue, yPred)
	if err != nil {
		t.Fatalf("F1Score returned error: %v", err)
	}
	// tp=2 fp=1 fn=1: precision=2/3 recall=2/3 f1=2/3
	if math.Abs(f1-2.0/3.0) > 1e-12 {
		t.Errorf("F1 = %f, want %f", f1, 2.0/3.0)
	}
}
