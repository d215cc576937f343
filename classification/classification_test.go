package classification

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/dotysan/rsgislib/classification/gbtree"
	"github.com/dotysan/rsgislib/pkg/errors"
)

func TestSortClassInfo(t *testing.T) {
	classes := map[string]ClassInfo{
		"water":  {ID: 1, OutID: 2, TrainFileH5: "w.h5", ValidFileH5: "w_v.h5"},
		"forest": {ID: 0, OutID: 1, TrainFileH5: "f.h5", ValidFileH5: "f_v.h5"},
		"urban":  {ID: 2, OutID: 5, TrainFileH5: "u.h5", ValidFileH5: "u_v.h5"},
	}

	ordered, err := SortClassInfo(classes)
	if err != nil {
		t.Fatalf("SortClassInfo failed: %v", err)
	}
	if len(ordered) != 3 {
		t.Fatalf("got %d classes, want 3", len(ordered))
	}
	for i, info := range ordered {
		if info.ID != i {
			t.Errorf("position %d holds ID %d", i, info.ID)
		}
	}
	if ordered[0].Name != "forest" || ordered[2].Name != "urban" {
		t.Errorf("unexpected order: %v, %v, %v", ordered[0].Name, ordered[1].Name, ordered[2].Name)
	}
}

func TestSortClassInfo_Errors(t *testing.T) {
	tests := []struct {
		name    string
		classes map[string]ClassInfo
	}{
		{"single class", map[string]ClassInfo{
			"a": {ID: 0, OutID: 1},
		}},
		{"gap in ids", map[string]ClassInfo{
			"a": {ID: 0, OutID: 1},
			"b": {ID: 2, OutID: 2},
		}},
		{"zero out id", map[string]ClassInfo{
			"a": {ID: 0, OutID: 0},
			"b": {ID: 1, OutID: 1},
		}},
		{"duplicate out id", map[string]ClassInfo{
			"a": {ID: 0, OutID: 3},
			"b": {ID: 1, OutID: 3},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SortClassInfo(tt.classes); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestScalePosWeight(t *testing.T) {
	tests := []struct {
		nPos, nNeg int
		want       float64
	}{
		{100, 300, 3.0},
		{300, 100, 1.0}, // never below one
		{100, 100, 1.0},
		{0, 100, 1.0},
	}
	for _, tt := range tests {
		if got := scalePosWeight(tt.nPos, tt.nNeg); got != tt.want {
			t.Errorf("scalePosWeight(%d, %d) = %f, want %f", tt.nPos, tt.nNeg, got, tt.want)
		}
	}
}

func TestBuildLabelled(t *testing.T) {
	pos := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	neg := mat.NewDense(3, 3, []float64{
		7, 8, 9,
		10, 11, 12,
		13, 14, 15,
	})

	X, y, err := buildLabelled([]*mat.Dense{pos, neg}, []float64{1, 0})
	if err != nil {
		t.Fatalf("buildLabelled failed: %v", err)
	}

	rows, cols := X.Dims()
	if rows != 5 || cols != 3 {
		t.Fatalf("X is %dx%d, want 5x3", rows, cols)
	}
	if X.At(0, 0) != 1 || X.At(4, 2) != 15 {
		t.Error("rows not stacked in order")
	}
	for i := 0; i < 2; i++ {
		if y.At(i, 0) != 1 {
			t.Errorf("row %d label = %f, want 1", i, y.At(i, 0))
		}
	}
	for i := 2; i < 5; i++ {
		if y.At(i, 0) != 0 {
			t.Errorf("row %d label = %f, want 0", i, y.At(i, 0))
		}
	}
}

func TestBuildLabelled_ColumnMismatch(t *testing.T) {
	a := mat.NewDense(1, 3, []float64{1, 2, 3})
	b := mat.NewDense(1, 2, []float64{4, 5})
	if _, _, err := buildLabelled([]*mat.Dense{a, b}, []float64{1, 0}); err == nil {
		t.Error("expected dimension error")
	}
}

func TestThresholdBlock_StrictGreaterThan(t *testing.T) {
	probs := []float64{0, 4999, 5000, 5001, 10000}
	classes := make([]float64, len(probs))

	thresholdBlock(probs, classes, float64(DefaultClassThreshold))

	want := []float64{0, 0, 0, 1, 1}
	for i := range want {
		if classes[i] != want[i] {
			t.Errorf("pixel %d (prob %.0f) = %.0f, want %.0f", i, probs[i], classes[i], want[i])
		}
	}
}

func TestChunkRowsFor(t *testing.T) {
	tests := []struct {
		rows, want int
	}{
		{1, 1},
		{999, 999},
		{1000, 1000},
		{250000, 1000},
	}
	for _, tt := range tests {
		if got := chunkRowsFor(tt.rows); got != tt.want {
			t.Errorf("chunkRowsFor(%d) = %d, want %d", tt.rows, got, tt.want)
		}
	}
}

func TestWarnSmallClasses(t *testing.T) {
	var captured []error
	errors.SetWarningHandler(func(w error) { captured = append(captured, w) })
	defer errors.SetWarningHandler(func(error) {})

	warnSmallClasses(minClassSamples, minClassSamples)
	if len(captured) != 0 {
		t.Fatalf("adequate classes should not warn, got %d warnings", len(captured))
	}

	warnSmallClasses(5, 200)
	if len(captured) != 1 {
		t.Fatalf("expected one warning, got %d", len(captured))
	}
	var ssw *errors.SmallSampleWarning
	if !errors.As(captured[0], &ssw) {
		t.Fatalf("got %T, want *SmallSampleWarning", captured[0])
	}
	if ssw.Samples != 5 || ssw.Minimum != minClassSamples {
		t.Errorf("warning fields = %d / %d", ssw.Samples, ssw.Minimum)
	}
}

// separableBinarySet builds a labelled set split on the first feature.
func separableBinarySet(n int, seed int64) *binarySet {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	nPos := 0
	for i := 0; i < n; i++ {
		x0 := rng.Float64()
		X.Set(i, 0, x0)
		X.Set(i, 1, rng.Float64())
		if x0 > 0.5 {
			y.Set(i, 0, 1)
			nPos++
		}
	}
	return &binarySet{X: X, Y: y, NPos: nPos, NNeg: n - nPos}
}

func TestScoreBinary(t *testing.T) {
	set := separableBinarySet(400, 3)

	params := gbtree.DefaultParams()
	params.NumIterations = 30
	params.NumLeaves = 7
	params.MinDataInLeaf = 5
	params.Seed = 7

	trainer := gbtree.NewTrainer(params)
	if err := trainer.Fit(set.X, set.Y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	auc, acc, err := scoreBinary(trainer.GetModel(), set)
	if err != nil {
		t.Fatalf("scoreBinary failed: %v", err)
	}
	if auc < 0.95 {
		t.Errorf("AUC = %f on separable data, want >= 0.95", auc)
	}
	if acc < 0.9 {
		t.Errorf("accuracy = %f on separable data, want >= 0.9", acc)
	}
}

func TestScoreMulticlass(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := 300
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		cls := i % 3
		X.Set(i, 0, float64(cls)+rng.NormFloat64()*0.15)
		X.Set(i, 1, float64(cls)*2+rng.NormFloat64()*0.15)
		y.Set(i, 0, float64(cls))
	}

	params := gbtree.DefaultParams()
	params.Objective = string(gbtree.MulticlassSoftmax)
	params.NumClass = 3
	params.NumIterations = 20
	params.NumLeaves = 7
	params.MinDataInLeaf = 5
	params.Seed = 7

	trainer := gbtree.NewTrainer(params)
	if err := trainer.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	acc, err := scoreMulticlass(trainer.GetModel(), X, y)
	if err != nil {
		t.Fatalf("scoreMulticlass failed: %v", err)
	}
	if acc < 0.9 {
		t.Errorf("accuracy = %f on well-separated clusters, want >= 0.9", acc)
	}
}
