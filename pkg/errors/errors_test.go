package errors

import (
	"strings"
	"testing"
)

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("GBTreeClassifier", "Predict")
	if err == nil {
		t.Fatal("NewNotFittedError returned nil")
	}
	want := "rsgis: GBTreeClassifier: this model is not fitted yet. Call Fit() or load a model before using Predict()"
	if err.Error() != want {
		t.Errorf("unexpected message:\n got: %s\nwant: %s", err.Error(), want)
	}

	var nfe *NotFittedError
	if !As(err, &nfe) {
		t.Error("error should be castable to *NotFittedError")
	}
	if nfe.ModelName != "GBTreeClassifier" {
		t.Errorf("ModelName = %q, want GBTreeClassifier", nfe.ModelName)
	}
}

func TestNewDimensionError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		expected int
		got      int
		axis     int
		wantMsg  string
	}{
		{
			name:     "feature mismatch",
			op:       "Predict",
			expected: 8,
			got:      6,
			axis:     1,
			wantMsg:  "rsgis: Predict: dimension mismatch on axis 1 (features). Expected 8, got 6",
		},
		{
			name:     "row mismatch",
			op:       "ROCAUC",
			expected: 100,
			got:      90,
			axis:     0,
			wantMsg:  "rsgis: ROCAUC: dimension mismatch on axis 0 (rows). Expected 100, got 90",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDimensionError(tt.op, tt.expected, tt.got, tt.axis)
			if err.Error() != tt.wantMsg {
				t.Errorf("unexpected message:\n got: %s\nwant: %s", err.Error(), tt.wantMsg)
			}
			var de *DimensionError
			if !As(err, &de) {
				t.Error("error should be castable to *DimensionError")
			}
		})
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("scale_pos_weight", "must be >= 1", 0.25)
	if !strings.Contains(err.Error(), "scale_pos_weight") {
		t.Errorf("message should name the parameter: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "0.25") {
		t.Errorf("message should include the offending value: %s", err.Error())
	}
}

func TestFileIOErrorUnwrap(t *testing.T) {
	cause := New("no such file")
	err := NewFileIOError("ReadSamples", "/tmp/cls1_train.h5", cause)
	if !Is(err, cause) {
		t.Error("FileIOError should unwrap to its cause")
	}
	var fe *FileIOError
	if !As(err, &fe) {
		t.Fatal("error should be castable to *FileIOError")
	}
	if fe.Path != "/tmp/cls1_train.h5" {
		t.Errorf("Path = %q", fe.Path)
	}
}

func TestRasterError(t *testing.T) {
	cause := New("band index out of range")
	err := NewRasterError("ApplyClassifier", "sen2_stack.kea", cause)
	want := "rsgis: ApplyClassifier: sen2_stack.kea: band index out of range"
	if err.Error() != want {
		t.Errorf("unexpected message:\n got: %s\nwant: %s", err.Error(), want)
	}
	if !Is(err, cause) {
		t.Error("RasterError should unwrap to its cause")
	}
}

func TestWarnHandler(t *testing.T) {
	var captured error
	SetWarningHandler(func(w error) { captured = w })
	defer SetWarningHandler(func(w error) {})

	warn := NewSmallSampleWarning("validation", 12, 50)
	Warn(warn)

	if captured == nil {
		t.Fatal("warning handler was not invoked")
	}
	if !strings.Contains(captured.Error(), "12 samples") {
		t.Errorf("unexpected warning message: %s", captured.Error())
	}
}

func TestConvergenceWarningMessage(t *testing.T) {
	warn := NewConvergenceWarning("BayesOpt", 20, "no improvement in expected improvement")
	if !strings.Contains(warn.Error(), "BayesOpt") || !strings.Contains(warn.Error(), "20") {
		t.Errorf("unexpected message: %s", warn.Error())
	}

	var cw *ConvergenceWarning
	var asErr error = warn
	if !As(asErr, &cw) {
		t.Error("warning should be castable to *ConvergenceWarning")
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("gradient_update", []float64{0.1, -0.5, 2.0}, 3); err != nil {
		t.Errorf("stable values should not error: %v", err)
	}

	err := CheckNumericalStability("gradient_update", []float64{0.1, nan(), 2.0}, 3)
	if err == nil {
		t.Fatal("NaN should be detected")
	}
	var nie *NumericalInstabilityError
	if !As(err, &nie) {
		t.Error("error should be castable to *NumericalInstabilityError")
	}
	if nie.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", nie.Iteration)
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}
