package imagecalc

import (
	"math"
	"testing"
)

func TestCompileExpression_Arithmetic(t *testing.T) {
	c, err := compileExpression("(nir - red) / (nir + red)", []string{"nir", "red"})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	v, err := c.eval([]float64{0.8, 0.2})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if math.Abs(v-0.6) > 1e-12 {
		t.Errorf("got %f, want 0.6", v)
	}
}

func TestCompileExpression_Ternary(t *testing.T) {
	c, err := compileExpression("(a + b) == 0 ? -999.0 : (a - b) / (a + b)", []string{"a", "b"})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	v, err := c.eval([]float64{0, 0})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if v != NoDataOut {
		t.Errorf("zero denominator: got %f, want %f", v, NoDataOut)
	}

	v, err = c.eval([]float64{3, 1})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if math.Abs(v-0.5) > 1e-12 {
		t.Errorf("got %f, want 0.5", v)
	}
}

func TestCompileExpression_NonFiniteCollapsesToNoData(t *testing.T) {
	c, err := compileExpression("a / b", []string{"a", "b"})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	v, err := c.eval([]float64{1, 0})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if v != NoDataOut {
		t.Errorf("got %f, want %f", v, NoDataOut)
	}
}

func TestCompileExpression_Invalid(t *testing.T) {
	if _, err := compileExpression("nir +* red", []string{"nir", "red"}); err == nil {
		t.Error("expected compile error")
	}
	if _, err := compileExpression("unknown + 1", []string{"nir"}); err == nil {
		t.Error("expected error for unbound variable")
	}
}

func TestBandVar(t *testing.T) {
	if bandVar(1) != "b1" || bandVar(12) != "b12" {
		t.Errorf("bandVar naming broken: %s, %s", bandVar(1), bandVar(12))
	}
}
