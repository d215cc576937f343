package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover(t *testing.T) {
	readBlock := func() (err error) {
		defer Recover(&err, "applier.Apply")
		panic("band buffer out of range")
	}

	err := readBlock()
	if err == nil {
		t.Fatal("recovered panic should surface as an error")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("got %T, want *PanicError", err)
	}
	if panicErr.Operation != "applier.Apply" {
		t.Errorf("operation = %q", panicErr.Operation)
	}
	if panicErr.PanicValue != "band buffer out of range" {
		t.Errorf("panic value = %v", panicErr.PanicValue)
	}
	if panicErr.StackTrace == "" {
		t.Error("stack trace should be captured")
	}
	if got, want := panicErr.Error(), "panic in applier.Apply: band buffer out of range"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRecover_NoPanic(t *testing.T) {
	clean := func() (err error) {
		defer Recover(&err, "applier.Apply")
		return nil
	}
	if err := clean(); err != nil {
		t.Fatalf("no panic should mean no error, got %v", err)
	}
}

func TestRecover_KeepsExistingError(t *testing.T) {
	readErr := fmt.Errorf("read failed at block 12")

	worker := func() (err error) {
		defer Recover(&err, "applier.Apply")
		err = readErr
		panic("worker crashed")
	}

	err := worker()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "panic in applier.Apply") {
		t.Errorf("panic context missing: %s", err)
	}
	if !errors.Is(err, readErr) {
		t.Error("original error should survive the panic wrap")
	}
}

func TestSafeExecute(t *testing.T) {
	if err := SafeExecute("bandmath", func() error { return nil }); err != nil {
		t.Fatalf("success case errored: %v", err)
	}

	evalErr := fmt.Errorf("expression failed")
	if err := SafeExecute("bandmath", func() error { return evalErr }); err != evalErr {
		t.Fatalf("got %v, want the function's own error", err)
	}

	err := SafeExecute("bandmath", func() error { panic("division blew up") })
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("got %T, want *PanicError", err)
	}
	if panicErr.PanicValue != "division blew up" {
		t.Errorf("panic value = %v", panicErr.PanicValue)
	}
}

func TestPanicError_String(t *testing.T) {
	panicErr := NewPanicError("rastergis.histogram", "nil dataset")

	str := panicErr.String()
	if !strings.Contains(str, "Stack trace:") {
		t.Error("String() should include the stack trace")
	}
	if !strings.Contains(str, "panic in rastergis.histogram: nil dataset") {
		t.Error("String() should include the error line")
	}
	if panicErr.Unwrap() != nil {
		t.Error("Unwrap() should be nil")
	}
}

func TestRecover_PanicValueTypes(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"string", "boom", "boom"},
		{"int", 42, "42"},
		{"error", fmt.Errorf("wrapped"), "wrapped"},
		{"struct", struct{ Msg string }{"tile 7"}, "{tile 7}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := func() (err error) {
				defer Recover(&err, "worker")
				panic(tt.value)
			}
			err := fn()

			var panicErr *PanicError
			if !errors.As(err, &panicErr) {
				t.Fatalf("got %T, want *PanicError", err)
			}
			if got := fmt.Sprintf("%v", panicErr.PanicValue); got != tt.want {
				t.Errorf("panic value = %q, want %q", got, tt.want)
			}
		})
	}
}
