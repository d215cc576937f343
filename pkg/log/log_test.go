package log

import (
	"context"
	"testing"
)

func TestTestLoggerCapture(t *testing.T) {
	logger, buffer := NewTestLogger(LevelDebug)

	logger.Info("classifier applied",
		OperationKey, OperationApply,
		RasterFileKey, "out_class.kea",
		SamplesKey, 4096,
	)

	if !logger.ContainsMessage("classifier applied") {
		t.Error("expected message not captured")
	}
	if !logger.ContainsField(OperationKey, OperationApply) {
		t.Error("expected op field not captured")
	}
	if buffer.Len() == 0 {
		t.Error("buffer should contain output")
	}
}

func TestTestLoggerLevelFilter(t *testing.T) {
	logger, _ := NewTestLogger(LevelWarn)

	logger.Debug("should be dropped")
	logger.Info("should be dropped too")
	logger.Warn("kept")

	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["message"] != "kept" {
		t.Errorf("unexpected message: %v", entries[0]["message"])
	}
}

func TestTestLoggerWith(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)
	tagged := logger.With(ComponentKey, "imagecalc")

	tagged.Info("band maths complete")

	tl, ok := tagged.(*TestLogger)
	if !ok {
		t.Fatal("With should return a *TestLogger")
	}
	if !tl.ContainsField(ComponentKey, "imagecalc") {
		t.Error("expected component field on derived logger")
	}
}

func TestProviderNamedLogger(t *testing.T) {
	testProvider, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(testProvider)
	defer SetProvider(newSlogProvider())

	logger := GetLoggerWithName("classification.trainer")
	logger.Info("hello")

	if !testProvider.logger.ContainsField("component", "classification.trainer") {
		t.Error("named logger should carry the component field")
	}
}

func TestDefaultProviderEnabled(t *testing.T) {
	p := newSlogProvider()
	logger := p.GetLogger()

	p.SetLevel(LevelWarn)
	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
	}
	for _, tt := range tests {
		got, err := ToLogLevel(tt.in)
		if err != nil {
			t.Errorf("ToLogLevel(%q) returned error: %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ToLogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestToLogLevel_Invalid(t *testing.T) {
	if _, err := ToLogLevel("verbose"); err == nil {
		t.Error("unrecognised level name should be an error")
	}
}
