package rastergis

import "testing"

func TestColourTableFromClasses(t *testing.T) {
	classes := []ClassColour{
		{Value: 1, Name: "mangrove", Green: 200},
		{Value: 3, Name: "water", Blue: 255},
	}

	entries, err := ColourTableFromClasses(classes)
	if err != nil {
		t.Fatalf("ColourTableFromClasses failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4 (values 0..3)", len(entries))
	}

	// Value zero stays transparent.
	if entries[0] != ([4]int16{}) {
		t.Errorf("entry 0 = %v, want all zero", entries[0])
	}
	if entries[1] != ([4]int16{0, 200, 0, 255}) {
		t.Errorf("entry 1 = %v", entries[1])
	}
	// Gaps between class values stay transparent too.
	if entries[2] != ([4]int16{}) {
		t.Errorf("entry 2 = %v, want all zero", entries[2])
	}
	if entries[3] != ([4]int16{0, 0, 255, 255}) {
		t.Errorf("entry 3 = %v", entries[3])
	}
}

func TestColourTableFromClasses_NegativeValue(t *testing.T) {
	if _, err := ColourTableFromClasses([]ClassColour{{Value: -1, Name: "bad"}}); err == nil {
		t.Error("expected error for negative pixel value")
	}
}

func TestColumnLength(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"string column", `["water","forest","urban"]`, 3},
		{"int column", `[0,12,7,431]`, 4},
		{"empty column", `[]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := columnLength(tt.name, tt.raw)
			if err != nil {
				t.Fatalf("columnLength failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("length = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := columnLength("broken", `{"not":"a list"}`); err == nil {
		t.Error("expected error for malformed column data")
	}
}
