package imageutils

import (
	"testing"

	"github.com/airbusgeo/godal"
)

func TestDataTypeFromString(t *testing.T) {
	tests := []struct {
		name string
		want godal.DataType
	}{
		{"Byte", godal.Byte},
		{"uint16", godal.UInt16},
		{"Int32", godal.Int32},
		{"Float32", godal.Float32},
		{"float64", godal.Float64},
	}
	for _, tt := range tests {
		got, err := DataTypeFromString(tt.name)
		if err != nil {
			t.Errorf("DataTypeFromString(%q) failed: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DataTypeFromString(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := DataTypeFromString("Complex64"); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestEPSGPattern(t *testing.T) {
	wkt := `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,` +
		`AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0],` +
		`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

	m := epsgRe.FindStringSubmatch(wkt)
	if m == nil {
		t.Fatal("pattern did not match trailing EPSG authority")
	}
	if m[1] != "4326" {
		t.Errorf("extracted %q, want 4326", m[1])
	}

	if epsgRe.FindStringSubmatch(`LOCAL_CS["arbitrary"]`) != nil {
		t.Error("pattern should not match projections without an EPSG authority")
	}
}
