package vectorgeoms

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func unitSquare() orb.Polygon {
	return orb.Polygon{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	}
}

func TestPolygonArea(t *testing.T) {
	area, err := PolygonArea(unitSquare())
	if err != nil {
		t.Fatalf("PolygonArea failed: %v", err)
	}
	if math.Abs(area-1.0) > 1e-12 {
		t.Errorf("area = %f, want 1", area)
	}

	if _, err := PolygonArea(orb.Point{0, 0}); err == nil {
		t.Error("expected error for point geometry")
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid(unitSquare())
	if math.Abs(c[0]-0.5) > 1e-12 || math.Abs(c[1]-0.5) > 1e-12 {
		t.Errorf("centroid = %v, want (0.5, 0.5)", c)
	}
}

func TestPointInPolygon(t *testing.T) {
	inside, err := PointInPolygon(orb.Point{0.5, 0.5}, unitSquare())
	if err != nil {
		t.Fatalf("PointInPolygon failed: %v", err)
	}
	if !inside {
		t.Error("centre point should be inside")
	}

	outside, err := PointInPolygon(orb.Point{2, 2}, unitSquare())
	if err != nil {
		t.Fatalf("PointInPolygon failed: %v", err)
	}
	if outside {
		t.Error("point (2,2) should be outside")
	}

	if _, err := PointInPolygon(orb.Point{0, 0}, orb.LineString{{0, 0}, {1, 1}}); err == nil {
		t.Error("expected error for line geometry")
	}
}

func TestBBoxIntersects(t *testing.T) {
	a := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	b := orb.Bound{Min: orb.Point{0.5, 0.5}, Max: orb.Point{2, 2}}
	c := orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{6, 6}}

	if !BBoxIntersects(a, b) {
		t.Error("overlapping bounds should intersect")
	}
	if BBoxIntersects(a, c) {
		t.Error("disjoint bounds should not intersect")
	}
}

func TestSimplifyGeometry(t *testing.T) {
	// Collinear midpoint vanishes under simplification.
	line := orb.LineString{{0, 0}, {0.5, 0.0001}, {1, 0}}
	out := SimplifyGeometry(line, 0.01)
	simplified, ok := out.(orb.LineString)
	if !ok {
		t.Fatalf("simplify changed the geometry type to %T", out)
	}
	if len(simplified) != 2 {
		t.Errorf("simplified line has %d points, want 2", len(simplified))
	}
}

func TestPolygonToLines(t *testing.T) {
	withHole := orb.Polygon{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}},
	}
	lines := PolygonToLines(withHole)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if len(lines[0]) != 5 {
		t.Errorf("outer ring has %d points, want 5", len(lines[0]))
	}
}

func TestGetPointOnLine(t *testing.T) {
	pt := GetPointOnLine(orb.Point{0, 0}, orb.Point{10, 0}, 4)
	if math.Abs(pt[0]-4) > 1e-12 || math.Abs(pt[1]) > 1e-12 {
		t.Errorf("point = %v, want (4, 0)", pt)
	}

	// Zero-length segment returns the start point.
	same := GetPointOnLine(orb.Point{3, 3}, orb.Point{3, 3}, 5)
	if same != (orb.Point{3, 3}) {
		t.Errorf("degenerate segment returned %v", same)
	}
}

func TestFindPointToSide(t *testing.T) {
	// Travelling east, positive distance lands north of the line.
	pt := FindPointToSide(orb.Point{0, 0}, orb.Point{10, 0}, orb.Point{5, 0}, 2)
	if math.Abs(pt[0]-5) > 1e-12 || math.Abs(pt[1]-2) > 1e-12 {
		t.Errorf("point = %v, want (5, 2)", pt)
	}

	south := FindPointToSide(orb.Point{0, 0}, orb.Point{10, 0}, orb.Point{5, 0}, -2)
	if math.Abs(south[1]+2) > 1e-12 {
		t.Errorf("point = %v, want y = -2", south)
	}
}

func TestCreateOrthogonalLines(t *testing.T) {
	line := orb.LineString{{0, 0}, {10, 0}}
	crosses, err := CreateOrthogonalLines(line, 2.5, 1)
	if err != nil {
		t.Fatalf("CreateOrthogonalLines failed: %v", err)
	}
	// Crossings at 2.5, 5, 7.5 and 10.
	if len(crosses) != 4 {
		t.Fatalf("got %d lines, want 4", len(crosses))
	}
	first := crosses[0]
	if math.Abs(first[0][0]-2.5) > 1e-12 || math.Abs(first[0][1]-1) > 1e-12 {
		t.Errorf("first cross start = %v, want (2.5, 1)", first[0])
	}
	if math.Abs(first[1][1]+1) > 1e-12 {
		t.Errorf("first cross end = %v, want y = -1", first[1])
	}

	if _, err := CreateOrthogonalLines(orb.LineString{{0, 0}}, 1, 1); err == nil {
		t.Error("expected error for a single-vertex line")
	}
	if _, err := CreateOrthogonalLines(line, 0, 1); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestPolygonHoles(t *testing.T) {
	withHoles := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}},
		{{4, 4}, {7, 4}, {7, 7}, {4, 7}, {4, 4}},
	}

	if area := GetPolyHoleArea(withHoles); math.Abs(area-10) > 1e-9 {
		t.Errorf("hole area = %f, want 10", area)
	}

	kept := DeletePolygonHoles(withHoles, 5)
	if len(kept) != 2 {
		t.Fatalf("polygon has %d rings, want 2 (outer + large hole)", len(kept))
	}

	none := DeletePolygonHoles(withHoles, 0)
	if len(none) != 1 {
		t.Errorf("threshold 0 should strip every hole, got %d rings", len(none))
	}
}

func TestCalcPolyCentroids(t *testing.T) {
	pts := CalcPolyCentroids([]orb.Geometry{unitSquare()})
	if len(pts) != 1 {
		t.Fatalf("got %d centroids, want 1", len(pts))
	}
	if math.Abs(pts[0][0]-0.5) > 1e-12 {
		t.Errorf("centroid = %v, want (0.5, 0.5)", pts[0])
	}
}

func TestGetGeomPoints(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want int
	}{
		{"point", orb.Point{1, 1}, 1},
		{"line", orb.LineString{{0, 0}, {1, 1}, {2, 2}}, 3},
		{"polygon", unitSquare(), 5},
		{"multipolygon", orb.MultiPolygon{unitSquare(), unitSquare()}, 10},
		{"collection", orb.Collection{orb.Point{0, 0}, unitSquare()}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(GetGeomPoints(tt.geom)); got != tt.want {
				t.Errorf("got %d points, want %d", got, tt.want)
			}
		})
	}
}

func TestSimplifyGeometries(t *testing.T) {
	lines := []orb.Geometry{
		orb.LineString{{0, 0}, {0.5, 0.0001}, {1, 0}},
		orb.LineString{{0, 0}, {1, 1}},
	}
	out := SimplifyGeometries(lines, 0.01)
	if len(out) != 2 {
		t.Fatalf("got %d geometries, want 2", len(out))
	}
	if ls := out[0].(orb.LineString); len(ls) != 2 {
		t.Errorf("first line has %d points after simplification, want 2", len(ls))
	}
}

func TestFilterByBBox(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{0.5, 0.5},
		orb.Point{10, 10},
		unitSquare(),
	}
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	kept := FilterByBBox(geoms, bound)
	if len(kept) != 2 {
		t.Errorf("kept %d geometries, want 2", len(kept))
	}
}
