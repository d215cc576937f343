// Package vectorgeoms provides geometry operations on in-memory
// features: areas, centroids, containment, bounding boxes and
// simplification. Geometries use the orb types, so anything decoded
// from WKB by vectorutils can be handed straight in.
package vectorgeoms

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// GeometryBBox returns the bounding box of a geometry.
func GeometryBBox(g orb.Geometry) orb.Bound {
	return g.Bound()
}

// BBoxIntersects reports whether two bounding boxes overlap.
func BBoxIntersects(a, b orb.Bound) bool {
	return a.Intersects(b)
}

// EnvelopePolygon converts a bounding box to a closed polygon.
func EnvelopePolygon(b orb.Bound) orb.Polygon {
	return b.ToPolygon()
}

// PolygonArea returns the planar area of a polygon or multipolygon.
func PolygonArea(g orb.Geometry) (float64, error) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return planar.Area(g), nil
	default:
		return 0, errors.Newf("vectorgeoms: cannot compute area of %s", g.GeoJSONType())
	}
}

// Centroid returns the planar centroid of a geometry.
func Centroid(g orb.Geometry) orb.Point {
	centroid, _ := planar.CentroidArea(g)
	return centroid
}

// PointInPolygon reports whether a point lies inside a polygon or
// multipolygon.
func PointInPolygon(pt orb.Point, g orb.Geometry) (bool, error) {
	switch poly := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(poly, pt), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(poly, pt), nil
	default:
		return false, errors.Newf("vectorgeoms: containment needs a polygon, got %s", g.GeoJSONType())
	}
}

// SimplifyGeometry reduces vertex count with Douglas-Peucker at the
// given tolerance.
func SimplifyGeometry(g orb.Geometry, tolerance float64) orb.Geometry {
	return simplify.DouglasPeucker(tolerance).Simplify(g)
}

// PolygonToLines returns the rings of a polygon as line strings, outer
// ring first.
func PolygonToLines(p orb.Polygon) []orb.LineString {
	lines := make([]orb.LineString, 0, len(p))
	for _, ring := range p {
		lines = append(lines, orb.LineString(ring))
	}
	return lines
}

// SimplifyGeometries applies SimplifyGeometry to each geometry.
func SimplifyGeometries(geoms []orb.Geometry, tolerance float64) []orb.Geometry {
	out := make([]orb.Geometry, len(geoms))
	for i, g := range geoms {
		out[i] = SimplifyGeometry(g, tolerance)
	}
	return out
}

// GetPointOnLine returns the point at the given distance from start
// along the segment towards end. Distances past end extrapolate.
func GetPointOnLine(start, end orb.Point, distance float64) orb.Point {
	dx, dy := end[0]-start[0], end[1]-start[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return start
	}
	t := distance / length
	return orb.Point{start[0] + dx*t, start[1] + dy*t}
}

// FindPointToSide returns the point at the given perpendicular
// distance from pt relative to the segment start to end. Positive
// distances fall to the left of the direction of travel.
func FindPointToSide(start, end, pt orb.Point, distance float64) orb.Point {
	dx, dy := end[0]-start[0], end[1]-start[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return pt
	}
	return orb.Point{pt[0] - dy/length*distance, pt[1] + dx/length*distance}
}

// CreateOrthogonalLines builds a cross line of the given half length
// either side of the input line every interval units along it.
func CreateOrthogonalLines(line orb.LineString, interval, length float64) ([]orb.LineString, error) {
	if len(line) < 2 {
		return nil, errors.New("vectorgeoms: orthogonal lines need at least two vertices")
	}
	if interval <= 0 || length <= 0 {
		return nil, errors.Newf("vectorgeoms: interval and length must be positive, got %g and %g", interval, length)
	}

	var out []orb.LineString
	next := interval
	travelled := 0.0
	for i := 0; i < len(line)-1; i++ {
		start, end := line[i], line[i+1]
		seg := math.Hypot(end[0]-start[0], end[1]-start[1])
		if seg == 0 {
			continue
		}
		for next <= travelled+seg {
			pt := GetPointOnLine(start, end, next-travelled)
			left := FindPointToSide(start, end, pt, length)
			right := FindPointToSide(start, end, pt, -length)
			out = append(out, orb.LineString{left, right})
			next += interval
		}
		travelled += seg
	}
	return out, nil
}

// GetPolyHoleArea returns the total planar area of a polygon's
// interior rings.
func GetPolyHoleArea(p orb.Polygon) float64 {
	var area float64
	for i := 1; i < len(p); i++ {
		area += math.Abs(planar.Area(p[i]))
	}
	return area
}

// DeletePolygonHoles drops interior rings whose area falls below the
// threshold. A threshold <= 0 removes every hole.
func DeletePolygonHoles(p orb.Polygon, areaThreshold float64) orb.Polygon {
	if len(p) == 0 {
		return p
	}
	out := orb.Polygon{p[0]}
	if areaThreshold > 0 {
		for i := 1; i < len(p); i++ {
			if math.Abs(planar.Area(p[i])) >= areaThreshold {
				out = append(out, p[i])
			}
		}
	}
	return out
}

// CalcPolyCentroids returns the planar centroid of each geometry.
func CalcPolyCentroids(geoms []orb.Geometry) []orb.Point {
	pts := make([]orb.Point, len(geoms))
	for i, g := range geoms {
		pts[i] = Centroid(g)
	}
	return pts
}

// GetGeomPoints returns every vertex of a geometry.
func GetGeomPoints(g orb.Geometry) []orb.Point {
	var pts []orb.Point
	switch geom := g.(type) {
	case orb.Point:
		pts = append(pts, geom)
	case orb.MultiPoint:
		pts = append(pts, geom...)
	case orb.LineString:
		pts = append(pts, geom...)
	case orb.Ring:
		pts = append(pts, geom...)
	case orb.MultiLineString:
		for _, ls := range geom {
			pts = append(pts, ls...)
		}
	case orb.Polygon:
		for _, ring := range geom {
			pts = append(pts, ring...)
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			pts = append(pts, GetGeomPoints(poly)...)
		}
	case orb.Collection:
		for _, sub := range geom {
			pts = append(pts, GetGeomPoints(sub)...)
		}
	}
	return pts
}

// FilterByBBox keeps the geometries whose bounding box intersects the
// given bound.
func FilterByBBox(geoms []orb.Geometry, bound orb.Bound) []orb.Geometry {
	var out []orb.Geometry
	for _, g := range geoms {
		if g.Bound().Intersects(bound) {
			out = append(out, g)
		}
	}
	return out
}
