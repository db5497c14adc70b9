// Package geozone matches points against polygon zones using bounding-box
// pre-filtering and even-odd ray casting.
package geozone

import "math"

// DefaultEpsilon is the boundary tolerance, in degrees, used when none is
// configured.
const DefaultEpsilon = 1e-12

// Point is a longitude/latitude pair.
type Point struct {
	Lon float64
	Lat float64
}

// PointInRing reports whether p lies inside or on the boundary of the
// implicitly closed ring. Rings with fewer than three vertices contain
// nothing.
func PointInRing(p Point, ring []Point, eps float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	// Boundary hits win over parity.
	prev := ring[n-1]
	for _, curr := range ring {
		if onSegment(p, prev, curr, eps) {
			return true
		}
		prev = curr
	}

	inside := false
	prev = ring[n-1]
	for _, curr := range ring {
		if (curr.Lat > p.Lat) != (prev.Lat > p.Lat) {
			crossLon := (prev.Lon-curr.Lon)*(p.Lat-curr.Lat)/(prev.Lat-curr.Lat) + curr.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
		prev = curr
	}
	return inside
}

// onSegment reports whether p is collinear with a→b within eps and inside the
// segment's bounding box grown by eps.
func onSegment(p, a, b Point, eps float64) bool {
	cross := (p.Lat-a.Lat)*(b.Lon-a.Lon) - (p.Lon-a.Lon)*(b.Lat-a.Lat)
	if math.Abs(cross) > eps {
		return false
	}
	return p.Lon >= math.Min(a.Lon, b.Lon)-eps &&
		p.Lon <= math.Max(a.Lon, b.Lon)+eps &&
		p.Lat >= math.Min(a.Lat, b.Lat)-eps &&
		p.Lat <= math.Max(a.Lat, b.Lat)+eps
}

// PointInShape composes the rings of one polygon with the even-odd rule.
// Ring i spans points[parts[i]:parts[i+1]] and the last ring runs to the end
// of points. Rings with an invalid range are skipped.
func PointInShape(p Point, points []Point, parts []int, eps float64) bool {
	if len(points) == 0 || len(parts) == 0 {
		return false
	}

	return shapeContains(p, points, parts, 0, eps)
}
