package geozone

import "math"

// BBox is an axis-aligned bounding box. Bounds are inclusive.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// EmptyBBox contains no point and is the identity for Extend.
var EmptyBBox = BBox{
	MinLon: math.Inf(1),
	MinLat: math.Inf(1),
	MaxLon: math.Inf(-1),
	MaxLat: math.Inf(-1),
}

// UnboundedBBox contains every point. Assigning it to a polygon disables
// pre-filtering for that polygon.
var UnboundedBBox = BBox{
	MinLon: math.Inf(-1),
	MinLat: math.Inf(-1),
	MaxLon: math.Inf(1),
	MaxLat: math.Inf(1),
}

// Contains reports whether p lies within b, bounds included.
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon &&
		p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Extend returns b grown to include p.
func (b BBox) Extend(p Point) BBox {
	b.MinLon = math.Min(b.MinLon, p.Lon)
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MaxLon = math.Max(b.MaxLon, p.Lon)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	return b
}

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return BBox{
		MinLon: math.Min(b.MinLon, o.MinLon),
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
	}
}

// Grow returns b expanded by d on every side. Empty boxes stay empty.
func (b BBox) Grow(d float64) BBox {
	if b.IsEmpty() || d == 0 {
		return b
	}
	return BBox{
		MinLon: b.MinLon - d,
		MinLat: b.MinLat - d,
		MaxLon: b.MaxLon + d,
		MaxLat: b.MaxLat + d,
	}
}

// IsEmpty reports whether b contains no point.
func (b BBox) IsEmpty() bool {
	return b.MinLon > b.MaxLon || b.MinLat > b.MaxLat
}

// BoundsOf returns the bounding box of points.
func BoundsOf(points []Point) BBox {
	b := EmptyBBox
	for _, p := range points {
		b = b.Extend(p)
	}
	return b
}
