package zoneload

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/zonematch/internal/geozone"
)

// SRID is the spatial reference of every zone geometry (WGS 84).
const SRID = 4326

// fromShape copies a shapefile polygon into zone form. Parts and points are
// kept verbatim and the record's own box becomes the pre-filter box.
func fromShape(shape shp.Shape) (box geozone.BBox, points []geozone.Point, parts []int, ok bool) {
	var sbox shp.Box
	var sparts []int32
	var spoints []shp.Point

	switch s := shape.(type) {
	case *shp.Polygon:
		sbox, sparts, spoints = s.Box, s.Parts, s.Points
	case *shp.PolygonZ:
		sbox, sparts, spoints = s.Box, s.Parts, s.Points
	case *shp.PolygonM:
		sbox, sparts, spoints = s.Box, s.Parts, s.Points
	default:
		return geozone.BBox{}, nil, nil, false
	}
	if len(sparts) == 0 || len(spoints) == 0 {
		return geozone.BBox{}, nil, nil, false
	}

	points = make([]geozone.Point, len(spoints))
	for i, p := range spoints {
		points[i] = geozone.Point{Lon: p.X, Lat: p.Y}
	}
	parts = make([]int, len(sparts))
	for i, off := range sparts {
		parts[i] = int(off)
	}
	box = geozone.BBox{MinLon: sbox.MinX, MinLat: sbox.MinY, MaxLon: sbox.MaxX, MaxLat: sbox.MaxY}
	return box, points, parts, true
}

// fromGeom flattens a Polygon or MultiPolygon into one zone holding every
// ring of every part. Other geometry types are rejected.
func fromGeom(g geom.T) (points []geozone.Point, parts []int, ok bool) {
	switch g := g.(type) {
	case *geom.Polygon:
		points, parts = flatRings(g.FlatCoords(), g.Stride(), g.Ends())
	case *geom.MultiPolygon:
		var ends []int
		for _, e := range g.Endss() {
			ends = append(ends, e...)
		}
		points, parts = flatRings(g.FlatCoords(), g.Stride(), ends)
	default:
		return nil, nil, false
	}
	return points, parts, len(parts) > 0
}

// flatRings converts go-geom flat coordinates and absolute ring ends into
// points and ring start offsets. Empty rings are dropped.
func flatRings(flat []float64, stride int, ends []int) ([]geozone.Point, []int) {
	if stride < 2 {
		return nil, nil
	}
	points := make([]geozone.Point, 0, len(flat)/stride)
	parts := make([]int, 0, len(ends))
	start := 0
	for _, end := range ends {
		if end <= start {
			continue
		}
		parts = append(parts, len(points))
		for i := start; i+1 < end; i += stride {
			points = append(points, geozone.Point{Lon: flat[i], Lat: flat[i+1]})
		}
		start = end
	}
	return points, parts
}

// EncodeEWKB encodes a zone as an EWKB MultiPolygon with SRID 4326. Each
// ring becomes its own polygon so that decoding returns the same rings in
// the same order.
func EncodeEWKB(points []geozone.Point, parts []int) ([]byte, error) {
	mp := toMultiPolygon(points, parts)
	if mp.NumPolygons() == 0 {
		return nil, eris.New("zoneload: zone has no valid rings")
	}

	data, err := ewkb.Marshal(mp.SetSRID(SRID), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "zoneload: encode EWKB")
	}
	return data, nil
}

// toMultiPolygon wraps each valid ring of a zone in its own polygon. Open
// rings are closed by repeating their first vertex. Rings with fewer than
// three vertices contain no point and are dropped.
func toMultiPolygon(points []geozone.Point, parts []int) *geom.MultiPolygon {
	flat := make([]float64, 0, 2*(len(points)+len(parts)))
	var endss [][]int
	for i, start := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > len(points) || end-start < 3 {
			continue
		}
		ring := points[start:end]
		for _, p := range ring {
			flat = append(flat, p.Lon, p.Lat)
		}
		if first := ring[0]; ring[len(ring)-1] != first {
			flat = append(flat, first.Lon, first.Lat)
		}
		endss = append(endss, []int{len(flat)})
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
}

// DecodeEWKB decodes an EWKB Polygon or MultiPolygon into zone form.
func DecodeEWKB(data []byte) ([]geozone.Point, []int, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, nil, eris.Wrap(err, "zoneload: decode EWKB")
	}
	points, parts, ok := fromGeom(g)
	if !ok {
		return nil, nil, eris.Errorf("zoneload: unsupported geometry %T", g)
	}
	return points, parts, nil
}
