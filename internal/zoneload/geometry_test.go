package zoneload

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/zonematch/internal/geozone"
)

func squareRing(x0, y0, x1, y1 float64) []geozone.Point {
	return []geozone.Point{{Lon: x0, Lat: y0}, {Lon: x0, Lat: y1}, {Lon: x1, Lat: y1}, {Lon: x1, Lat: y0}, {Lon: x0, Lat: y0}}
}

func donut() ([]geozone.Point, []int) {
	points := append(squareRing(0, 0, 10, 10), squareRing(4, 4, 6, 6)...)
	return points, []int{0, 5}
}

func TestEWKB_RoundTrip(t *testing.T) {
	points, parts := donut()

	data, err := EncodeEWKB(points, parts)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, SRID, g.SRID())
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())

	gotPoints, gotParts, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, points, gotPoints)
	assert.Equal(t, parts, gotParts)
}

func TestEncodeEWKB_NoValidRings(t *testing.T) {
	_, err := EncodeEWKB(squareRing(0, 0, 1, 1), []int{9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid rings")
}

func TestEncodeEWKB_ClosesOpenRings(t *testing.T) {
	open := []geozone.Point{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 0}}
	points := append(append([]geozone.Point{}, open...), squareRing(5, 5, 6, 6)...)

	data, err := EncodeEWKB(points, []int{0, 4})
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 2, mp.NumPolygons())

	first := mp.Polygon(0).LinearRing(0)
	require.Equal(t, 5, first.NumCoords())
	assert.Equal(t, first.Coord(0), first.Coord(4))
	assert.Equal(t, 5, mp.Polygon(1).LinearRing(0).NumCoords(), "closed ring is not closed twice")

	gotPoints, gotParts, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5}, gotParts)
	for _, p := range []geozone.Point{{Lon: 0.5, Lat: 0.5}, {Lon: 5.5, Lat: 5.5}, {Lon: 3, Lat: 3}} {
		assert.Equal(t,
			geozone.PointInShape(p, points, []int{0, 4}, geozone.DefaultEpsilon),
			geozone.PointInShape(p, gotPoints, gotParts, geozone.DefaultEpsilon),
			"point %v", p)
	}
}

func TestEncodeEWKB_DropsDegenerateRings(t *testing.T) {
	points := append([]geozone.Point{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}}, squareRing(0, 0, 1, 1)...)

	data, err := EncodeEWKB(points, []int{0, 2})
	require.NoError(t, err)

	gotPoints, gotParts, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, squareRing(0, 0, 1, 1), gotPoints)
	assert.Equal(t, []int{0}, gotParts)
}

func TestDecodeEWKB_Polygon(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 2, 2, 2, 2, 0, 0, 0, 0.5, 0.5, 0.5, 1, 1, 1, 0.5, 0.5}, []int{10, 18})
	data, err := ewkb.Marshal(poly, ewkb.NDR)
	require.NoError(t, err)

	points, parts, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.Len(t, points, 9)
	assert.Equal(t, []int{0, 5}, parts)
}

func TestDecodeEWKB_Unsupported(t *testing.T) {
	data, err := ewkb.Marshal(geom.NewPointFlat(geom.XY, []float64{1, 2}), ewkb.NDR)
	require.NoError(t, err)

	_, _, err = DecodeEWKB(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported geometry")

	_, _, err = DecodeEWKB([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestFlatRings_XYZStride(t *testing.T) {
	flat := []float64{0, 0, 9, 0, 1, 9, 1, 1, 9}
	points, parts := flatRings(flat, 3, []int{9})
	assert.Equal(t, []geozone.Point{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}, {Lon: 1, Lat: 1}}, points)
	assert.Equal(t, []int{0}, parts)
}

func TestFlatRings_SkipsEmptyRings(t *testing.T) {
	flat := []float64{0, 0, 0, 1, 1, 1}
	points, parts := flatRings(flat, 2, []int{0, 6, 6})
	assert.Len(t, points, 3)
	assert.Equal(t, []int{0}, parts)
}

func TestFromShape(t *testing.T) {
	pl := shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 4, Y: 4}, {X: 4, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 4}, {X: 4, Y: 4}},
	})
	poly := shp.Polygon(*pl)

	box, points, parts, ok := fromShape(&poly)
	require.True(t, ok)
	assert.Equal(t, geozone.BBox{MinLon: 0, MinLat: 0, MaxLon: 10, MaxLat: 10}, box)
	assert.Len(t, points, 10)
	assert.Equal(t, []int{0, 5}, parts)

	_, _, _, ok = fromShape(&shp.Point{X: 1, Y: 1})
	assert.False(t, ok)
	_, _, _, ok = fromShape(&shp.Polygon{})
	assert.False(t, ok)
}
