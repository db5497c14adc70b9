package geozone

import "github.com/rotisserie/eris"

// ErrInvalidCollection is returned by FromArrays when the arrays are not
// mutually consistent.
var ErrInvalidCollection = eris.New("geozone: invalid collection arrays")

// shapeRef locates one polygon within the shared point and part arrays.
type shapeRef struct {
	pointStart int
	pointCount int
	partStart  int
	partCount  int
}

// Collection is an immutable set of polygons stored as shared backing arrays
// with per-polygon descriptors. Part offsets in parts are absolute indices
// into points. A Collection is safe for concurrent use.
//
// boxes holds the polygon boxes as supplied. filter holds the same boxes
// grown by eps, since the ring test accepts points up to eps outside an edge.
type Collection struct {
	boxes  []BBox
	filter []BBox
	shapes []shapeRef
	points []Point
	parts  []int
	eps    float64
}

// Option configures a Builder.
type Option func(*options)

type options struct {
	eps float64
}

// WithEpsilon sets the boundary tolerance used by the collection.
func WithEpsilon(eps float64) Option {
	return func(o *options) {
		if eps >= 0 {
			o.eps = eps
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{eps: DefaultEpsilon}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Builder accumulates polygons into a Collection.
type Builder struct {
	opts   options
	boxes  []BBox
	shapes []shapeRef
	points []Point
	parts  []int
}

// NewBuilder returns an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	return &Builder{opts: applyOptions(opts)}
}

// Add appends a polygon and computes its bounding box from points. parts
// holds ring start offsets relative to points. It returns the polygon's
// index in the collection.
func (b *Builder) Add(points []Point, parts []int) int {
	return b.AddWithBBox(BoundsOf(points), points, parts)
}

// AddWithBBox appends a polygon with a caller-supplied bounding box. The box
// is trusted as-is.
func (b *Builder) AddWithBBox(box BBox, points []Point, parts []int) int {
	ref := shapeRef{
		pointStart: len(b.points),
		pointCount: len(points),
		partStart:  len(b.parts),
		partCount:  len(parts),
	}
	b.points = append(b.points, points...)
	for _, off := range parts {
		b.parts = append(b.parts, ref.pointStart+off)
	}
	b.boxes = append(b.boxes, box)
	b.shapes = append(b.shapes, ref)
	return len(b.shapes) - 1
}

// Len returns the number of polygons added so far.
func (b *Builder) Len() int {
	return len(b.shapes)
}

// Build returns the collection and resets the builder.
func (b *Builder) Build() *Collection {
	c := &Collection{
		boxes:  b.boxes,
		filter: growBoxes(b.boxes, b.opts.eps),
		shapes: b.shapes,
		points: b.points,
		parts:  b.parts,
		eps:    b.opts.eps,
	}
	*b = Builder{opts: b.opts}
	return c
}

// Arrays is the flattened form produced by external geometry loaders. All
// per-polygon slices have one entry per polygon. Parts holds absolute
// offsets into Points.
type Arrays struct {
	BBoxes     []BBox
	PointStart []int
	PointCount []int
	PartStart  []int
	PartCount  []int
	Points     []Point
	Parts      []int
	Epsilon    float64
}

// FromArrays wraps loader-produced arrays in a Collection after checking
// that every descriptor stays within the shared arrays. The arrays are not
// copied and must not be modified afterwards. Polygons with a zero point or
// part count are accepted and never match.
func FromArrays(a Arrays) (*Collection, error) {
	n := len(a.BBoxes)
	if len(a.PointStart) != n || len(a.PointCount) != n || len(a.PartStart) != n || len(a.PartCount) != n {
		return nil, eris.Wrap(ErrInvalidCollection, "geozone: per-polygon array lengths differ")
	}
	if a.Epsilon < 0 {
		return nil, eris.Wrapf(ErrInvalidCollection, "geozone: negative epsilon %g", a.Epsilon)
	}

	shapes := make([]shapeRef, n)
	for i := range n {
		ref := shapeRef{
			pointStart: a.PointStart[i],
			pointCount: a.PointCount[i],
			partStart:  a.PartStart[i],
			partCount:  a.PartCount[i],
		}
		if ref.pointStart < 0 || ref.pointCount < 0 || ref.pointStart+ref.pointCount > len(a.Points) {
			return nil, eris.Wrapf(ErrInvalidCollection, "geozone: polygon %d point span out of range", i)
		}
		if ref.partStart < 0 || ref.partCount < 0 || ref.partStart+ref.partCount > len(a.Parts) {
			return nil, eris.Wrapf(ErrInvalidCollection, "geozone: polygon %d part span out of range", i)
		}
		shapes[i] = ref
	}

	return &Collection{
		boxes:  a.BBoxes,
		filter: growBoxes(a.BBoxes, a.Epsilon),
		shapes: shapes,
		points: a.Points,
		parts:  a.Parts,
		eps:    a.Epsilon,
	}, nil
}

func growBoxes(boxes []BBox, eps float64) []BBox {
	if eps == 0 {
		return boxes
	}
	out := make([]BBox, len(boxes))
	for i, b := range boxes {
		out[i] = b.Grow(eps)
	}
	return out
}

// Len returns the number of polygons.
func (c *Collection) Len() int { return len(c.shapes) }

// NumPoints returns the size of the shared point array.
func (c *Collection) NumPoints() int { return len(c.points) }

// NumRings returns the size of the shared part array.
func (c *Collection) NumRings() int { return len(c.parts) }

// Epsilon returns the boundary tolerance.
func (c *Collection) Epsilon() float64 { return c.eps }

// BBox returns the box of polygon i as it was supplied.
func (c *Collection) BBox(i int) BBox { return c.boxes[i] }

// PolygonSize returns the vertex and ring counts of polygon i.
func (c *Collection) PolygonSize(i int) (points, rings int) {
	s := c.shapes[i]
	return s.pointCount, s.partCount
}

// Polygon returns the points of polygon i and its ring start offsets
// relative to those points. The points alias the collection and must not be
// modified.
func (c *Collection) Polygon(i int) (points []Point, parts []int) {
	s := c.shapes[i]
	points = c.points[s.pointStart : s.pointStart+s.pointCount : s.pointStart+s.pointCount]
	parts = make([]int, s.partCount)
	for k, off := range c.parts[s.partStart : s.partStart+s.partCount] {
		parts[k] = off - s.pointStart
	}
	return points, parts
}

// Extent returns the union of all finite polygon boxes.
func (c *Collection) Extent() BBox {
	ext := EmptyBBox
	for _, b := range c.boxes {
		if b == UnboundedBBox {
			continue
		}
		ext = ext.Union(b)
	}
	return ext
}
