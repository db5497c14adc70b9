package geozone

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// NoMatch marks a point that no polygon contains.
const NoMatch = -1

// minParallelSpan is the smallest slice of points handed to one worker.
const minParallelSpan = 1024

// FindFirst returns the index of the first polygon, in collection order,
// that contains p. Polygons whose box, grown by the collection epsilon,
// excludes p are not ring-tested.
func (c *Collection) FindFirst(p Point) (int, bool) {
	for i, box := range c.filter {
		if !box.Contains(p) {
			continue
		}
		s := c.shapes[i]
		if s.pointCount <= 0 || s.partCount <= 0 {
			continue
		}
		points := c.points[s.pointStart : s.pointStart+s.pointCount]
		parts := c.parts[s.partStart : s.partStart+s.partCount]
		if shapeContains(p, points, parts, s.pointStart, c.eps) {
			return i, true
		}
	}
	return NoMatch, false
}

// FindFirstBatch applies FindFirst to every point. The result has the same
// length and order as points, with NoMatch where nothing matched.
func (c *Collection) FindFirstBatch(points []Point) []int {
	out := make([]int, len(points))
	c.findInto(out, points)
	return out
}

func (c *Collection) findInto(dst []int, points []Point) {
	for i, p := range points {
		idx, _ := c.FindFirst(p)
		dst[i] = idx
	}
}

// FindFirstParallel computes the same result as FindFirstBatch by splitting
// points across at most workers goroutines. It fails only if ctx is done.
func FindFirstParallel(ctx context.Context, c *Collection, points []Point, workers int) ([]int, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]int, len(points))

	span := (len(points) + workers - 1) / workers
	if span < minParallelSpan {
		span = minParallelSpan
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(points); start += span {
		end := min(start+span, len(points))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.findInto(out[start:end], points[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// shapeContains is PointInShape for parts stored as absolute offsets; base
// is the absolute offset of points[0].
func shapeContains(p Point, points []Point, parts []int, base int, eps float64) bool {
	inside := false
	for i, off := range parts {
		start := off - base
		end := len(points)
		if i+1 < len(parts) {
			end = parts[i+1] - base
		}
		if start < 0 || end > len(points) || start >= end {
			continue
		}
		if PointInRing(p, points[start:end], eps) {
			inside = !inside
		}
	}
	return inside
}
