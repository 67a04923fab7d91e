package segment

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// Path is one connected piece of the segmentation boundary in pixel
// coordinates (X = column, Y = row). A closed path repeats its first point at
// the end.
type Path struct {
	Points orb.LineString `json:"points"`
	Closed bool           `json:"closed"`
}

// Contour is the boundary of {u > threshold} together with the mask itself.
type Contour struct {
	Threshold float64     `json:"threshold"`
	Mask      *field.Mask `json:"-"`
	Paths     []Path      `json:"paths"`
}

// Length returns the total length of all paths in pixels.
func (c *Contour) Length() float64 {
	var total float64
	for _, p := range c.Paths {
		total += planar.Length(p.Points)
	}
	return total
}

// Simplify returns a copy whose paths are reduced with Douglas-Peucker at the
// given tolerance in pixels. The mask is shared.
func (c *Contour) Simplify(tolerance float64) *Contour {
	out := &Contour{Threshold: c.Threshold, Mask: c.Mask, Paths: make([]Path, 0, len(c.Paths))}
	s := simplify.DouglasPeucker(tolerance)
	for _, p := range c.Paths {
		ls := s.Simplify(p.Points.Clone()).(orb.LineString)
		if len(ls) < 2 {
			continue
		}
		out.Paths = append(out.Paths, Path{Points: ls, Closed: p.Closed})
	}
	return out
}

// segment is one marching-squares piece joining two grid edges.
type segment [2]int

// ExtractContour traces the level set u = threshold with marching squares.
//
// Grid nodes are pixel centres; crossings are placed by linear interpolation
// along cell edges. A node is inside when u > threshold, the same strict rule
// as the region partition. Ambiguous saddle cells are resolved by the mean of
// their four corners. ExtractContour is a pure function of its arguments.
func ExtractContour(u *field.Field, threshold float64) *Contour {
	height, width := u.Height(), u.Width()
	c := &Contour{Threshold: threshold, Mask: field.Threshold(u, threshold)}
	if height < 2 || width < 2 {
		return c
	}

	points := make(map[int]orb.Point)
	var segs []segment
	inside := c.Mask.Bits

	// Edge ids: horizontal edge from node (y,x) to (y,x+1) is 2*(y*width+x),
	// vertical edge from (y,x) to (y+1,x) is 2*(y*width+x)+1.
	edge := func(y, x int, vertical bool) int {
		id := 2 * (y*width + x)
		if vertical {
			id++
		}
		if _, ok := points[id]; !ok {
			a := u.At(y, x)
			var b float64
			if vertical {
				b = u.At(y+1, x)
			} else {
				b = u.At(y, x+1)
			}
			t := 0.5
			if a != b {
				t = (threshold - a) / (b - a)
				if t < 0 {
					t = 0
				} else if t > 1 {
					t = 1
				}
			}
			if vertical {
				points[id] = orb.Point{float64(x), float64(y) + t}
			} else {
				points[id] = orb.Point{float64(x) + t, float64(y)}
			}
		}
		return id
	}

	for y := 0; y+1 < height; y++ {
		for x := 0; x+1 < width; x++ {
			code := 0
			if inside[y*width+x] {
				code |= 8
			}
			if inside[y*width+x+1] {
				code |= 4
			}
			if inside[(y+1)*width+x+1] {
				code |= 2
			}
			if inside[(y+1)*width+x] {
				code |= 1
			}
			if code == 0 || code == 15 {
				continue
			}

			top := func() int { return edge(y, x, false) }
			bottom := func() int { return edge(y+1, x, false) }
			left := func() int { return edge(y, x, true) }
			right := func() int { return edge(y, x+1, true) }

			switch code {
			case 1, 14:
				segs = append(segs, segment{left(), bottom()})
			case 2, 13:
				segs = append(segs, segment{bottom(), right()})
			case 3, 12:
				segs = append(segs, segment{left(), right()})
			case 4, 11:
				segs = append(segs, segment{top(), right()})
			case 6, 9:
				segs = append(segs, segment{top(), bottom()})
			case 7, 8:
				segs = append(segs, segment{top(), left()})
			case 5, 10:
				centre := (u.At(y, x) + u.At(y, x+1) + u.At(y+1, x) + u.At(y+1, x+1)) / 4
				// Separate the two outside corners when the centre is inside.
				if (code == 5) == (centre > threshold) {
					segs = append(segs, segment{top(), left()}, segment{bottom(), right()})
				} else {
					segs = append(segs, segment{top(), right()}, segment{left(), bottom()})
				}
			}
		}
	}

	c.Paths = stitch(segs, points)
	return c
}

// stitch joins segments sharing an edge into polylines. Chains touching the
// image border are traced first so they start at an open end.
func stitch(segs []segment, points map[int]orb.Point) []Path {
	adjacent := make(map[int][]int, 2*len(segs))
	for i, s := range segs {
		adjacent[s[0]] = append(adjacent[s[0]], i)
		adjacent[s[1]] = append(adjacent[s[1]], i)
	}
	used := make([]bool, len(segs))

	trace := func(start, from int) Path {
		ids := []int{from}
		cur, seg := from, start
		closed := false
		for {
			used[seg] = true
			next := segs[seg][0]
			if next == cur {
				next = segs[seg][1]
			}
			ids = append(ids, next)
			if next == ids[0] {
				closed = true
				break
			}
			seg = -1
			for _, cand := range adjacent[next] {
				if !used[cand] {
					seg = cand
					break
				}
			}
			if seg < 0 {
				break
			}
			cur = next
		}
		ls := make(orb.LineString, len(ids))
		for i, id := range ids {
			ls[i] = points[id]
		}
		return Path{Points: ls, Closed: closed}
	}

	var paths []Path
	for i, s := range segs {
		if used[i] {
			continue
		}
		for _, end := range s {
			if len(adjacent[end]) == 1 {
				paths = append(paths, trace(i, end))
				break
			}
		}
	}
	for i, s := range segs {
		if !used[i] {
			paths = append(paths, trace(i, s[0]))
		}
	}
	return paths
}
