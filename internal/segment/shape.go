package segment

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Bounds is the axis-aligned box enclosing a shape, in pixel coordinates.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Shape describes the region enclosed by one closed contour path.
type Shape struct {
	Bounds Bounds `json:"bounds"`

	// Center is the area centroid.
	Center orb.Point `json:"center"`

	// Area is the enclosed area in square pixels.
	Area float64 `json:"area"`

	// Perimeter is the path length in pixels.
	Perimeter float64 `json:"perimeter"`

	// Circularity is 4·pi·Area/Perimeter², 1 for a disc.
	Circularity float64 `json:"circularity"`

	// Rectangularity is Area divided by the area of Bounds, 1 for an
	// axis-aligned rectangle.
	Rectangularity float64 `json:"rectangularity"`
}

// Describe measures a closed path. It reports false for open paths, which
// are cut by the image border and enclose no area.
func Describe(p Path) (Shape, bool) {
	if !p.Closed || len(p.Points) < 4 {
		return Shape{}, false
	}
	center, area := planar.CentroidArea(orb.Polygon{orb.Ring(p.Points)})
	area = math.Abs(area)
	perimeter := planar.Length(p.Points)
	b := p.Points.Bound()

	s := Shape{
		Bounds:    Bounds{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]},
		Center:    center,
		Area:      area,
		Perimeter: perimeter,
	}
	if perimeter > 0 {
		s.Circularity = 4 * math.Pi * area / (perimeter * perimeter)
	}
	if boxArea := (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1]); boxArea > 0 {
		s.Rectangularity = area / boxArea
	}
	return s, true
}

// Shapes measures every closed path enclosing at least minArea square
// pixels, largest first.
func (c *Contour) Shapes(minArea float64) []Shape {
	shapes := make([]Shape, 0, len(c.Paths))
	for _, p := range c.Paths {
		if s, ok := Describe(p); ok && s.Area >= minArea {
			shapes = append(shapes, s)
		}
	}
	sort.Slice(shapes, func(i, j int) bool {
		return shapes[i].Area > shapes[j].Area
	})
	return shapes
}
