package geometry

import (
	"image"
	"math"
)

// Point is an integer pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p translated by (dx, dy).
func (p Point) Add(dx, dy int) Point { return Point{X: p.X + dx, Y: p.Y + dy} }

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// BoundingBox is the four-corner quadrilateral reported by OCR engines.
// Corners are treated as axis-aligned; rotation is not modeled. Boxes whose
// bottom-right lies above or left of the top-left are kept as reported.
type BoundingBox struct {
	TopLeft     Point
	TopRight    Point
	BottomRight Point
	BottomLeft  Point
}

// NewBox builds an axis-aligned box from its top-left and bottom-right corners.
func NewBox(x1, y1, x2, y2 int) BoundingBox {
	return BoundingBox{
		TopLeft:     Point{X: x1, Y: y1},
		TopRight:    Point{X: x2, Y: y1},
		BottomRight: Point{X: x2, Y: y2},
		BottomLeft:  Point{X: x1, Y: y2},
	}
}

// FromPoints returns the axis-aligned box enclosing an arbitrary polygon.
// An empty polygon yields the zero box.
func FromPoints(pts []Point) BoundingBox {
	if len(pts) == 0 {
		return BoundingBox{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return NewBox(minX, minY, maxX, maxY)
}

// FromRect converts an image.Rectangle into a box.
func FromRect(r image.Rectangle) BoundingBox {
	return NewBox(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

// Corners returns the corners in clockwise order starting at the top-left.
func (b BoundingBox) Corners() [4]Point {
	return [4]Point{b.TopLeft, b.TopRight, b.BottomRight, b.BottomLeft}
}

// Center is the midpoint of the top-left and bottom-right corners, using
// floor division so odd spans round toward negative infinity.
func (b BoundingBox) Center() Point {
	return Point{
		X: floorDiv(b.TopLeft.X+b.BottomRight.X, 2),
		Y: floorDiv(b.TopLeft.Y+b.BottomRight.Y, 2),
	}
}

// Width is BottomRight.X - TopLeft.X and may be negative for corrupt boxes.
func (b BoundingBox) Width() int { return b.BottomRight.X - b.TopLeft.X }

// Height is BottomRight.Y - TopLeft.Y and may be negative for corrupt boxes.
func (b BoundingBox) Height() int { return b.BottomRight.Y - b.TopLeft.Y }

// Area is Width*Height.
func (b BoundingBox) Area() int { return b.Width() * b.Height() }

// Shift translates every corner by (dx, dy).
func (b BoundingBox) Shift(dx, dy int) BoundingBox {
	return BoundingBox{
		TopLeft:     b.TopLeft.Add(dx, dy),
		TopRight:    b.TopRight.Add(dx, dy),
		BottomRight: b.BottomRight.Add(dx, dy),
		BottomLeft:  b.BottomLeft.Add(dx, dy),
	}
}

// Scale multiplies every corner by (sx, sy), rounding to the nearest pixel.
func (b BoundingBox) Scale(sx, sy float64) BoundingBox {
	scale := func(p Point) Point {
		return Point{X: int(math.Round(float64(p.X) * sx)), Y: int(math.Round(float64(p.Y) * sy))}
	}
	return BoundingBox{
		TopLeft:     scale(b.TopLeft),
		TopRight:    scale(b.TopRight),
		BottomRight: scale(b.BottomRight),
		BottomLeft:  scale(b.BottomLeft),
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
