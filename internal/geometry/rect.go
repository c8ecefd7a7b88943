package geometry

import "image"

// Rect is an axis-aligned rectangle in image pixel space.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Enclose returns the minimal rectangle covering the top-left and bottom-right
// extremes of every box. The second result is false when boxes is empty.
func Enclose(boxes []BoundingBox) (Rect, bool) {
	if len(boxes) == 0 {
		return Rect{}, false
	}
	minX, minY := boxes[0].TopLeft.X, boxes[0].TopLeft.Y
	maxX, maxY := minX, minY
	for _, b := range boxes {
		for _, p := range []Point{b.TopLeft, b.BottomRight} {
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
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Box returns r as a four-corner bounding box.
func (r Rect) Box() BoundingBox {
	return NewBox(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}
