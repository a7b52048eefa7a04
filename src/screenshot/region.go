package screenshot

// MinSelectionSpan is the smallest accepted width and height, in logical pixels.
const MinSelectionSpan = 10

// Point is a viewport-relative position in logical pixels.
type Point struct {
	X int
	Y int
}

// Rect is a selection rectangle in logical viewport pixels.
type Rect struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Normalize builds the rectangle spanned by a drag from anchor to current,
// whichever direction the pointer moved. Negative viewport coordinates are
// clamped to the viewport edge.
func Normalize(anchor, current Point) Rect {
	anchor = clampPoint(anchor)
	current = clampPoint(current)
	return Rect{
		Left:   min(anchor.X, current.X),
		Top:    min(anchor.Y, current.Y),
		Width:  abs(current.X - anchor.X),
		Height: abs(current.Y - anchor.Y),
	}
}

// Valid reports whether both dimensions reach MinSelectionSpan.
func (r Rect) Valid() bool {
	return r.Width >= MinSelectionSpan && r.Height >= MinSelectionSpan
}

// Right returns Left+Width.
func (r Rect) Right() int { return r.Left + r.Width }

// Bottom returns Top+Height.
func (r Rect) Bottom() int { return r.Top + r.Height }

func clampPoint(p Point) Point {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	return p
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
