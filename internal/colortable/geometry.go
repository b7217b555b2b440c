package colortable

import (
	"fmt"
	"image"
)

// HoursPerDay is the number of equal-width hour columns in the table.
const HoursPerDay = 24

// DefaultInset trims 20% off each side of a cell before sampling, leaving
// the central 60% of each axis.
const DefaultInset = 0.2

// RowBounds locates one queue row in pixel space.
type RowBounds struct {
	Queue  string
	YStart int
	YEnd   int
}

// Geometry is the fixed table layout of a schedule image.
type Geometry struct {
	XLeft  int
	XRight int
	Rows   []RowBounds
	Inset  float64

	// Width and Height, when both set, require an exact image size.
	// Otherwise the image only has to cover the table.
	Width  int
	Height int
}

// Queues lists the queue ids in row order.
var Queues = []string{
	"1.1", "1.2", "2.1", "2.2", "3.1", "3.2",
	"4.1", "4.2", "5.1", "5.2", "6.1", "6.2",
}

// DefaultGeometry is the layout of the regional grid operator's published
// table, calibrated against real images.
func DefaultGeometry() Geometry {
	ys := [][2]int{
		{319, 365}, {371, 418}, {424, 470}, {476, 523},
		{529, 576}, {582, 628}, {634, 681}, {687, 733},
		{739, 786}, {792, 839}, {845, 891}, {897, 943},
	}
	rows := make([]RowBounds, len(Queues))
	for i, q := range Queues {
		rows[i] = RowBounds{Queue: q, YStart: ys[i][0], YEnd: ys[i][1]}
	}
	return Geometry{
		XLeft:  162,
		XRight: 1547,
		Rows:   rows,
		Inset:  DefaultInset,
	}
}

// UniformGeometry builds a grid of equally sized cells starting at the
// origin. Handy for synthetic tables.
func UniformGeometry(queues []string, cellWidth, cellHeight int) Geometry {
	rows := make([]RowBounds, len(queues))
	for i, q := range queues {
		rows[i] = RowBounds{Queue: q, YStart: i * cellHeight, YEnd: (i + 1) * cellHeight}
	}
	return Geometry{
		XLeft:  0,
		XRight: cellWidth * HoursPerDay,
		Rows:   rows,
		Inset:  DefaultInset,
		Width:  cellWidth * HoursPerDay,
		Height: cellHeight * len(queues),
	}
}

// columnWidth is the width of one hour column in pixels.
func (g Geometry) columnWidth() float64 {
	return float64(g.XRight-g.XLeft) / HoursPerDay
}

// bottom is the lowest row edge.
func (g Geometry) bottom() int {
	b := 0
	for _, r := range g.Rows {
		if r.YEnd > b {
			b = r.YEnd
		}
	}
	return b
}

// Check verifies the geometry itself and that an image of the given bounds
// can hold it.
func (g Geometry) Check(bounds image.Rectangle) error {
	if g.XRight <= g.XLeft || g.XLeft < 0 {
		return fmt.Errorf("%w: invalid x bounds %d..%d", ErrGeometryMismatch, g.XLeft, g.XRight)
	}
	if len(g.Rows) == 0 {
		return fmt.Errorf("%w: no rows", ErrGeometryMismatch)
	}
	for _, r := range g.Rows {
		if r.YEnd <= r.YStart || r.YStart < 0 {
			return fmt.Errorf("%w: invalid y bounds for queue %s", ErrGeometryMismatch, r.Queue)
		}
	}

	w, h := bounds.Dx(), bounds.Dy()
	if g.Width > 0 && g.Height > 0 && (w != g.Width || h != g.Height) {
		return fmt.Errorf("%w: image is %dx%d, expected %dx%d",
			ErrGeometryMismatch, w, h, g.Width, g.Height)
	}
	if w < g.XRight || h < g.bottom() {
		return fmt.Errorf("%w: image is %dx%d, table needs %dx%d",
			ErrGeometryMismatch, w, h, g.XRight, g.bottom())
	}
	return nil
}

// cellRect returns the sampled region of (row, hour) relative to the image
// origin.
func (g Geometry) cellRect(row RowBounds, hour int) image.Rectangle {
	inset := g.Inset
	if inset <= 0 || inset >= 0.5 {
		inset = DefaultInset
	}
	colW := g.columnWidth()
	rowH := float64(row.YEnd - row.YStart)

	x0 := float64(g.XLeft) + float64(hour)*colW
	x1 := int(x0 + colW*inset)
	x2 := int(x0 + colW*(1-inset))
	y1 := int(float64(row.YStart) + rowH*inset)
	y2 := int(float64(row.YStart) + rowH*(1-inset))

	if x2 <= x1 {
		x2 = x1 + 1
	}
	if y2 <= y1 {
		y2 = y1 + 1
	}
	return image.Rect(x1, y1, x2, y2)
}
