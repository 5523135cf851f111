package geo

import (
	"math"
	"strconv"
)

// CellKey identifies one cell of a uniform lat/lon grid.
type CellKey struct {
	X int
	Y int
}

func (k CellKey) String() string {
	return strconv.Itoa(k.X) + ":" + strconv.Itoa(k.Y)
}

// Grid is a uniform grid with square cells of Size degrees.
type Grid struct {
	Size float64
}

// NewGrid returns a grid with the given cell size in degrees.
func NewGrid(size float64) Grid {
	return Grid{Size: size}
}

// Cell returns the cell containing c.
func (g Grid) Cell(c Coordinates) CellKey {
	return CellKey{
		X: int(math.Floor(c.Longitude / g.Size)),
		Y: int(math.Floor(c.Latitude / g.Size)),
	}
}

// CellRange is an inclusive rectangle of grid cells.
type CellRange struct {
	MinX, MaxX int
	MinY, MaxY int
}

// Empty reports whether the range holds no cells.
func (r CellRange) Empty() bool {
	return r.MaxX < r.MinX || r.MaxY < r.MinY
}

// Len returns the number of cells in the range.
func (r CellRange) Len() int {
	if r.Empty() {
		return 0
	}
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// Contains reports whether k falls inside the range.
func (r CellRange) Contains(k CellKey) bool {
	return k.X >= r.MinX && k.X <= r.MaxX && k.Y >= r.MinY && k.Y <= r.MaxY
}

// Range returns the cells overlapping b.
func (g Grid) Range(b BoundingBox) CellRange {
	return CellRange{
		MinX: int(math.Floor(b.West / g.Size)),
		MaxX: int(math.Floor(b.East / g.Size)),
		MinY: int(math.Floor(b.South / g.Size)),
		MaxY: int(math.Floor(b.North / g.Size)),
	}
}

// Cells returns every cell overlapping b, in row-major order.
func (g Grid) Cells(b BoundingBox) []CellKey {
	r := g.Range(b)
	if r.Empty() {
		return nil
	}

	keys := make([]CellKey, 0, r.Len())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			keys = append(keys, CellKey{X: x, Y: y})
		}
	}
	return keys
}
