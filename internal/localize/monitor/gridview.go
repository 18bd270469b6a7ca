package monitor

import "github.com/banshee-data/localize/internal/localize/grid"

// gridView is a downsampled, read-only view of a correlation grid used by
// both renderers. Z is 0 for free, 0.5 for unknown and 1 for occupied; a
// block takes the highest value of the cells it covers so thin walls
// survive downsampling. Row 0 is the bottom of the map.
type gridView struct {
	cols, rows       int
	stride           int
	cell             float64
	originX, originY float64
	values           []float64
}

func cellWeight(s grid.CellState) float64 {
	switch s {
	case grid.CellOccupied:
		return 1
	case grid.CellFree:
		return 0
	default:
		return 0.5
	}
}

func newGridView(g *grid.CorrelationGrid, maxSide int) gridView {
	if maxSide <= 0 {
		maxSide = 1
	}
	side := max(g.Width, g.Height)
	stride := (side + maxSide - 1) / maxSide
	if stride < 1 {
		stride = 1
	}
	v := gridView{
		cols:    (g.Width + stride - 1) / stride,
		rows:    (g.Height + stride - 1) / stride,
		stride:  stride,
		cell:    g.Resolution * float64(stride),
		originX: g.Converter.OffsetX,
		originY: g.Converter.OffsetY,
	}
	v.values = make([]float64, v.cols*v.rows)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			i := (y/stride)*v.cols + x/stride
			v.values[i] = max(v.values[i], cellWeight(g.Cells[y*g.Width+x]))
		}
	}
	return v
}

// Dims, Z, X and Y implement gonum plotter.GridXYZ.
func (v gridView) Dims() (c, r int) { return v.cols, v.rows }

func (v gridView) Z(c, r int) float64 { return v.values[r*v.cols+c] }

func (v gridView) X(c int) float64 { return v.originX + (float64(c)+0.5)*v.cell }

func (v gridView) Y(r int) float64 { return v.originY + (float64(r)+0.5)*v.cell }
