package grid

import "github.com/banshee-data/localize/internal/localize/geom"

// CorrelationGrid is the dense search grid derived from an OccupancyMap.
// It is built wholesale by Build and never mutated afterwards.
type CorrelationGrid struct {
	Width          int
	Height         int
	Resolution     float64
	SmearDeviation float64
	Converter      CoordinateConverter
	Cells          []CellState
}

// Build converts m into a CorrelationGrid with identical dimensions and an
// offset equal to the map origin.
func Build(m OccupancyMap, smearDeviation float64) (*CorrelationGrid, error) {
	if err := m.CheckDimensions(); err != nil {
		return nil, err
	}

	n := m.Width * m.Height
	g := &CorrelationGrid{
		Width:          m.Width,
		Height:         m.Height,
		Resolution:     m.Resolution,
		SmearDeviation: smearDeviation,
		Converter: CoordinateConverter{
			OffsetX:    m.Origin.X,
			OffsetY:    m.Origin.Y,
			Resolution: m.Resolution,
			Width:      m.Width,
			Height:     m.Height,
		},
		Cells: make([]CellState, n),
	}
	for i := 0; i < n; i++ {
		g.Cells[i] = ClassifyRaw(m.Data[i])
	}
	return g, nil
}

// At returns the state of cell (gx, gy), or CellUnknown outside the grid.
func (g *CorrelationGrid) At(gx, gy int) CellState {
	if !g.Converter.InBounds(gx, gy) {
		return CellUnknown
	}
	return g.Cells[g.Converter.Index(gx, gy)]
}

// Origin returns the world offset of the grid as a pose with zero heading.
func (g *CorrelationGrid) Origin() geom.Pose2D {
	return geom.Pose2D{X: g.Converter.OffsetX, Y: g.Converter.OffsetY}
}

// Counts tallies cells by state.
func (g *CorrelationGrid) Counts() (free, occupied, unknown int) {
	for _, c := range g.Cells {
		switch c {
		case CellFree:
			free++
		case CellOccupied:
			occupied++
		default:
			unknown++
		}
	}
	return free, occupied, unknown
}
