package grid

import (
	"errors"
	"fmt"

	"github.com/banshee-data/localize/internal/localize/geom"
)

// Raw occupancy values carried by an OccupancyMap.
const (
	RawFree     int8 = 0
	RawOccupied int8 = 100
	RawUnknown  int8 = -1
)

// ErrShortData is returned when a map's cell array is smaller than its
// declared Width×Height.
var ErrShortData = errors.New("occupancy map data shorter than width*height")

// OccupancyMap is a probabilistic occupancy grid as delivered by a map
// source. Data is row-major, index = y*Width + x, row 0 at the origin.
type OccupancyMap struct {
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Resolution float64     `json:"resolution"` // meters per cell
	Origin     geom.Pose2D `json:"origin"`
	Data       []int8      `json:"data"`
}

// CheckDimensions reports whether Data covers the declared dimensions.
func (m OccupancyMap) CheckDimensions() error {
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("invalid map dimensions %dx%d", m.Width, m.Height)
	}
	if len(m.Data) < m.Width*m.Height {
		return fmt.Errorf("%w: have %d cells, need %d", ErrShortData, len(m.Data), m.Width*m.Height)
	}
	return nil
}

// CellState is the discrete state of a correlation grid cell.
type CellState uint8

const (
	CellUnknown  CellState = 0
	CellOccupied CellState = 100
	CellFree     CellState = 255
)

func (s CellState) String() string {
	switch s {
	case CellUnknown:
		return "unknown"
	case CellOccupied:
		return "occupied"
	case CellFree:
		return "free"
	default:
		return fmt.Sprintf("CellState(%d)", uint8(s))
	}
}

// ClassifyRaw applies the fixed cell mapping rule: 0 → free, 100 →
// occupied, anything else → unknown.
func ClassifyRaw(v int8) CellState {
	switch v {
	case RawFree:
		return CellFree
	case RawOccupied:
		return CellOccupied
	default:
		return CellUnknown
	}
}
