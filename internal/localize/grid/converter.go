package grid

import "math"

// cellEpsilon absorbs floating point error when a world coordinate lies
// exactly on a cell boundary, e.g. origin + k*resolution.
const cellEpsilon = 1e-6

// CoordinateConverter maps between world coordinates (meters) and integer
// grid cells. Offset is the world position of cell (0,0)'s corner.
type CoordinateConverter struct {
	OffsetX    float64
	OffsetY    float64
	Resolution float64
	Width      int
	Height     int
}

// WorldToGrid returns the cell containing world point (wx, wy). The result
// may lie outside the grid; check with InBounds.
func (c CoordinateConverter) WorldToGrid(wx, wy float64) (int, int) {
	gx := int(math.Floor((wx-c.OffsetX)/c.Resolution + cellEpsilon))
	gy := int(math.Floor((wy-c.OffsetY)/c.Resolution + cellEpsilon))
	return gx, gy
}

// GridToWorld returns the world position of cell (gx, gy)'s corner.
func (c CoordinateConverter) GridToWorld(gx, gy int) (float64, float64) {
	return c.OffsetX + float64(gx)*c.Resolution, c.OffsetY + float64(gy)*c.Resolution
}

// InBounds reports whether (gx, gy) addresses a cell.
func (c CoordinateConverter) InBounds(gx, gy int) bool {
	return gx >= 0 && gy >= 0 && gx < c.Width && gy < c.Height
}

// Index returns the row-major linear index of (gx, gy).
func (c CoordinateConverter) Index(gx, gy int) int {
	return gy*c.Width + gx
}

// WorldToIndex combines WorldToGrid and Index. ok is false when the point
// falls outside the grid.
func (c CoordinateConverter) WorldToIndex(wx, wy float64) (idx int, ok bool) {
	gx, gy := c.WorldToGrid(wx, wy)
	if !c.InBounds(gx, gy) {
		return -1, false
	}
	return c.Index(gx, gy), true
}
