package mapserver

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/localize/internal/localize/grid"
)

// ToOccupancyMap converts a map image using meta. Image row 0 is the top
// of the map while occupancy row 0 is the bottom, so rows are flipped.
func ToOccupancyMap(img image.Image, meta Metadata) grid.OccupancyMap {
	gray := imaging.Grayscale(imaging.FlipV(img))
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	m := grid.OccupancyMap{
		Width:      w,
		Height:     h,
		Resolution: meta.Resolution,
		Origin:     meta.OriginPose(),
		Data:       make([]int8, w*h),
	}
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+4*w]
		for x := 0; x < w; x++ {
			m.Data[y*w+x] = cellValue(row[4*x], row[4*x+3], meta)
		}
	}
	return m
}

// cellValue maps one grey level (and alpha) to an occupancy value.
func cellValue(v, alpha uint8, meta Metadata) int8 {
	if meta.Mode == ModeRaw {
		return int8(v)
	}
	// Transparent pixels are unknown in scale mode.
	if meta.Mode == ModeScale && alpha < 255 {
		return grid.RawUnknown
	}

	p := float64(255-v) / 255
	if meta.Negate != 0 {
		p = float64(v) / 255
	}
	switch {
	case p > meta.OccupiedThresh:
		return grid.RawOccupied
	case p < meta.FreeThresh:
		return grid.RawFree
	case meta.Mode == ModeScale:
		ratio := (p - meta.FreeThresh) / (meta.OccupiedThresh - meta.FreeThresh)
		return int8(math.Round(99 * ratio))
	default:
		return grid.RawUnknown
	}
}
