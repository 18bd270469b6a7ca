package matcher

import (
	"math"

	"github.com/banshee-data/localize/internal/localize/grid"
)

// kernelSigmas is how far, in standard deviations, the smear extends.
const kernelSigmas = 2.5

// smearedLookup holds, per cell, the strongest Gaussian contribution of any
// nearby occupied cell, scaled to [0, 100].
type smearedLookup struct {
	conv   grid.CoordinateConverter
	values []float64
}

func newSmearedLookup(g *grid.CorrelationGrid, sigma float64) *smearedLookup {
	lk := &smearedLookup{
		conv:   g.Converter,
		values: make([]float64, len(g.Cells)),
	}
	kernel, half := gaussianKernel(sigma, g.Resolution)

	for gy := 0; gy < g.Height; gy++ {
		for gx := 0; gx < g.Width; gx++ {
			if g.At(gx, gy) != grid.CellOccupied {
				continue
			}
			for ky := -half; ky <= half; ky++ {
				for kx := -half; kx <= half; kx++ {
					x, y := gx+kx, gy+ky
					if !lk.conv.InBounds(x, y) {
						continue
					}
					v := kernel[(ky+half)*(2*half+1)+kx+half]
					idx := lk.conv.Index(x, y)
					if v > lk.values[idx] {
						lk.values[idx] = v
					}
				}
			}
		}
	}
	return lk
}

// gaussianKernel returns a square kernel of side 2*half+1.
func gaussianKernel(sigma, resolution float64) ([]float64, int) {
	if sigma <= 0 || resolution <= 0 {
		return []float64{100}, 0
	}
	half := int(math.Ceil(kernelSigmas * sigma / resolution))
	side := 2*half + 1
	k := make([]float64, side*side)
	for ky := -half; ky <= half; ky++ {
		for kx := -half; kx <= half; kx++ {
			d2 := float64(kx*kx+ky*ky) * resolution * resolution
			k[(ky+half)*side+kx+half] = 100 * math.Exp(-d2/(2*sigma*sigma))
		}
	}
	return k, half
}

func (lk *smearedLookup) value(wx, wy float64) float64 {
	idx, ok := lk.conv.WorldToIndex(wx, wy)
	if !ok {
		return 0
	}
	return lk.values[idx]
}
