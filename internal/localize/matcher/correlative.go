package matcher

import (
	"errors"
	"math"
	"sync"

	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
)

const (
	distancePenaltyGain = 0.2
	anglePenaltyGain    = 0.2
	// covarianceWindow selects responses close enough to the best to shape
	// the covariance estimate.
	covarianceWindow = 0.1
	maxVariance      = 500.0
	expansionStep    = 20 * math.Pi / 180
	expansionTries   = 3
	tieEpsilon       = 1e-12
)

// ErrClosed is returned by operations on a released matcher.
var ErrClosed = errors.New("scan matcher closed")

type point struct{ x, y float64 }

// Correlative is a brute-force correlative scan matcher.
type Correlative struct {
	params Params

	mu     sync.Mutex
	lookup *smearedLookup
}

// NewCorrelative builds the smeared lookup for g.
func NewCorrelative(p Params, g *grid.CorrelationGrid) (*Correlative, error) {
	if g == nil {
		return nil, errors.New("nil correlation grid")
	}
	if p.SearchSpaceResolution <= 0 {
		return nil, errors.New("search space resolution must be positive")
	}
	return &Correlative{
		params: p,
		lookup: newSmearedLookup(g, p.SmearDeviation),
	}, nil
}

// NewCorrelativeFactory adapts NewCorrelative to Factory.
func NewCorrelativeFactory(p Params, g *grid.CorrelationGrid) (ScanMatcher, error) {
	return NewCorrelative(p, g)
}

// Close implements ScanMatcher.
func (c *Correlative) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookup == nil {
		return ErrClosed
	}
	c.lookup = nil
	return nil
}

// MatchScan implements ScanMatcher. After Close it returns the initial pose
// with a zero score.
func (c *Correlative) MatchScan(scan *RangeScan, initial geom.Pose2D, usePenalty, useMatchScore bool) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.params
	fail := Result{
		Pose:       initial,
		Covariance: geom.NewCovariance(maxVariance, 0, maxVariance, 4*p.CoarseSearchAngleOffset*p.CoarseSearchAngleOffset),
	}
	if c.lookup == nil || scan == nil {
		return fail
	}
	pts := c.points(scan)
	if len(pts) == 0 {
		return fail
	}

	half := p.SearchSpaceDimension / 2
	angleOffset := p.CoarseSearchAngleOffset
	coarse := c.correlate(pts, initial, initial, half, p.SearchSpaceResolution, angleOffset, p.CoarseAngleResolution, usePenalty)
	if p.UseResponseExpansion && coarse.best <= tieEpsilon {
		for i := 0; i < expansionTries; i++ {
			angleOffset += expansionStep
			coarse = c.correlate(pts, initial, initial, half, p.SearchSpaceResolution, angleOffset, p.CoarseAngleResolution, usePenalty)
			if coarse.best > tieEpsilon {
				break
			}
		}
	}

	res := Result{Pose: coarse.pose, Score: coarse.best}
	xx, xy, yy := coarse.positionalCovariance(p.SearchSpaceResolution)
	hh := coarse.angularCovariance(p.CoarseAngleResolution)

	if useMatchScore && coarse.best > tieEpsilon {
		fine := c.correlate(pts, coarse.pose, initial,
			p.SearchSpaceResolution/2, p.SearchSpaceResolution/2,
			p.CoarseAngleResolution/2, p.FineSearchAngleOffset, usePenalty)
		if fine.best >= coarse.best {
			res.Pose, res.Score = fine.pose, fine.best
		}
		hh = fine.angularCovariance(p.FineSearchAngleOffset)
	}
	res.Covariance = geom.NewCovariance(xx, xy, yy, hh)
	return res
}

// points converts valid readings into sensor-frame points.
func (c *Correlative) points(scan *RangeScan) []point {
	prof := scan.Profile
	maxRange := prof.MaxRange
	if c.params.RangeThreshold > 0 && c.params.RangeThreshold < maxRange {
		maxRange = c.params.RangeThreshold
	}
	pts := make([]point, 0, len(scan.Readings))
	for i, r := range scan.Readings {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < prof.MinRange || r > maxRange {
			continue
		}
		a := prof.MinAngle + float64(i)*prof.AngularResolution
		pts = append(pts, point{r * math.Cos(a), r * math.Sin(a)})
	}
	return pts
}

// search is one evaluated window of candidate poses. Responses are stored
// angle-major, then y, then x.
type search struct {
	center  geom.Pose2D
	offsets []float64
	angles  []float64
	resp    []float64
	best    float64
	pose    geom.Pose2D
	bestA   int
	bestX   int
	bestY   int
}

func (s *search) at(a, y, x int) float64 {
	n := len(s.offsets)
	return s.resp[(a*n+y)*n+x]
}

func (c *Correlative) correlate(pts []point, center, initial geom.Pose2D, xyHalf, xyStep, angHalf, angStep float64, usePenalty bool) *search {
	s := &search{
		center:  center,
		offsets: steps(xyHalf, xyStep),
		angles:  steps(angHalf, angStep),
	}
	n := len(s.offsets)
	s.resp = make([]float64, len(s.angles)*n*n)
	rotated := make([]point, len(pts))
	norm := 100 * float64(len(pts))

	s.best = -1
	var sumX, sumY, sumA float64
	var ties int
	for ai, da := range s.angles {
		h := center.Heading + da
		cos, sin := math.Cos(h), math.Sin(h)
		for i, p := range pts {
			rotated[i] = point{cos*p.x - sin*p.y, sin*p.x + cos*p.y}
		}
		for yi, dy := range s.offsets {
			cy := center.Y + dy
			for xi, dx := range s.offsets {
				cx := center.X + dx
				var sum float64
				for _, p := range rotated {
					sum += c.lookup.value(cx+p.x, cy+p.y)
				}
				r := sum / norm
				if usePenalty {
					r *= c.penalty(cx-initial.X, cy-initial.Y, geom.NormalizeAngle(h-initial.Heading))
				}
				s.resp[(ai*n+yi)*n+xi] = r

				switch {
				case r > s.best+tieEpsilon:
					s.best = r
					s.bestA, s.bestX, s.bestY = ai, xi, yi
					sumX, sumY, sumA, ties = dx, dy, da, 1
				case math.Abs(r-s.best) <= tieEpsilon:
					sumX += dx
					sumY += dy
					sumA += da
					ties++
				}
			}
		}
	}
	k := float64(ties)
	s.pose = geom.Pose2D{
		X:       center.X + sumX/k,
		Y:       center.Y + sumY/k,
		Heading: geom.NormalizeAngle(center.Heading + sumA/k),
	}
	return s
}

func (c *Correlative) penalty(dx, dy, da float64) float64 {
	p := c.params
	dp, ap := 1.0, 1.0
	if v := p.DistanceVariancePenalty * p.DistanceVariancePenalty; v > 0 {
		dp = math.Max(1-distancePenaltyGain*(dx*dx+dy*dy)/v, p.MinimumDistancePenalty)
	}
	if v := p.AngleVariancePenalty * p.AngleVariancePenalty; v > 0 {
		ap = math.Max(1-anglePenaltyGain*(da*da)/v, p.MinimumAnglePenalty)
	}
	return dp * ap
}

// positionalCovariance weighs the translation offsets at the best heading by
// their response.
func (s *search) positionalCovariance(resolution float64) (xx, xy, yy float64) {
	if s.best <= tieEpsilon {
		return maxVariance, 0, maxVariance
	}
	bx, by := s.offsets[s.bestX], s.offsets[s.bestY]
	var norm, vxx, vxy, vyy float64
	for yi, dy := range s.offsets {
		for xi, dx := range s.offsets {
			r := s.at(s.bestA, yi, xi)
			if r < s.best-covarianceWindow {
				continue
			}
			ex, ey := dx-bx, dy-by
			norm += r
			vxx += r * ex * ex
			vxy += r * ex * ey
			vyy += r * ey * ey
		}
	}
	floor := 0.1 * resolution * resolution
	xx = math.Max(vxx/norm, floor)
	yy = math.Max(vyy/norm, floor)
	xy = vxy / norm
	return xx, xy, yy
}

// angularCovariance weighs the heading offsets at the best translation.
func (s *search) angularCovariance(resolution float64) float64 {
	if s.best <= tieEpsilon {
		return maxVariance
	}
	ba := s.angles[s.bestA]
	var norm, v float64
	for ai, da := range s.angles {
		r := s.at(ai, s.bestY, s.bestX)
		if r < s.best-covarianceWindow {
			continue
		}
		e := da - ba
		norm += r
		v += r * e * e
	}
	return math.Max(v/norm, resolution*resolution)
}

// steps returns the symmetric offsets -half..half in increments of step.
func steps(half, step float64) []float64 {
	if step <= 0 || half <= 0 {
		return []float64{0}
	}
	n := int(math.Floor(half/step + 1e-9))
	out := make([]float64, 0, 2*n+1)
	for i := -n; i <= n; i++ {
		out = append(out, float64(i)*step)
	}
	return out
}
