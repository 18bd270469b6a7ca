package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pose2D is a planar position plus heading (radians, counter-clockwise).
type Pose2D struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Transform2D is a rigid planar transform. It is the same triple as a pose.
type Transform2D = Pose2D

// Identity returns the zero transform.
func Identity() Transform2D { return Transform2D{} }

func (p Pose2D) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Heading)
}

// Compose returns a∘b: apply b first, then a.
func Compose(a, b Transform2D) Transform2D {
	c, s := math.Cos(a.Heading), math.Sin(a.Heading)
	return Transform2D{
		X:       a.X + c*b.X - s*b.Y,
		Y:       a.Y + s*b.X + c*b.Y,
		Heading: NormalizeAngle(a.Heading + b.Heading),
	}
}

// Inverse returns the transform t⁻¹ such that Compose(t, t⁻¹) is identity.
func Inverse(t Transform2D) Transform2D {
	c, s := math.Cos(t.Heading), math.Sin(t.Heading)
	return Transform2D{
		X:       -c*t.X - s*t.Y,
		Y:       s*t.X - c*t.Y,
		Heading: NormalizeAngle(-t.Heading),
	}
}

// Apply maps point (x, y) through t.
func Apply(t Transform2D, x, y float64) (float64, float64) {
	c, s := math.Cos(t.Heading), math.Sin(t.Heading)
	return t.X + c*x - s*y, t.Y + s*x + c*y
}

// NormalizeAngle wraps a into (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// YawFromQuaternion extracts the rotation about the vertical axis.
func YawFromQuaternion(x, y, z, w float64) float64 {
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}

// Interpolate blends a and b by fraction f in [0,1]; heading takes the
// shortest arc.
func Interpolate(a, b Pose2D, f float64) Pose2D {
	dh := NormalizeAngle(b.Heading - a.Heading)
	return Pose2D{
		X:       a.X + (b.X-a.X)*f,
		Y:       a.Y + (b.Y-a.Y)*f,
		Heading: NormalizeAngle(a.Heading + dh*f),
	}
}

// NewCovariance builds a symmetric 3×3 (x, y, heading) covariance.
func NewCovariance(xx, xy, yy, hh float64) *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		xx, xy, 0,
		xy, yy, 0,
		0, 0, hh,
	})
}
