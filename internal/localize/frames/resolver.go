package frames

import (
	"time"

	"github.com/banshee-data/localize/internal/localize/geom"
)

// PoseResolver expresses the origin of a sensor frame in a fixed target
// frame, normally the map frame.
type PoseResolver struct {
	svc    Service
	target string
}

// NewPoseResolver returns a resolver answering in the target frame.
func NewPoseResolver(svc Service, target string) *PoseResolver {
	return &PoseResolver{svc: svc, target: target}
}

// Target returns the frame poses are expressed in.
func (r *PoseResolver) Target() string { return r.target }

// Resolve returns the pose of frameID in the target frame at stamp. Any
// lookup failure is returned as a *ResolutionError.
func (r *PoseResolver) Resolve(frameID string, stamp time.Time) (geom.Pose2D, error) {
	tf, err := r.svc.Lookup(r.target, frameID, stamp)
	if err != nil {
		return geom.Pose2D{}, &ResolutionError{
			Target: r.target,
			Source: frameID,
			Stamp:  stamp,
			Err:    err,
		}
	}
	// The transform carrying frameID coordinates into target is the pose of
	// the frameID origin in target.
	return tf, nil
}
