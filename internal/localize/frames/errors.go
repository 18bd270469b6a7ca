package frames

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownFrame is returned when a frame has never been published.
	ErrUnknownFrame = errors.New("unknown frame")
	// ErrExtrapolation is returned when a lookup falls outside the window
	// covered by the transform samples.
	ErrExtrapolation = errors.New("lookup would require extrapolation")
	// ErrDisconnected is returned when two frames share no common ancestor.
	ErrDisconnected = errors.New("frames are not connected")
	// ErrFrameResolution matches every *ResolutionError via errors.Is.
	ErrFrameResolution = errors.New("frame resolution failed")
)

// ResolutionError reports that a sensor pose could not be resolved in the
// target frame for the given timestamp.
type ResolutionError struct {
	Target string
	Source string
	Stamp  time.Time
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s in %s at %s: %v",
		e.Source, e.Target, e.Stamp.Format(time.RFC3339Nano), e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFrameResolution) match any ResolutionError.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrFrameResolution
}
