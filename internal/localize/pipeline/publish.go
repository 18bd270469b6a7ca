package pipeline

import (
	"context"
	"errors"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/localize/internal/localize/geom"
)

// Score is the result of one matched scan as seen by downstream consumers.
type Score struct {
	Sequence   uint64 // value of the throttle counter when matched
	FrameID    string
	Stamp      time.Time
	Value      float64
	Initial    geom.Pose2D
	Pose       geom.Pose2D
	Covariance *mat.SymDense
	Elapsed    time.Duration
}

// Publisher receives every match score.
type Publisher interface {
	Publish(ctx context.Context, s Score) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, s Score) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, s Score) error { return f(ctx, s) }

// MultiPublisher fans a score out to several publishers. All are called even
// if some fail.
type MultiPublisher []Publisher

// Publish implements Publisher.
func (mp MultiPublisher) Publish(ctx context.Context, s Score) error {
	var errs []error
	for _, p := range mp {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer is told about every scan outcome and every match duration.
type Observer interface {
	ObserveOutcome(o Outcome)
	ObserveMatch(elapsed time.Duration, score float64)
}
