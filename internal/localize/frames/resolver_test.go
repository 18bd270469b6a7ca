package frames

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/localize/internal/localize/geom"
)

type fakeService struct {
	tf  geom.Transform2D
	err error

	target, source string
	stamp          time.Time
}

func (f *fakeService) Lookup(target, source string, stamp time.Time) (geom.Transform2D, error) {
	f.target, f.source, f.stamp = target, source, stamp
	return f.tf, f.err
}

func TestPoseResolver(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakeService{tf: geom.Transform2D{X: 1, Y: 2, Heading: 0.5}}
		r := NewPoseResolver(svc, "map")

		pose, err := r.Resolve("laser", t0)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if want := (geom.Pose2D{X: 1, Y: 2, Heading: 0.5}); pose != want {
			t.Errorf("Expected pose %v, got %v", want, pose)
		}
		if svc.target != "map" || svc.source != "laser" || !svc.stamp.Equal(t0) {
			t.Errorf("Expected lookup(map, laser, t0), got (%s, %s, %v)", svc.target, svc.source, svc.stamp)
		}
	})

	t.Run("failure is a resolution error", func(t *testing.T) {
		svc := &fakeService{err: ErrExtrapolation}
		r := NewPoseResolver(svc, "map")

		_, err := r.Resolve("laser", t0)
		if err == nil {
			t.Fatal("Expected an error")
		}
		if !errors.Is(err, ErrFrameResolution) {
			t.Errorf("Expected ErrFrameResolution, got: %v", err)
		}
		if !errors.Is(err, ErrExtrapolation) {
			t.Errorf("Expected wrapped ErrExtrapolation, got: %v", err)
		}

		var re *ResolutionError
		if !errors.As(err, &re) {
			t.Fatalf("Expected *ResolutionError, got %T", err)
		}
		if re.Source != "laser" || re.Target != "map" {
			t.Errorf("Expected laser -> map, got %s -> %s", re.Source, re.Target)
		}
		if !strings.Contains(err.Error(), "laser") {
			t.Errorf("Expected message to name the frame, got %q", err.Error())
		}
	})

	t.Run("against buffer", func(t *testing.T) {
		r := NewPoseResolver(newTestBuffer(t), "map")
		pose, err := r.Resolve("laser", t0)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		near(t, "x", pose.X, 1.2)

		if _, err := r.Resolve("sonar", t0); !errors.Is(err, ErrUnknownFrame) {
			t.Errorf("Expected ErrUnknownFrame, got: %v", err)
		}
	})
}
