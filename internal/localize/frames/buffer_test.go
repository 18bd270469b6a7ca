package frames

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/localize/internal/config"
	"github.com/banshee-data/localize/internal/localize/geom"
)

const eps = 1e-9

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBuffer(t *testing.T) *Buffer {
	t.Helper()
	b := NewBuffer(10*time.Second, 100*time.Millisecond)
	mustNoErr(t, b.SetStatic("base_link", "laser", geom.Transform2D{X: 0.2}))
	mustNoErr(t, b.SetStatic("map", "odom", geom.Identity()))
	mustNoErr(t, b.SetTransform("odom", "base_link", t0, geom.Transform2D{X: 1}))
	mustNoErr(t, b.SetTransform("odom", "base_link", t0.Add(time.Second), geom.Transform2D{X: 3, Heading: math.Pi / 2}))
	return b
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func near(t *testing.T, what string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("Expected %s %v, got %v", what, want, got)
	}
}

func mustLookup(t *testing.T, b *Buffer, target, source string, stamp time.Time) geom.Transform2D {
	t.Helper()
	tf, err := b.Lookup(target, source, stamp)
	if err != nil {
		t.Fatalf("Lookup(%s, %s): %v", target, source, err)
	}
	return tf
}

func TestBufferLookupChain(t *testing.T) {
	b := newTestBuffer(t)

	t.Run("exact sample", func(t *testing.T) {
		tf := mustLookup(t, b, "map", "laser", t0)
		near(t, "x", tf.X, 1.2)
		near(t, "y", tf.Y, 0)
	})

	t.Run("interpolated", func(t *testing.T) {
		tf := mustLookup(t, b, "map", "base_link", t0.Add(500*time.Millisecond))
		near(t, "x", tf.X, 2)
		near(t, "heading", tf.Heading, math.Pi/4)
	})

	t.Run("rotated child offset", func(t *testing.T) {
		tf := mustLookup(t, b, "map", "laser", t0.Add(time.Second))
		near(t, "x", tf.X, 3)
		near(t, "y", tf.Y, 0.2)
		near(t, "heading", tf.Heading, math.Pi/2)
	})

	t.Run("inverse direction", func(t *testing.T) {
		tf := mustLookup(t, b, "laser", "map", t0)
		near(t, "x", tf.X, -1.2)
	})

	t.Run("zero stamp uses latest", func(t *testing.T) {
		tf := mustLookup(t, b, "odom", "base_link", time.Time{})
		near(t, "x", tf.X, 3)
	})

	t.Run("same frame", func(t *testing.T) {
		if tf := mustLookup(t, b, "nowhere", "nowhere", t0); tf != geom.Identity() {
			t.Errorf("Expected identity, got %v", tf)
		}
	})
}

func TestBufferErrors(t *testing.T) {
	b := newTestBuffer(t)

	lookups := []struct {
		name   string
		source string
		stamp  time.Time
		want   error
	}{
		{"unknown frame", "sonar", t0, ErrUnknownFrame},
		{"after newest", "laser", t0.Add(5 * time.Second), ErrExtrapolation},
		{"before oldest", "laser", t0.Add(-time.Second), ErrExtrapolation},
	}
	for _, tt := range lookups {
		if _, err := b.Lookup("map", tt.source, tt.stamp); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got: %v", tt.name, tt.want, err)
		}
	}

	// Within tolerance clamps to the newest sample.
	tf := mustLookup(t, b, "map", "base_link", t0.Add(time.Second+50*time.Millisecond))
	near(t, "clamped x", tf.X, 3)

	mustNoErr(t, b.SetStatic("world", "island", geom.Identity()))
	if _, err := b.Lookup("map", "island", t0); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Expected ErrDisconnected, got: %v", err)
	}

	if err := b.SetStatic("a", "a", geom.Identity()); err == nil {
		t.Error("Expected an error for a self-parented static transform")
	}
	if err := b.SetTransform("", "b", t0, geom.Identity()); err == nil {
		t.Error("Expected an error for an empty parent")
	}
}

func TestBufferPrunesOldSamples(t *testing.T) {
	b := NewBuffer(2*time.Second, 0)
	for i := 0; i < 10; i++ {
		mustNoErr(t, b.SetTransform("odom", "base_link", t0.Add(time.Duration(i)*time.Second), geom.Transform2D{X: float64(i)}))
	}
	if _, err := b.Lookup("odom", "base_link", t0); !errors.Is(err, ErrExtrapolation) {
		t.Errorf("Expected pruned sample to extrapolate, got: %v", err)
	}

	tf := mustLookup(t, b, "odom", "base_link", t0.Add(7*time.Second))
	near(t, "x", tf.X, 7)
}

func TestBufferOutOfOrderInsert(t *testing.T) {
	b := NewBuffer(time.Minute, 0)
	mustNoErr(t, b.SetTransform("odom", "base_link", t0.Add(2*time.Second), geom.Transform2D{X: 2}))
	mustNoErr(t, b.SetTransform("odom", "base_link", t0, geom.Transform2D{X: 0}))
	mustNoErr(t, b.SetTransform("odom", "base_link", t0.Add(2*time.Second), geom.Transform2D{X: 4}))

	tf := mustLookup(t, b, "odom", "base_link", t0.Add(time.Second))
	near(t, "x", tf.X, 2)
}

func TestBufferLoadStatic(t *testing.T) {
	b := NewBuffer(time.Second, 0)
	mustNoErr(t, b.LoadStatic([]config.StaticTransform{
		{Parent: "base_link", Child: "laser", X: 0.1, Yaw: math.Pi},
	}))
	if got := b.Frames(); len(got) != 1 || got[0] != "laser" {
		t.Errorf("Expected frames [laser], got %v", got)
	}

	tf := mustLookup(t, b, "base_link", "laser", t0)
	near(t, "x", tf.X, 0.1)
	near(t, "heading", tf.Heading, math.Pi)

	err := b.LoadStatic([]config.StaticTransform{{Parent: "x", Child: "x"}})
	if err == nil {
		t.Fatal("Expected an error for a self-parented transform")
	}
	if errors.Is(err, ErrUnknownFrame) {
		t.Errorf("Expected a validation error, got ErrUnknownFrame")
	}
}
