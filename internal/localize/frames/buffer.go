package frames

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/localize/internal/config"
	"github.com/banshee-data/localize/internal/localize/geom"
)

// Service looks up the transform that maps points from source into target
// at the given time. A zero stamp asks for the latest available transform.
type Service interface {
	Lookup(target, source string, stamp time.Time) (geom.Transform2D, error)
}

// maxDepth bounds parent walks so a malformed tree cannot loop forever.
const maxDepth = 64

type sample struct {
	stamp time.Time
	tf    geom.Transform2D
}

type frameEntry struct {
	parent  string
	static  bool
	fixed   geom.Transform2D
	samples []sample // ascending by stamp
}

// Buffer stores a tree of 2D transforms keyed by child frame. Each child has
// exactly one parent. It is safe for concurrent use.
type Buffer struct {
	mu        sync.RWMutex
	cache     time.Duration
	tolerance time.Duration
	frames    map[string]*frameEntry
}

// NewBuffer creates a Buffer that keeps cache worth of samples per frame and
// tolerates lookups up to tolerance beyond either end of the sample window.
func NewBuffer(cache, tolerance time.Duration) *Buffer {
	return &Buffer{
		cache:     cache,
		tolerance: tolerance,
		frames:    make(map[string]*frameEntry),
	}
}

// SetStatic records a time-invariant parent->child transform.
func (b *Buffer) SetStatic(parent, child string, tf geom.Transform2D) error {
	if parent == "" || child == "" || parent == child {
		return fmt.Errorf("invalid static transform %q -> %q", parent, child)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames[child] = &frameEntry{parent: parent, static: true, fixed: tf}
	return nil
}

// SetTransform records a timestamped parent->child transform. Re-parenting a
// child discards its previous samples.
func (b *Buffer) SetTransform(parent, child string, stamp time.Time, tf geom.Transform2D) error {
	if parent == "" || child == "" || parent == child {
		return fmt.Errorf("invalid transform %q -> %q", parent, child)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.frames[child]
	if !ok || e.parent != parent || e.static {
		e = &frameEntry{parent: parent}
		b.frames[child] = e
	}

	i := sort.Search(len(e.samples), func(i int) bool { return !e.samples[i].stamp.Before(stamp) })
	switch {
	case i < len(e.samples) && e.samples[i].stamp.Equal(stamp):
		e.samples[i].tf = tf
	default:
		e.samples = append(e.samples, sample{})
		copy(e.samples[i+1:], e.samples[i:])
		e.samples[i] = sample{stamp: stamp, tf: tf}
	}

	if b.cache > 0 {
		cutoff := e.samples[len(e.samples)-1].stamp.Add(-b.cache)
		drop := 0
		for drop < len(e.samples)-1 && e.samples[drop].stamp.Before(cutoff) {
			drop++
		}
		e.samples = e.samples[drop:]
	}
	return nil
}

// Frames lists all known child frames.
func (b *Buffer) Frames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.frames))
	for f := range b.frames {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Lookup implements Service.
func (b *Buffer) Lookup(target, source string, stamp time.Time) (geom.Transform2D, error) {
	if target == source {
		return geom.Identity(), nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Chains of (frame, transform frame->root-so-far) from each end.
	srcChain, err := b.chain(source, stamp)
	if err != nil {
		return geom.Transform2D{}, err
	}
	tgtChain, err := b.chain(target, stamp)
	if err != nil {
		return geom.Transform2D{}, err
	}

	tgtIndex := make(map[string]int, len(tgtChain))
	for i, l := range tgtChain {
		tgtIndex[l.frame] = i
	}
	for _, l := range srcChain {
		if j, ok := tgtIndex[l.frame]; ok {
			// l.tf maps source into the common frame; tgtChain[j].tf maps
			// target into it.
			return geom.Compose(geom.Inverse(tgtChain[j].tf), l.tf), nil
		}
	}
	return geom.Transform2D{}, fmt.Errorf("%w: %s and %s", ErrDisconnected, target, source)
}

type link struct {
	frame string
	tf    geom.Transform2D // origin frame expressed in this frame
}

// chain walks from frame towards the root, accumulating the transform that
// maps the starting frame into each ancestor.
func (b *Buffer) chain(frame string, stamp time.Time) ([]link, error) {
	acc := geom.Identity()
	out := []link{{frame: frame, tf: acc}}
	cur := frame
	_, known := b.frames[cur]
	for depth := 0; depth < maxDepth; depth++ {
		e, ok := b.frames[cur]
		if !ok {
			if !known && !b.isParent(frame) {
				return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frame)
			}
			return out, nil
		}
		tf, err := e.at(stamp, b.tolerance)
		if err != nil {
			return nil, fmt.Errorf("%s -> %s: %w", e.parent, cur, err)
		}
		acc = geom.Compose(tf, acc)
		cur = e.parent
		out = append(out, link{frame: cur, tf: acc})
	}
	return nil, fmt.Errorf("frame tree deeper than %d starting at %q", maxDepth, frame)
}

func (b *Buffer) isParent(frame string) bool {
	for _, e := range b.frames {
		if e.parent == frame {
			return true
		}
	}
	return false
}

func (e *frameEntry) at(stamp time.Time, tolerance time.Duration) (geom.Transform2D, error) {
	if e.static {
		return e.fixed, nil
	}
	n := len(e.samples)
	if n == 0 {
		return geom.Transform2D{}, ErrExtrapolation
	}
	if stamp.IsZero() {
		return e.samples[n-1].tf, nil
	}

	first, last := e.samples[0], e.samples[n-1]
	if stamp.Before(first.stamp) {
		if first.stamp.Sub(stamp) > tolerance {
			return geom.Transform2D{}, fmt.Errorf("%w: %s before oldest sample %s",
				ErrExtrapolation, stamp.Format(time.RFC3339Nano), first.stamp.Format(time.RFC3339Nano))
		}
		return first.tf, nil
	}
	if stamp.After(last.stamp) {
		if stamp.Sub(last.stamp) > tolerance {
			return geom.Transform2D{}, fmt.Errorf("%w: %s after newest sample %s",
				ErrExtrapolation, stamp.Format(time.RFC3339Nano), last.stamp.Format(time.RFC3339Nano))
		}
		return last.tf, nil
	}

	i := sort.Search(n, func(i int) bool { return !e.samples[i].stamp.Before(stamp) })
	if e.samples[i].stamp.Equal(stamp) {
		return e.samples[i].tf, nil
	}
	lo, hi := e.samples[i-1], e.samples[i]
	f := float64(stamp.Sub(lo.stamp)) / float64(hi.stamp.Sub(lo.stamp))
	return geom.Interpolate(lo.tf, hi.tf, f), nil
}

// LoadStatic installs the configured static transforms.
func (b *Buffer) LoadStatic(ts []config.StaticTransform) error {
	for _, t := range ts {
		tf := geom.Transform2D{X: t.X, Y: t.Y, Heading: t.Yaw}
		if err := b.SetStatic(t.Parent, t.Child, tf); err != nil {
			return err
		}
	}
	return nil
}
