package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localize/internal/localize/frames"
	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/laser"
	"github.com/banshee-data/localize/internal/localize/matcher"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type matchCall struct {
	scan          *matcher.RangeScan
	initial       geom.Pose2D
	usePenalty    bool
	useMatchScore bool
}

type fakeMatcher struct {
	id     int
	grid   *grid.CorrelationGrid
	log    *[]string
	calls  []matchCall
	closed bool
}

func (m *fakeMatcher) MatchScan(scan *matcher.RangeScan, initial geom.Pose2D, usePenalty, useMatchScore bool) matcher.Result {
	m.calls = append(m.calls, matchCall{scan, initial, usePenalty, useMatchScore})
	return matcher.Result{
		Pose:       geom.Pose2D{X: initial.X + 0.1, Y: initial.Y, Heading: initial.Heading},
		Covariance: geom.NewCovariance(0.01, 0, 0.01, 0.001),
		Score:      0.75,
	}
}

func (m *fakeMatcher) Close() error {
	if m.closed {
		return errors.New("double close")
	}
	m.closed = true
	*m.log = append(*m.log, fmt.Sprintf("close %d", m.id))
	return nil
}

// fakeFactory records the matchers it creates and the order of lifecycle
// events across them.
type fakeFactory struct {
	created []*fakeMatcher
	log     []string
	err     error
}

func (f *fakeFactory) New(_ matcher.Params, g *grid.CorrelationGrid) (matcher.ScanMatcher, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := &fakeMatcher{id: len(f.created) + 1, grid: g, log: &f.log}
	f.created = append(f.created, m)
	f.log = append(f.log, fmt.Sprintf("create %d", m.id))
	return m, nil
}

func (f *fakeFactory) calls() []matchCall {
	var out []matchCall
	for _, m := range f.created {
		out = append(out, m.calls...)
	}
	return out
}

// fakeResolver resolves every frame to pose, except stamps listed in fail.
type fakeResolver struct {
	pose geom.Pose2D
	fail map[time.Time]bool
}

func (r *fakeResolver) Resolve(frameID string, stamp time.Time) (geom.Pose2D, error) {
	if r.fail[stamp] {
		return geom.Pose2D{}, &frames.ResolutionError{Target: "map", Source: frameID, Stamp: stamp, Err: frames.ErrExtrapolation}
	}
	return r.pose, nil
}

func freeMap(w, h int, res float64) grid.OccupancyMap {
	return grid.OccupancyMap{Width: w, Height: h, Resolution: res, Data: make([]int8, w*h)}
}

func testScan(i int) laser.Scan {
	return laser.Scan{
		FrameID:        "laser",
		Stamp:          t0.Add(time.Duration(i) * 100 * time.Millisecond),
		RangeMin:       0.1,
		RangeMax:       10,
		AngleMin:       -1,
		AngleMax:       1,
		AngleIncrement: 0.5,
		Ranges:         []float64{1, 1, 1, 1, 1},
	}
}

type rig struct {
	factory  *fakeFactory
	handle   *GridHandle
	registry *laser.Registry
	resolver *fakeResolver
	ingest   *Ingestor
	orch     *Orchestrator
	scores   []Score
}

func newRig(t *testing.T, throttle int, firstMapOnly bool) *rig {
	t.Helper()
	r := &rig{
		factory:  &fakeFactory{},
		handle:   &GridHandle{},
		registry: laser.NewRegistry(),
		resolver: &fakeResolver{pose: geom.Pose2D{X: 0.5, Y: 0.5}, fail: map[time.Time]bool{}},
	}
	var err error
	r.ingest, err = NewIngestor(IngestorConfig{
		Handle:       r.handle,
		Factory:      r.factory.New,
		Params:       matcher.Params{SmearDeviation: 0.1},
		FirstMapOnly: firstMapOnly,
	})
	require.NoError(t, err)

	var mu sync.Mutex
	r.orch, err = NewOrchestrator(OrchestratorConfig{
		Registry: r.registry,
		Resolver: r.resolver,
		Handle:   r.handle,
		Throttle: throttle,
		Publisher: PublisherFunc(func(_ context.Context, s Score) error {
			mu.Lock()
			r.scores = append(r.scores, s)
			mu.Unlock()
			return nil
		}),
	})
	require.NoError(t, err)
	return r
}
