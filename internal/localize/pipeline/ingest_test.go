package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/timeutil"
)

func TestFirstMapOnlyIgnoresReingest(t *testing.T) {
	r := newRig(t, 1, true)
	m := freeMap(4, 4, 1.0)

	accepted, err := r.ingest.HandleMap(m)
	require.NoError(t, err)
	require.True(t, accepted)
	g := r.handle.Grid()

	accepted, err = r.ingest.HandleMap(m)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Same(t, g, r.handle.Grid())
	assert.Len(t, r.factory.created, 1)
	assert.False(t, r.factory.created[0].closed)
	assert.Equal(t, 1, r.handle.Builds())
}

func TestReplaceMapReleasesOldPairFirst(t *testing.T) {
	r := newRig(t, 1, false)

	first := freeMap(4, 4, 1.0)
	_, err := r.ingest.HandleMap(first)
	require.NoError(t, err)
	oldGrid := r.handle.Grid()

	second := freeMap(4, 4, 1.0)
	for i := range second.Data {
		second.Data[i] = grid.RawOccupied
	}
	accepted, err := r.ingest.HandleMap(second)
	require.NoError(t, err)
	require.True(t, accepted)

	assert.Equal(t, []string{"create 1", "close 1", "create 2"}, r.factory.log)
	newGrid := r.handle.Grid()
	assert.NotSame(t, oldGrid, newGrid)
	for i, c := range newGrid.Cells {
		assert.Equal(t, grid.CellOccupied, c, "cell %d", i)
	}
	for _, c := range oldGrid.Cells {
		assert.Equal(t, grid.CellFree, c)
	}
	assert.Same(t, newGrid, r.factory.created[1].grid)
	assert.Equal(t, 2, r.handle.Builds())
}

func TestReplaceMapKeepsCounterAndRegistry(t *testing.T) {
	r := newRig(t, 2, false)
	_, err := r.ingest.HandleMap(freeMap(4, 4, 1.0))
	require.NoError(t, err)
	r.orch.HandleScan(context.Background(), testScan(1))

	_, err = r.ingest.HandleMap(freeMap(8, 8, 0.5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, r.orch.HandleScan(context.Background(), testScan(2)))
	assert.Equal(t, 1, r.registry.Len())
	require.Len(t, r.factory.created[1].calls, 1)
	assert.Empty(t, r.factory.created[0].calls)
}

func TestShortMapRejected(t *testing.T) {
	r := newRig(t, 1, true)
	m := freeMap(4, 4, 1.0)
	m.Data = m.Data[:10]

	accepted, err := r.ingest.HandleMap(m)
	assert.False(t, accepted)
	assert.ErrorIs(t, err, grid.ErrShortData)
	assert.False(t, r.handle.Ready())
	assert.False(t, r.ingest.Processed())

	// A later valid map is still accepted under first-map-only.
	accepted, err = r.ingest.HandleMap(freeMap(4, 4, 1.0))
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestFactoryFailureLeavesHandleEmpty(t *testing.T) {
	r := newRig(t, 1, false)
	_, err := r.ingest.HandleMap(freeMap(4, 4, 1.0))
	require.NoError(t, err)

	r.factory.err = errors.New("out of memory")
	accepted, err := r.ingest.HandleMap(freeMap(4, 4, 1.0))
	assert.False(t, accepted)
	assert.Error(t, err)
	assert.False(t, r.handle.Ready())
	assert.Nil(t, r.handle.Grid())
	assert.True(t, r.factory.created[0].closed)
	assert.Equal(t, OutcomeNotReady, r.orch.HandleScan(context.Background(), testScan(1)))
}

func TestOnMapCallback(t *testing.T) {
	var seen []*grid.CorrelationGrid
	h := &GridHandle{}
	f := &fakeFactory{}
	in, err := NewIngestor(IngestorConfig{
		Handle:  h,
		Factory: f.New,
		OnMap:   func(_ grid.OccupancyMap, g *grid.CorrelationGrid) { seen = append(seen, g) },
	})
	require.NoError(t, err)
	_, err = in.HandleMap(freeMap(2, 2, 0.5))
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Same(t, h.Grid(), seen[0])
}

func TestRequestMapRetriesUntilSuccess(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	h := &GridHandle{}
	f := &fakeFactory{}
	in, err := NewIngestor(IngestorConfig{Handle: h, Factory: f.New, Clock: clock, FirstMapOnly: true})
	require.NoError(t, err)

	attempts := 0
	fetcher := MapFetcherFunc(func(context.Context) (grid.OccupancyMap, error) {
		attempts++
		if attempts <= 3 {
			return grid.OccupancyMap{}, errors.New("connection refused")
		}
		return freeMap(4, 4, 1.0), nil
	})

	require.NoError(t, in.RequestMap(context.Background(), fetcher))
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, clock.Sleeps())
	assert.True(t, h.Ready())
	assert.True(t, in.Processed())
}

func TestRequestMapRetriesUnusableMap(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	h := &GridHandle{}
	in, err := NewIngestor(IngestorConfig{Handle: h, Factory: (&fakeFactory{}).New, Clock: clock, RetryDelay: time.Second})
	require.NoError(t, err)

	attempts := 0
	fetcher := MapFetcherFunc(func(context.Context) (grid.OccupancyMap, error) {
		attempts++
		m := freeMap(4, 4, 1.0)
		if attempts == 1 {
			m.Data = nil
		}
		return m, nil
	})
	require.NoError(t, in.RequestMap(context.Background(), fetcher))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps())
}

func TestRequestMapStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in, err := NewIngestor(IngestorConfig{Handle: &GridHandle{}, Clock: timeutil.NewMockClock(t0)})
	require.NoError(t, err)

	attempts := 0
	fetcher := MapFetcherFunc(func(context.Context) (grid.OccupancyMap, error) {
		attempts++
		if attempts == 5 {
			cancel()
		}
		return grid.OccupancyMap{}, errors.New("unavailable")
	})
	err = in.RequestMap(ctx, fetcher)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, attempts)
}

func TestNewIngestorRequiresHandle(t *testing.T) {
	_, err := NewIngestor(IngestorConfig{})
	assert.Error(t, err)
}

func TestOffsetHolder(t *testing.T) {
	var o OffsetHolder
	assert.Equal(t, geom.Identity(), o.Get())
	o.Set(geom.Transform2D{X: 1, Heading: 0.2})
	assert.Equal(t, geom.Transform2D{X: 1, Heading: 0.2}, o.Get())
}
