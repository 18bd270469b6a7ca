package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/pipeline"
)

func startBufconn(t *testing.T, maps *MapService, scores *ScoreBroadcaster) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(maps, scores)
	srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetMapRoundTrip(t *testing.T) {
	want := grid.OccupancyMap{
		Width: 3, Height: 2, Resolution: 0.05,
		Origin: geom.Pose2D{X: -1.5, Y: 2, Heading: 0.1},
		Data:   []int8{0, 100, -1, 0, 0, 100},
	}
	c := startBufconn(t, &MapService{Provider: MapProviderFunc(func(context.Context) (grid.OccupancyMap, error) {
		return want, nil
	})}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := c.FetchMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetMapUnavailable(t *testing.T) {
	c := startBufconn(t, &MapService{Provider: MapProviderFunc(func(context.Context) (grid.OccupancyMap, error) {
		return grid.OccupancyMap{}, errors.New("not loaded")
	})}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.FetchMap(ctx)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}

func TestStreamScores(t *testing.T) {
	b := NewScoreBroadcaster()
	b.Start()
	t.Cleanup(b.Stop)
	c := startBufconn(t, nil, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := c.StreamScores(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Stats().Clients == 1 }, 2*time.Second, 10*time.Millisecond)

	for _, v := range []float64{0.25, 0.5, 0.75} {
		require.NoError(t, b.Publish(ctx, pipeline.Score{Value: v}))
	}
	for _, want := range []float64{0.25, 0.5, 0.75} {
		got, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, uint64(3), b.Stats().Published)

	cancel()
	require.Eventually(t, func() bool { return b.Stats().Clients == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcasterStoppedIgnoresPublish(t *testing.T) {
	b := NewScoreBroadcaster()
	require.NoError(t, b.Publish(context.Background(), pipeline.Score{Value: 1}))
	assert.Zero(t, b.Stats().Published)

	b.Start()
	b.Stop()
	b.Stop()
	require.NoError(t, b.Publish(context.Background(), pipeline.Score{Value: 1}))
	assert.Zero(t, b.Stats().Published)
}

func TestBroadcasterDropsWhenQueueFull(t *testing.T) {
	b := NewScoreBroadcaster()
	// Running without a loop so nothing drains the queue.
	b.running.Store(true)
	for i := 0; i < scoreQueueSize+5; i++ {
		require.NoError(t, b.Publish(context.Background(), pipeline.Score{Value: float64(i)}))
	}
	st := b.Stats()
	assert.Equal(t, uint64(scoreQueueSize), st.Published)
	assert.Equal(t, uint64(5), st.Dropped)
}

func TestCodec(t *testing.T) {
	var c jsonCodec
	assert.Equal(t, CodecName, c.Name())

	data, err := c.Marshal(wrapperspb.Double(0.5))
	require.NoError(t, err)
	out := new(wrapperspb.DoubleValue)
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, 0.5, out.GetValue())

	data, err = c.Marshal(&grid.OccupancyMap{Width: 1, Height: 1, Data: []int8{-1}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data":[-1]`)
}
