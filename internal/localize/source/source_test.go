package source

import (
	"bytes"
	"context"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/laser"
	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/serialmux"
	"github.com/banshee-data/localize/internal/testutil"
	"github.com/banshee-data/localize/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func scanEvent(i int) pipeline.Event {
	return pipeline.Event{Kind: pipeline.EventScan, Scan: &laser.Scan{
		FrameID:        "laser",
		Stamp:          epoch.Add(time.Duration(i) * 100 * time.Millisecond),
		RangeMin:       0.1,
		RangeMax:       10,
		AngleMin:       -1,
		AngleMax:       1,
		AngleIncrement: 1,
		Ranges:         []float64{1, 2, 3},
	}}
}

func encodeLine(t *testing.T, ev pipeline.Event) string {
	t.Helper()
	b, err := Encode(ev)
	require.NoError(t, err)
	return string(b) + "\n"
}

func collect(ch chan pipeline.Event) []pipeline.Event {
	var out []pipeline.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestDecode(t *testing.T) {
	scan, err := Decode([]byte(`{"type":"scan","scan":{"frame_id":"laser","stamp":"2026-03-01T12:00:00Z","range_min":0.1,"range_max":5,"angle_min":0,"angle_max":0.5,"angle_increment":0.5,"ranges":[1,2]}}`))
	require.NoError(t, err)
	assert.Equal(t, pipeline.EventScan, scan.Kind)
	assert.Equal(t, "laser", scan.Scan.FrameID)
	assert.Equal(t, laser.Ranges{1, 2}, scan.Scan.Ranges)
	assert.True(t, scan.Scan.Stamp.Equal(epoch))

	m, err := Decode([]byte(`{"type":"map","map":{"width":2,"height":1,"resolution":0.05,"origin":{"x":-1,"y":0,"heading":0},"data":[0,100]}}`))
	require.NoError(t, err)
	assert.Equal(t, pipeline.EventMap, m.Kind)
	assert.Equal(t, []int8{0, 100}, m.Map.Data)
	assert.Equal(t, -1.0, m.Map.Origin.X)

	tf, err := Decode([]byte(`{"type":"tf","tf":{"parent":"odom","child":"base_link","stamp":"2026-03-01T12:00:00Z","transform":{"x":1,"y":2,"heading":0.5}}}`))
	require.NoError(t, err)
	assert.Equal(t, pipeline.EventTransform, tf.Kind)
	assert.Equal(t, geom.Pose2D{X: 1, Y: 2, Heading: 0.5}, tf.Transform.Transform)
	assert.False(t, tf.Transform.Static)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"unknown type", `{"type":"odometry"}`, ErrUnknownType},
		{"missing scan", `{"type":"scan"}`, ErrMissingPayload},
		{"missing map", `{"type":"map","scan":{}}`, ErrMissingPayload},
		{"missing tf", `{"type":"tf"}`, ErrMissingPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	events := []pipeline.Event{
		scanEvent(1),
		{Kind: pipeline.EventMap, Map: &grid.OccupancyMap{Width: 1, Height: 1, Resolution: 0.1, Data: []int8{-1}}},
		{Kind: pipeline.EventTransform, Transform: &pipeline.TransformStamped{
			Parent: "map", Child: "odom", Transform: geom.Pose2D{X: 1}, Static: true,
		}},
	}
	for _, ev := range events {
		b, err := Encode(ev)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		if diff := cmp.Diff(ev, got); diff != "" {
			t.Errorf("%s round trip mismatch (-want +got):\n%s", ev.Kind, diff)
		}
	}

	_, err := Encode(pipeline.Event{Kind: pipeline.EventScan})
	assert.ErrorIs(t, err, ErrMissingPayload)
}

func TestScanSentinelsSurviveTheWire(t *testing.T) {
	ev := scanEvent(4)
	ev.Scan.Ranges = laser.Ranges{1, math.Inf(1), 2, math.NaN(), 0}

	b, err := Encode(ev)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ranges":[1,"inf",2,"nan",0]`)

	got, err := Decode(b)
	require.NoError(t, err)
	if diff := cmp.Diff(ev, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Bridges that write other spellings, or null for a missing return.
	got, err = Decode([]byte(`{"type":"scan","scan":{"frame_id":"laser","ranges":[1,"Infinity",null,"-inf"]}}`))
	require.NoError(t, err)
	r := got.Scan.Ranges
	require.Len(t, r, 4)
	assert.Equal(t, 1.0, r[0])
	assert.True(t, math.IsInf(r[1], 1))
	assert.True(t, math.IsNaN(r[2]))
	assert.True(t, math.IsInf(r[3], -1))

	_, err = Decode([]byte(`{"type":"scan","scan":{"frame_id":"laser","ranges":[1,"far"]}}`))
	assert.Error(t, err)
}

func TestReadLines(t *testing.T) {
	input := encodeLine(t, scanEvent(1)) + "\n  \n" + "garbage\n" + encodeLine(t, scanEvent(2))
	out := make(chan pipeline.Event, 8)
	var stats Stats

	require.NoError(t, ReadLines(context.Background(), strings.NewReader(input), out, &stats))
	got := collect(out)
	require.Len(t, got, 2)
	assert.True(t, got[1].Scan.Stamp.After(got[0].Scan.Stamp))
	assert.Equal(t, uint64(2), stats.Events.Load())
	assert.Equal(t, uint64(1), stats.Rejected.Load())
}

func TestReadLinesCancelWhileBlocked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan pipeline.Event) // never drained
	done := make(chan error, 1)
	go func() {
		done <- ReadLines(ctx, strings.NewReader(encodeLine(t, scanEvent(1))), out, nil)
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLines did not return")
	}
}

func TestSerial(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	out := make(chan pipeline.Event, 8)

	done := make(chan error, 1)
	go func() { done <- Serial(context.Background(), mux, out, nil) }()

	// Serial subscribes before reading; wait for the subscription by
	// retrying until a line arrives.
	go mux.Monitor(context.Background())
	line := encodeLine(t, scanEvent(3))
	require.Eventually(t, func() bool {
		port.AddReadData([]byte(line))
		select {
		case ev := <-out:
			return ev.Kind == pipeline.EventScan
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mux.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serial did not return after mux close")
	}
}

func TestSerialSourceGetsLinesReadAtStartup(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	for i := 1; i <= 3; i++ {
		port.AddReadData([]byte(encodeLine(t, scanEvent(i))))
	}
	port.EndInput()
	mux := serialmux.NewSerialMux(port)

	src := SubscribeSerial(mux)
	// Monitor consumes the whole buffered input before Run reads anything.
	require.NoError(t, mux.Monitor(context.Background()))
	lines, dropped := mux.Stats()
	assert.Equal(t, uint64(3), lines)
	assert.Equal(t, uint64(0), dropped)
	require.NoError(t, mux.Close())

	var stats Stats
	out := make(chan pipeline.Event, 8)
	require.NoError(t, src.Run(context.Background(), out, &stats))

	got := collect(out)
	require.Len(t, got, 3)
	for i, ev := range got {
		require.Equal(t, pipeline.EventScan, ev.Kind)
		assert.True(t, ev.Scan.Stamp.Equal(scanEvent(i+1).Scan.Stamp), "scan %d", i)
	}
	assert.Equal(t, uint64(3), stats.Events.Load())
}

func TestUDPListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stats Stats
	l := NewUDPListener(UDPListenerConfig{Address: "127.0.0.1:0", Stats: &stats})
	out := make(chan pipeline.Event, 8)
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx, out) }()

	addr, err := l.Addr(ctx)
	require.NoError(t, err)
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	// Two envelopes in one datagram, then one more on its own.
	_, err = conn.Write([]byte(encodeLine(t, scanEvent(1)) + encodeLine(t, scanEvent(2))))
	require.NoError(t, err)
	_, err = conn.Write([]byte(strings.TrimSuffix(encodeLine(t, scanEvent(3)), "\n")))
	require.NoError(t, err)

	var got []pipeline.Event
	require.Eventually(t, func() bool {
		got = append(got, collect(out)...)
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(3), stats.Events.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestReplayFiltersPortAndPaces(t *testing.T) {
	capture := testutil.WriteUDPCapture(t, []testutil.UDPPacket{
		{At: epoch, DstPort: 7500, Payload: []byte(encodeLine(t, scanEvent(1)))},
		{At: epoch.Add(50 * time.Millisecond), DstPort: 9999, Payload: []byte(encodeLine(t, scanEvent(2)))},
		{At: epoch.Add(200 * time.Millisecond), DstPort: 7500, Payload: []byte(encodeLine(t, scanEvent(3)))},
	})

	clock := timeutil.NewMockClock(epoch)
	out := make(chan pipeline.Event, 8)
	res, err := ReplayFrom(context.Background(), bytes.NewReader(capture), ReplayConfig{
		Port:     7500,
		Realtime: true,
		Speed:    2,
		Clock:    clock,
	}, out)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Packets)
	assert.Equal(t, 2, res.Payloads)
	got := collect(out)
	require.Len(t, got, 2)
	assert.True(t, got[1].Scan.Stamp.Equal(epoch.Add(300*time.Millisecond)))
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clock.Sleeps())
}

func TestReplayWithoutPacing(t *testing.T) {
	capture := testutil.WriteUDPCapture(t, []testutil.UDPPacket{
		{At: epoch, DstPort: 1, Payload: []byte(encodeLine(t, scanEvent(1)))},
		{At: epoch.Add(time.Hour), DstPort: 2, Payload: []byte(encodeLine(t, scanEvent(2)))},
	})
	path := filepath.Join(t.TempDir(), "scans.pcap")
	require.NoError(t, os.WriteFile(path, capture, 0o644))

	clock := timeutil.NewMockClock(epoch)
	out := make(chan pipeline.Event, 8)
	res, err := Replay(context.Background(), ReplayConfig{Path: path, Clock: clock}, out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Payloads)
	assert.Len(t, collect(out), 2)
	assert.Empty(t, clock.Sleeps())
}

func TestReplayErrors(t *testing.T) {
	_, err := Replay(context.Background(), ReplayConfig{Path: filepath.Join(t.TempDir(), "missing.pcap")}, nil)
	assert.Error(t, err)

	_, err = ReplayFrom(context.Background(), strings.NewReader("not a capture"), ReplayConfig{}, nil)
	assert.Error(t, err)
}
