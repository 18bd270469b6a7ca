package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/rpc"
)

func writeMap(t *testing.T, dir string) {
	t.Helper()
	// 3x2 map, top row black (occupied), bottom row white (free).
	pgm := append([]byte("P5\n3 2\n255\n"), 0, 0, 0, 255, 255, 255)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "room.pgm"), pgm, 0o644))
	yaml := "image: room.pgm\nresolution: 0.05\norigin: [-1.0, -0.5, 0.0]\nnegate: 0\noccupied_thresh: 0.65\nfree_thresh: 0.196\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "room.yaml"), []byte(yaml), 0o644))
}

func TestParseFlags(t *testing.T) {
	fs := flag.NewFlagSet("mapserver", flag.ContinueOnError)
	o, showVersion, err := parseFlags(fs, []string{"-store", "s3", "-bucket", "maps", "-path-style"})
	require.NoError(t, err)
	assert.False(t, showVersion)
	assert.Equal(t, "s3", o.storeKind)
	assert.Equal(t, "maps", o.s3.Bucket)
	assert.True(t, o.s3.PathStyle)
	assert.Equal(t, "map.yaml", o.mapKey)
}

func TestStartServesFilesystemMap(t *testing.T) {
	dir := t.TempDir()
	writeMap(t, dir)

	ctx := context.Background()
	server, _, err := start(ctx, options{storeKind: "fs", root: dir, mapKey: "room.yaml", listen: "127.0.0.1:0"})
	require.NoError(t, err)
	defer server.Stop()

	client, err := rpc.Dial(server.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	m, err := client.FetchMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Width)
	assert.Equal(t, 2, m.Height)
	assert.InDelta(t, -1.0, m.Origin.X, 1e-9)
	// Image rows are flipped so row 0 is the bottom of the picture.
	assert.Equal(t, []int8{grid.RawFree, grid.RawFree, grid.RawFree, grid.RawOccupied, grid.RawOccupied, grid.RawOccupied}, m.Data)
}

func TestStartFailsOnMissingMap(t *testing.T) {
	_, _, err := start(context.Background(), options{storeKind: "fs", root: t.TempDir(), mapKey: "absent.yaml", listen: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestStartRejectsUnknownStore(t *testing.T) {
	_, _, err := start(context.Background(), options{storeKind: "ftp"})
	assert.ErrorContains(t, err, "unknown store")
}
