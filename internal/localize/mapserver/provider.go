package mapserver

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/monitoring"
)

// Load reads the map description at key, then the image it names, and
// converts them. A relative image path is resolved against key's directory.
func Load(ctx context.Context, store BlobStore, key string) (grid.OccupancyMap, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return grid.OccupancyMap{}, fmt.Errorf("open map yaml: %w", err)
	}
	meta, err := ParseMetadata(rc)
	rc.Close()
	if err != nil {
		return grid.OccupancyMap{}, err
	}

	imageKey := meta.Image
	if !path.IsAbs(imageKey) {
		imageKey = path.Join(path.Dir(key), imageKey)
	}
	rc, err = store.Get(ctx, imageKey)
	if err != nil {
		return grid.OccupancyMap{}, fmt.Errorf("open map image: %w", err)
	}
	defer rc.Close()
	img, err := decodeImage(rc)
	if err != nil {
		return grid.OccupancyMap{}, err
	}
	m := ToOccupancyMap(img, meta)
	monitoring.Logf("[mapserver] loaded %s: %dx%d @ %.3fm (%s)", key, m.Width, m.Height, m.Resolution, meta.Mode)
	return m, nil
}

// Provider loads one map on first use and serves it from memory after
// that. It satisfies rpc.MapProvider. A failed load is retried on the next
// call.
type Provider struct {
	Store BlobStore
	Key   string

	mu     sync.Mutex
	loaded *grid.OccupancyMap
}

// Map returns the cached map, loading it if needed.
func (p *Provider) Map(ctx context.Context) (grid.OccupancyMap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded != nil {
		return *p.loaded, nil
	}
	m, err := Load(ctx, p.Store, p.Key)
	if err != nil {
		return grid.OccupancyMap{}, err
	}
	p.loaded = &m
	return m, nil
}

// Reload drops the cached map so the next Map call reads the store again.
func (p *Provider) Reload() {
	p.mu.Lock()
	p.loaded = nil
	p.mu.Unlock()
}
