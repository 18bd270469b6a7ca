package pipeline

import (
	"sync"

	"github.com/banshee-data/localize/internal/localize/geom"
)

// OffsetHolder guards the map->odom correction. Matching never advances it;
// it stays at identity unless set explicitly.
type OffsetHolder struct {
	mu     sync.Mutex
	offset geom.Transform2D
}

// Get returns the current offset.
func (o *OffsetHolder) Get() geom.Transform2D {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offset
}

// Set replaces the offset.
func (o *OffsetHolder) Set(t geom.Transform2D) {
	o.mu.Lock()
	o.offset = t
	o.mu.Unlock()
}
