package pipeline

import (
	"fmt"
	"sync"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/matcher"
	"github.com/banshee-data/localize/internal/monitoring"
)

// GridHandle owns the current correlation grid and the matcher bound to it.
// Either both are present or neither is.
type GridHandle struct {
	mu      sync.RWMutex
	grid    *grid.CorrelationGrid
	matcher matcher.ScanMatcher
	builds  int
}

// Install releases the current pair, then binds a new matcher to g. If the
// factory fails the handle is left empty.
func (h *GridHandle) Install(g *grid.CorrelationGrid, factory matcher.Factory, params matcher.Params) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.releaseLocked(); err != nil {
		monitoring.Warnf("[ingest] releasing previous matcher: %v", err)
	}

	m, err := factory(params, g)
	if err != nil {
		return fmt.Errorf("create scan matcher: %w", err)
	}
	h.grid, h.matcher = g, m
	h.builds++
	return nil
}

// Ready reports whether a matcher is installed.
func (h *GridHandle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.matcher != nil
}

// Grid returns the installed grid, or nil.
func (h *GridHandle) Grid() *grid.CorrelationGrid {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.grid
}

// Builds counts how many grids have been installed.
func (h *GridHandle) Builds() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.builds
}

// WithMatcher runs fn with the installed pair under the read lock. It
// returns false without calling fn when nothing is installed.
func (h *GridHandle) WithMatcher(fn func(m matcher.ScanMatcher, g *grid.CorrelationGrid)) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.matcher == nil {
		return false
	}
	fn(h.matcher, h.grid)
	return true
}

// Close releases the installed pair.
func (h *GridHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releaseLocked()
}

func (h *GridHandle) releaseLocked() error {
	var err error
	if h.matcher != nil {
		err = h.matcher.Close()
	}
	h.grid, h.matcher = nil, nil
	return err
}
