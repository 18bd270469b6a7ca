package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/matcher"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/timeutil"
)

// MapFetcher obtains a map on request from a remote map provider.
type MapFetcher interface {
	FetchMap(ctx context.Context) (grid.OccupancyMap, error)
}

// MapFetcherFunc adapts a function to MapFetcher.
type MapFetcherFunc func(ctx context.Context) (grid.OccupancyMap, error)

// FetchMap implements MapFetcher.
func (f MapFetcherFunc) FetchMap(ctx context.Context) (grid.OccupancyMap, error) { return f(ctx) }

// IngestorConfig holds the ingestor's collaborators and settings.
type IngestorConfig struct {
	Handle  *GridHandle
	Factory matcher.Factory
	Params  matcher.Params

	// FirstMapOnly ignores every map after the first accepted one.
	FirstMapOnly bool
	// RetryDelay is the pause between failed pull attempts.
	RetryDelay time.Duration
	Clock      timeutil.Clock

	// OnMap, when non-nil, is called after a map has been installed.
	OnMap func(m grid.OccupancyMap, g *grid.CorrelationGrid)
}

// Ingestor turns occupancy maps into an installed grid and matcher.
type Ingestor struct {
	cfg IngestorConfig

	mu        sync.Mutex
	processed bool
}

// NewIngestor validates cfg and fills in defaults.
func NewIngestor(cfg IngestorConfig) (*Ingestor, error) {
	if cfg.Handle == nil {
		return nil, fmt.Errorf("ingestor requires a grid handle")
	}
	if cfg.Factory == nil {
		cfg.Factory = matcher.NewCorrelativeFactory
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Ingestor{cfg: cfg}, nil
}

// HandleMap installs m unless a map was already accepted and FirstMapOnly
// is set. accepted reports whether m was installed.
func (in *Ingestor) HandleMap(m grid.OccupancyMap) (accepted bool, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.cfg.FirstMapOnly && in.processed {
		monitoring.Debugf("[ingest] ignoring map %dx%d: first map already processed", m.Width, m.Height)
		return false, nil
	}

	g, err := grid.Build(m, in.cfg.Params.SmearDeviation)
	if err != nil {
		return false, fmt.Errorf("build correlation grid: %w", err)
	}
	if err := in.cfg.Handle.Install(g, in.cfg.Factory, in.cfg.Params); err != nil {
		return false, err
	}
	in.processed = true

	free, occ, unknown := g.Counts()
	monitoring.Logf("[ingest] map installed: %dx%d @ %.3fm origin %s (free=%d occupied=%d unknown=%d)",
		m.Width, m.Height, m.Resolution, m.Origin, free, occ, unknown)
	if in.cfg.OnMap != nil {
		in.cfg.OnMap(m, g)
	}
	return true, nil
}

// Processed reports whether any map has been accepted.
func (in *Ingestor) Processed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.processed
}

// RequestMap pulls a map from fetcher, retrying every RetryDelay until one
// is handled. Only ctx cancellation ends the loop early.
func (in *Ingestor) RequestMap(ctx context.Context, fetcher MapFetcher) error {
	for attempt := 1; ; attempt++ {
		m, err := fetcher.FetchMap(ctx)
		if err == nil {
			if _, err = in.HandleMap(m); err == nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		monitoring.Warnf("[ingest] map request attempt %d failed: %v; retrying in %s", attempt, err, in.cfg.RetryDelay)
		if err := timeutil.SleepContext(ctx, in.cfg.Clock, in.cfg.RetryDelay); err != nil {
			return err
		}
	}
}
