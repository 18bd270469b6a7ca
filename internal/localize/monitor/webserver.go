// Package monitor serves the localizer's HTTP status, debug charts and
// Prometheus metrics.
package monitor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/localize/internal/httputil"
	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/version"
)

//go:embed status.html
var statusHTML string

var statusTemplate = template.Must(template.New("status").Parse(statusHTML))

const defaultMaxSide = 300

// StatsSource reports orchestrator counters. *pipeline.Orchestrator
// satisfies it.
type StatsSource interface {
	Stats() pipeline.Stats
}

// GridSource exposes the installed correlation grid. *pipeline.GridHandle
// satisfies it.
type GridSource interface {
	Grid() *grid.CorrelationGrid
	Builds() int
}

// OffsetSource exposes the map offset. *pipeline.OffsetHolder satisfies it.
type OffsetSource interface {
	Get() geom.Transform2D
}

// PoseSource resolves a frame into the map frame; a zero stamp asks for
// the latest pose. *frames.PoseResolver satisfies it.
type PoseSource interface {
	Resolve(frameID string, stamp time.Time) (geom.Pose2D, error)
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Stats   StatsSource
	Grid    GridSource
	Offset  OffsetSource
	History *ScoreHistory
	Metrics *Metrics
	// Poses and BaseFrame locate the robot for /api/status.
	Poses     PoseSource
	BaseFrame string
	// Admin mounts extra /debug/ routes, e.g. tsweb handlers.
	Admin []func(*http.ServeMux)
}

// WebServer handles the HTTP interface for monitoring the localizer.
type WebServer struct {
	cfg     WebServerConfig
	started time.Time
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewWebServer builds the server and its routes; Start serves them.
func NewWebServer(cfg WebServerConfig) *WebServer {
	if cfg.History == nil {
		cfg.History = NewScoreHistory(0)
	}
	ws := &WebServer{cfg: cfg, started: time.Now()}
	ws.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// Handler returns the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/debug/grid", ws.handleGridChart)
	mux.HandleFunc("/debug/grid.png", ws.handleGridPNG)
	mux.HandleFunc("/debug/scores", ws.handleScoreChart)
	mux.HandleFunc("/debug/scores.png", ws.handleScoresPNG)
	if ws.cfg.Metrics != nil {
		mux.Handle("/metrics", ws.cfg.Metrics.Handler())
	}
	for _, attach := range ws.cfg.Admin {
		attach(mux)
	}
	return mux
}

// Addr returns the bound address once Start is listening.
func (ws *WebServer) Addr() net.Addr {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.listener == nil {
		return nil
	}
	return ws.listener.Addr()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.cfg.Address, err)
	}
	ws.mu.Lock()
	ws.listener = lis
	ws.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[http] serving on %s", lis.Addr())
		if err := ws.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Warnf("[http] shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Warnf("[http] force close error: %v", err)
		}
	}
	monitoring.Logf("[http] server stopped")
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "localize", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// Status is the /api/status document.
type Status struct {
	Version   string         `json:"version"`
	Uptime    string         `json:"uptime"`
	MapReady  bool           `json:"map_ready"`
	MapBuilds int            `json:"map_builds"`
	Map       *MapSummary    `json:"map,omitempty"`
	Offset    geom.Pose2D    `json:"offset"`
	BaseFrame string         `json:"base_frame,omitempty"`
	Robot     *geom.Pose2D   `json:"robot,omitempty"`
	Pipeline  pipeline.Stats `json:"pipeline"`
	Scores    uint64         `json:"scores_published"`
}

// MapSummary describes the installed grid.
type MapSummary struct {
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Resolution float64     `json:"resolution"`
	Origin     geom.Pose2D `json:"origin"`
	Free       int         `json:"free"`
	Occupied   int         `json:"occupied"`
	Unknown    int         `json:"unknown"`
}

func (ws *WebServer) status() Status {
	s := Status{
		Version: version.Version,
		Uptime:  time.Since(ws.started).Round(time.Second).String(),
		Scores:  ws.cfg.History.Total(),
	}
	if ws.cfg.Stats != nil {
		s.Pipeline = ws.cfg.Stats.Stats()
	}
	if ws.cfg.Offset != nil {
		s.Offset = ws.cfg.Offset.Get()
	}
	if ws.cfg.Poses != nil && ws.cfg.BaseFrame != "" {
		s.BaseFrame = ws.cfg.BaseFrame
		if p, err := ws.cfg.Poses.Resolve(ws.cfg.BaseFrame, time.Time{}); err == nil {
			s.Robot = &p
		}
	}
	if ws.cfg.Grid != nil {
		s.MapBuilds = ws.cfg.Grid.Builds()
		if g := ws.cfg.Grid.Grid(); g != nil {
			free, occupied, unknown := g.Counts()
			s.MapReady = true
			s.Map = &MapSummary{
				Width: g.Width, Height: g.Height, Resolution: g.Resolution, Origin: g.Origin(),
				Free: free, Occupied: occupied, Unknown: unknown,
			}
		}
	}
	return s
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, ws.status())
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, ws.status()); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}

// currentGrid returns the installed grid or writes 404.
func (ws *WebServer) currentGrid(w http.ResponseWriter) *grid.CorrelationGrid {
	if ws.cfg.Grid != nil {
		if g := ws.cfg.Grid.Grid(); g != nil {
			return g
		}
	}
	httputil.NotFound(w, "no map installed")
	return nil
}

// maxSide reads ?max_side, clamped to [16, 2000].
func maxSide(r *http.Request) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("max_side")); err == nil && v >= 16 && v <= 2000 {
		return v
	}
	return defaultMaxSide
}

func (ws *WebServer) handleGridChart(w http.ResponseWriter, r *http.Request) {
	g := ws.currentGrid(w)
	if g == nil {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderGridChart(w, g, maxSide(r)); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}

func (ws *WebServer) handleGridPNG(w http.ResponseWriter, r *http.Request) {
	g := ws.currentGrid(w)
	if g == nil {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := writeGridPNG(w, g, maxSide(r)); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}

func (ws *WebServer) handleScoreChart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderScoreChart(w, ws.cfg.History.Snapshot()); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}

func (ws *WebServer) handleScoresPNG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if err := writeScoresPNG(w, ws.cfg.History.Snapshot()); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}
