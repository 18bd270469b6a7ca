package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/laser"
	"github.com/banshee-data/localize/internal/localize/matcher"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/timeutil"
)

// Outcome is what happened to one scan.
type Outcome int

const (
	OutcomeNotReady  Outcome = iota // no map yet, dropped silently
	OutcomeNoSensor                 // no calibration profile for the frame
	OutcomeNoPose                   // pose resolution failed
	OutcomeThrottled                // counted but skipped by the throttle
	OutcomeMatched                  // matched and published
)

var outcomeNames = [...]string{"not_ready", "no_sensor", "no_pose", "throttled", "matched"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Outcomes lists every outcome in declaration order.
func Outcomes() []Outcome {
	return []Outcome{OutcomeNotReady, OutcomeNoSensor, OutcomeNoPose, OutcomeThrottled, OutcomeMatched}
}

// PoseSource resolves the pose of a sensor frame in the map frame.
// *frames.PoseResolver satisfies it.
type PoseSource interface {
	Resolve(frameID string, stamp time.Time) (geom.Pose2D, error)
}

// OrchestratorConfig holds the orchestrator's collaborators.
type OrchestratorConfig struct {
	Registry  *laser.Registry
	Resolver  PoseSource
	Handle    *GridHandle
	Throttle  int       // match every Throttle-th resolved scan
	Publisher Publisher // optional
	Observer  Observer  // optional
	Clock     timeutil.Clock
}

// Stats is a point-in-time summary of orchestrator activity.
type Stats struct {
	Counter   uint64            `json:"counter"`
	Outcomes  map[string]uint64 `json:"outcomes"`
	LastScore *float64          `json:"last_score,omitempty"`
	LastPose  *geom.Pose2D      `json:"last_pose,omitempty"`
	LastMatch time.Time         `json:"last_match,omitempty"`
}

// Orchestrator runs the per-scan control flow. HandleScan must be called
// from a single goroutine.
type Orchestrator struct {
	cfg OrchestratorConfig

	// counter is N: scans whose pose resolved since a matcher was bound.
	counter atomic.Uint64

	mu        sync.Mutex // guards the fields below for Stats readers
	outcomes  [len(outcomeNames)]uint64
	lastScore float64
	lastPose  geom.Pose2D
	lastMatch time.Time
	matched   bool
}

// NewOrchestrator validates cfg.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Registry == nil || cfg.Resolver == nil || cfg.Handle == nil {
		return nil, fmt.Errorf("orchestrator requires registry, resolver and grid handle")
	}
	if cfg.Throttle < 1 {
		return nil, fmt.Errorf("throttle must be >= 1, got %d", cfg.Throttle)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Counter returns the throttle counter N.
func (o *Orchestrator) Counter() uint64 { return o.counter.Load() }

// HandleScan processes one scan and reports what happened to it.
func (o *Orchestrator) HandleScan(ctx context.Context, scan laser.Scan) Outcome {
	out := o.handle(ctx, scan)
	o.mu.Lock()
	o.outcomes[out]++
	o.mu.Unlock()
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveOutcome(out)
	}
	return out
}

func (o *Orchestrator) handle(ctx context.Context, scan laser.Scan) Outcome {
	if !o.cfg.Handle.Ready() {
		return OutcomeNotReady
	}

	if scan.FrameID == "" {
		monitoring.Warnf("[match] dropping scan at %s: no sensor frame id", scan.Stamp.Format(time.RFC3339Nano))
		return OutcomeNoSensor
	}
	o.cfg.Registry.ForScan(scan)
	profile, ok := o.cfg.Registry.Lookup(scan.FrameID)
	if !ok {
		monitoring.Warnf("[match] dropping scan: sensor %q is not registered", scan.FrameID)
		return OutcomeNoSensor
	}

	initial, err := o.cfg.Resolver.Resolve(scan.FrameID, scan.Stamp)
	if err != nil {
		monitoring.Warnf("[match] dropping scan: %v", err)
		return OutcomeNoPose
	}

	n := o.counter.Add(1)
	if n%uint64(o.cfg.Throttle) != 0 {
		return OutcomeThrottled
	}

	var res matcher.Result
	start := o.cfg.Clock.Now()
	matched := o.cfg.Handle.WithMatcher(func(m matcher.ScanMatcher, _ *grid.CorrelationGrid) {
		res = m.MatchScan(matcher.NewRangeScan(profile, scan, initial), initial, false, true)
	})
	if !matched {
		// The pair was released between the gate and here.
		return OutcomeNotReady
	}
	elapsed := o.cfg.Clock.Since(start)

	monitoring.Debugf("[match] scan %d from %s: score=%.3f initial=%s corrected=%s took %s",
		n, scan.FrameID, res.Score, initial, res.Pose, elapsed)
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveMatch(elapsed, res.Score)
	}

	o.mu.Lock()
	o.lastScore, o.lastPose, o.lastMatch, o.matched = res.Score, res.Pose, o.cfg.Clock.Now(), true
	o.mu.Unlock()

	if o.cfg.Publisher != nil {
		s := Score{
			Sequence:   n,
			FrameID:    scan.FrameID,
			Stamp:      scan.Stamp,
			Value:      res.Score,
			Initial:    initial,
			Pose:       res.Pose,
			Covariance: res.Covariance,
			Elapsed:    elapsed,
		}
		if err := o.cfg.Publisher.Publish(ctx, s); err != nil {
			monitoring.Warnf("[match] publishing score for scan %d: %v", n, err)
		}
	}
	return OutcomeMatched
}

// Stats returns a snapshot safe to read from any goroutine.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Stats{Outcomes: make(map[string]uint64, len(o.outcomes))}
	for i, n := range o.outcomes {
		s.Outcomes[Outcome(i).String()] = n
	}
	if o.matched {
		score, pose := o.lastScore, o.lastPose
		s.LastScore, s.LastPose, s.LastMatch = &score, &pose, o.lastMatch
	}
	s.Counter = o.Counter()
	return s
}
