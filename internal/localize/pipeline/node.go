package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/laser"
	"github.com/banshee-data/localize/internal/monitoring"
)

// EventKind identifies the payload carried by an Event.
type EventKind int

const (
	EventScan EventKind = iota + 1
	EventMap
	EventTransform
)

func (k EventKind) String() string {
	switch k {
	case EventScan:
		return "scan"
	case EventMap:
		return "map"
	case EventTransform:
		return "tf"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// TransformStamped is a parent->child transform observation.
type TransformStamped struct {
	Parent    string           `json:"parent"`
	Child     string           `json:"child"`
	Stamp     time.Time        `json:"stamp"`
	Transform geom.Transform2D `json:"transform"`
	Static    bool             `json:"static,omitempty"`
}

// Event is one input to the node. Exactly one payload matches Kind.
type Event struct {
	Kind      EventKind
	Scan      *laser.Scan
	Map       *grid.OccupancyMap
	Transform *TransformStamped
}

// TransformSink accepts transform observations. *frames.Buffer satisfies it.
type TransformSink interface {
	SetTransform(parent, child string, stamp time.Time, tf geom.Transform2D) error
	SetStatic(parent, child string, tf geom.Transform2D) error
}

// Node owns the pipeline lifecycle. Run is its only dispatch loop.
type Node struct {
	Ingestor     *Ingestor
	Orchestrator *Orchestrator
	Transforms   TransformSink
	Handle       *GridHandle
	Offset       *OffsetHolder
	// MapFrame and OdomFrame name the transform edge Offset mirrors. An
	// incoming transform on that edge replaces the offset.
	MapFrame  string
	OdomFrame string

	closeOnce sync.Once
	closeErr  error
}

// Run handles events one at a time, in arrival order, until ctx is done or
// events is closed. A cancelled context is a normal shutdown and returns nil.
func (n *Node) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			n.dispatch(ctx, ev)
		}
	}
}

func (n *Node) dispatch(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventScan:
		if ev.Scan != nil && n.Orchestrator != nil {
			n.Orchestrator.HandleScan(ctx, *ev.Scan)
		}
	case EventMap:
		if ev.Map != nil && n.Ingestor != nil {
			if _, err := n.Ingestor.HandleMap(*ev.Map); err != nil {
				monitoring.Warnf("[ingest] rejecting map: %v", err)
			}
		}
	case EventTransform:
		if ev.Transform == nil || n.Transforms == nil {
			return
		}
		t := ev.Transform
		var err error
		if t.Static {
			err = n.Transforms.SetStatic(t.Parent, t.Child, t.Transform)
		} else {
			err = n.Transforms.SetTransform(t.Parent, t.Child, t.Stamp, t.Transform)
		}
		if err != nil {
			monitoring.Warnf("[tf] %v", err)
			return
		}
		if n.Offset != nil && n.isOffsetEdge(t.Parent, t.Child) {
			n.Offset.Set(t.Transform)
		}
	default:
		monitoring.Debugf("[node] ignoring %s", ev.Kind)
	}
}

func (n *Node) isOffsetEdge(parent, child string) bool {
	return n.MapFrame != "" && parent == n.MapFrame && child == n.OdomFrame
}

// SetOffset installs t as the map->odom correction, both in the transform
// tree (as a static edge) and in Offset.
func (n *Node) SetOffset(t geom.Transform2D) error {
	if n.Transforms != nil && n.MapFrame != "" && n.OdomFrame != "" {
		if err := n.Transforms.SetStatic(n.MapFrame, n.OdomFrame, t); err != nil {
			return fmt.Errorf("map offset: %w", err)
		}
	}
	if n.Offset != nil {
		n.Offset.Set(t)
	}
	return nil
}

// Close releases the grid and matcher. Call it after Run has returned.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		if n.Handle != nil {
			n.closeErr = n.Handle.Close()
		}
	})
	return n.closeErr
}
