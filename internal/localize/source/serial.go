package source

import (
	"context"

	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/serialmux"
)

// SerialSource is a live subscription to a serial mux. Lines read by
// mux.Monitor before the subscription exists are not delivered, so callers
// subscribe first and start Monitor afterwards.
type SerialSource struct {
	mux   serialmux.SerialMuxInterface
	id    string
	lines chan string
}

// SubscribeSerial registers with mux immediately.
func SubscribeSerial(mux serialmux.SerialMuxInterface) *SerialSource {
	id, lines := mux.Subscribe()
	monitoring.Debugf("[serial] subscribed as %s", id)
	return &SerialSource{mux: mux, id: id, lines: lines}
}

// Run decodes envelopes until the mux is closed (nil) or ctx is cancelled
// (ctx.Err()). It unsubscribes on return.
func (s *SerialSource) Run(ctx context.Context, out chan<- pipeline.Event, stats *Stats) error {
	defer s.mux.Unsubscribe(s.id)

	em := newEmitter("serial", out, stats)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return nil
			}
			if err := em.line(ctx, []byte(line)); err != nil {
				return err
			}
		}
	}
}

// Serial subscribes and runs in one call, for muxes whose Monitor is
// started later by the caller.
func Serial(ctx context.Context, mux serialmux.SerialMuxInterface, out chan<- pipeline.Event, stats *Stats) error {
	return SubscribeSerial(mux).Run(ctx, out, stats)
}
