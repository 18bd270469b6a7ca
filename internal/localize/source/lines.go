package source

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync/atomic"

	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/serialmux"
)

// Stats counts decoded and rejected envelopes. Safe for concurrent use.
type Stats struct {
	Events   atomic.Uint64
	Rejected atomic.Uint64
}

// emitter decodes lines and forwards events, honouring ctx.
type emitter struct {
	name  string
	out   chan<- pipeline.Event
	stats *Stats
}

func newEmitter(name string, out chan<- pipeline.Event, stats *Stats) *emitter {
	if stats == nil {
		stats = &Stats{}
	}
	return &emitter{name: name, out: out, stats: stats}
}

// line decodes one line and sends it. Blank lines are ignored and bad
// envelopes are logged and dropped. Only a cancelled ctx returns an error.
func (e *emitter) line(ctx context.Context, data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	ev, err := Decode(data)
	if err != nil {
		e.stats.Rejected.Add(1)
		monitoring.Warnf("[%s] dropping line: %v", e.name, err)
		return nil
	}
	select {
	case e.out <- ev:
		e.stats.Events.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lines feeds every newline-separated record in payload to line.
func (e *emitter) lines(ctx context.Context, payload []byte) error {
	for len(payload) > 0 {
		var rec []byte
		if i := bytes.IndexByte(payload, '\n'); i >= 0 {
			rec, payload = payload[:i], payload[i+1:]
		} else {
			rec, payload = payload, nil
		}
		if err := e.line(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadLines decodes envelopes from r until EOF (nil) or cancellation.
func ReadLines(ctx context.Context, r io.Reader, out chan<- pipeline.Event, stats *Stats) error {
	em := newEmitter("reader", out, stats)
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), serialmux.MaxLineBytes)
	for scan.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := em.line(ctx, scan.Bytes()); err != nil {
			return err
		}
	}
	return scan.Err()
}
