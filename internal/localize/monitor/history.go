package monitor

import (
	"context"
	"sync"

	"github.com/banshee-data/localize/internal/localize/pipeline"
)

// DefaultHistorySize is the number of scores kept when none is given.
const DefaultHistorySize = 600

// ScoreHistory is a fixed-size ring of recent scores. It implements
// pipeline.Publisher so it can sit beside the other score consumers.
type ScoreHistory struct {
	mu    sync.Mutex
	buf   []pipeline.Score
	next  int
	full  bool
	total uint64
}

var _ pipeline.Publisher = (*ScoreHistory)(nil)

// NewScoreHistory returns a ring holding up to size scores.
func NewScoreHistory(size int) *ScoreHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &ScoreHistory{buf: make([]pipeline.Score, size)}
}

// Publish records s, evicting the oldest entry when full.
func (h *ScoreHistory) Publish(_ context.Context, s pipeline.Score) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = s
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.total++
	return nil
}

// Snapshot returns the stored scores, oldest first.
func (h *ScoreHistory) Snapshot() []pipeline.Score {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]pipeline.Score(nil), h.buf[:h.next]...)
	}
	out := make([]pipeline.Score, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Total is the number of scores ever published.
func (h *ScoreHistory) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
