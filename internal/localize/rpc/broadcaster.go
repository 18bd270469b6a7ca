package rpc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/monitoring"
)

const (
	scoreQueueSize  = 64
	clientQueueSize = 16
)

// ScoreBroadcaster fans match scores out to every StreamScores client. It
// implements pipeline.Publisher; slow clients lose scores rather than
// stalling the pipeline.
type ScoreBroadcaster struct {
	scoreCh   chan float64
	clients   map[string]*scoreClient
	clientsMu sync.RWMutex

	published   atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type scoreClient struct {
	id      string
	scoreCh chan float64
}

// BroadcasterStats contains broadcaster statistics.
type BroadcasterStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Clients   int32  `json:"clients"`
}

// NewScoreBroadcaster creates a stopped broadcaster. Call Start before
// publishing.
func NewScoreBroadcaster() *ScoreBroadcaster {
	return &ScoreBroadcaster{
		scoreCh: make(chan float64, scoreQueueSize),
		clients: make(map[string]*scoreClient),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the broadcast loop.
func (b *ScoreBroadcaster) Start() {
	if b.running.Swap(true) {
		return
	}
	b.wg.Add(1)
	go b.broadcastLoop()
}

// Stop ends the broadcast loop and disconnects streaming clients.
func (b *ScoreBroadcaster) Stop() {
	if !b.running.Swap(false) {
		return
	}
	close(b.stopCh)
	b.wg.Wait()
}

// Publish implements pipeline.Publisher.
func (b *ScoreBroadcaster) Publish(_ context.Context, s pipeline.Score) error {
	if !b.running.Load() {
		return nil
	}
	select {
	case b.scoreCh <- s.Value:
		b.published.Add(1)
	default:
		n := b.dropped.Add(1)
		monitoring.Warnf("[gRPC] score queue full, dropped score for scan %d (total dropped: %d)", s.Sequence, n)
	}
	return nil
}

// Stats returns current broadcaster statistics.
func (b *ScoreBroadcaster) Stats() BroadcasterStats {
	return BroadcasterStats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
		Clients:   b.clientCount.Load(),
	}
}

func (b *ScoreBroadcaster) broadcastLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case v := <-b.scoreCh:
			b.clientsMu.RLock()
			for _, c := range b.clients {
				select {
				case c.scoreCh <- v:
				default:
					b.dropped.Add(1)
				}
			}
			b.clientsMu.RUnlock()
		}
	}
}

func (b *ScoreBroadcaster) addClient() *scoreClient {
	c := &scoreClient{
		id:      "grpc-" + uuid.NewString(),
		scoreCh: make(chan float64, clientQueueSize),
	}
	b.clientsMu.Lock()
	b.clients[c.id] = c
	b.clientsMu.Unlock()
	n := b.clientCount.Add(1)
	monitoring.Logf("[gRPC] score client connected: %s (total: %d)", c.id, n)
	return c
}

func (b *ScoreBroadcaster) removeClient(id string) {
	b.clientsMu.Lock()
	_, ok := b.clients[id]
	delete(b.clients, id)
	b.clientsMu.Unlock()
	if ok {
		n := b.clientCount.Add(-1)
		monitoring.Logf("[gRPC] score client disconnected: %s (remaining: %d)", id, n)
	}
}
