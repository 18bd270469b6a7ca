package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/monitoring"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 65535

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address string
	RcvBuf  int
	Stats   *Stats
}

// UDPListener receives one or more envelope lines per datagram.
type UDPListener struct {
	address string
	rcvBuf  int
	stats   *Stats

	mu    sync.Mutex
	conn  *net.UDPConn
	ready chan struct{}
}

// NewUDPListener returns a listener; Start binds the socket.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	stats := cfg.Stats
	if stats == nil {
		stats = &Stats{}
	}
	return &UDPListener{
		address: cfg.Address,
		rcvBuf:  cfg.RcvBuf,
		stats:   stats,
		ready:   make(chan struct{}),
	}
}

// Addr blocks until the socket is bound and returns its local address.
func (l *UDPListener) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-l.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.LocalAddr(), nil
}

// Start reads datagrams until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context, out chan<- pipeline.Event) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Warnf("[udp] failed to set receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	close(l.ready)
	monitoring.Logf("[udp] listening on %s", conn.LocalAddr())

	em := newEmitter("udp", out, l.stats)
	buffer := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Short deadline so cancellation is noticed while idle.
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Warnf("[udp] read error: %v", err)
			continue
		}
		monitoring.Debugf("[udp] %d bytes from %v", n, from)
		if err := em.lines(ctx, buffer[:n]); err != nil {
			return err
		}
	}
}
