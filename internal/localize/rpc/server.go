package rpc

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/localize/internal/monitoring"
)

// maxMsgSize covers large maps; a 4000x4000 grid is ~16M cells.
const maxMsgSize = 64 * 1024 * 1024

const stopGrace = 5 * time.Second

// Server hosts whichever services were registered on it.
type Server struct {
	server   *grpc.Server
	listener net.Listener

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a server with the map service and/or score service
// registered. Either may be nil.
func NewServer(maps *MapService, scores *ScoreBroadcaster) *Server {
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	if maps != nil {
		gs.RegisterService(&MapServiceDesc, maps)
	}
	if scores != nil {
		gs.RegisterService(&ScoreServiceDesc, scores)
	}
	return &Server{server: gs}
}

// Listen binds addr and serves in the background.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.Serve(lis)
	return nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) {
	s.listener = lis
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("[gRPC] listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Errorf("[gRPC] server error: %v", err)
		}
	}()
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop drains in-flight RPCs for up to stopGrace, then closes the rest.
// Stop the ScoreBroadcaster first so score streams end cleanly.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		monitoring.Warnf("[gRPC] graceful stop timed out after %s, forcing", stopGrace)
		s.server.Stop()
		<-done
	}
	s.wg.Wait()
	monitoring.Logf("[gRPC] server stopped")
}
