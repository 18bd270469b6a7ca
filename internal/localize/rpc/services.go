package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/monitoring"
)

const (
	getMapMethod       = "/localize.MapService/GetMap"
	streamScoresMethod = "/localize.ScoreService/StreamScores"
)

// MapProvider supplies the map returned by MapService/GetMap.
type MapProvider interface {
	Map(ctx context.Context) (grid.OccupancyMap, error)
}

// MapProviderFunc adapts a function to MapProvider.
type MapProviderFunc func(ctx context.Context) (grid.OccupancyMap, error)

// Map implements MapProvider.
func (f MapProviderFunc) Map(ctx context.Context) (grid.OccupancyMap, error) { return f(ctx) }

// mapServer is the handler type registered against MapServiceDesc.
type mapServer interface {
	GetMap(ctx context.Context, in *emptypb.Empty) (*grid.OccupancyMap, error)
}

// scoreServer is the handler type registered against ScoreServiceDesc.
type scoreServer interface {
	StreamScores(in *emptypb.Empty, stream grpc.ServerStream) error
}

// MapServiceDesc describes localize.MapService.
var MapServiceDesc = grpc.ServiceDesc{
	ServiceName: "localize.MapService",
	HandlerType: (*mapServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMap", Handler: getMapHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "localize.proto",
}

// ScoreServiceDesc describes localize.ScoreService.
var ScoreServiceDesc = grpc.ServiceDesc{
	ServiceName: "localize.ScoreService",
	HandlerType: (*scoreServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamScores", Handler: streamScoresHandler, ServerStreams: true},
	},
	Metadata: "localize.proto",
}

func getMapHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(mapServer).GetMap(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMapMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(mapServer).GetMap(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func streamScoresHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(scoreServer).StreamScores(in, stream)
}

// MapService serves GetMap from a MapProvider.
type MapService struct {
	Provider MapProvider
}

// GetMap implements localize.MapService/GetMap.
func (s *MapService) GetMap(ctx context.Context, _ *emptypb.Empty) (*grid.OccupancyMap, error) {
	m, err := s.Provider.Map(ctx)
	if err != nil {
		monitoring.Warnf("[gRPC] GetMap failed: %v", err)
		return nil, status.Errorf(codes.Unavailable, "map unavailable: %v", err)
	}
	monitoring.Debugf("[gRPC] GetMap served %dx%d map", m.Width, m.Height)
	return &m, nil
}

// StreamScores implements localize.ScoreService/StreamScores.
func (b *ScoreBroadcaster) StreamScores(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	c := b.addClient()
	defer b.removeClient(c.id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case v := <-c.scoreCh:
			if err := stream.SendMsg(wrapperspb.Double(v)); err != nil {
				monitoring.Warnf("[gRPC] send to %s: %v", c.id, err)
				return err
			}
		}
	}
}
