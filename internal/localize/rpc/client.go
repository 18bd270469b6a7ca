package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/localize/internal/localize/grid"
)

// Client talks to the map and score services on one connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. Extra options are appended after the
// defaults (plaintext transport, JSON codec).
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(maxMsgSize),
		),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// FetchMap calls MapService/GetMap. It satisfies pipeline.MapFetcher.
func (c *Client) FetchMap(ctx context.Context) (grid.OccupancyMap, error) {
	var m grid.OccupancyMap
	if err := c.conn.Invoke(ctx, getMapMethod, &emptypb.Empty{}, &m); err != nil {
		return grid.OccupancyMap{}, fmt.Errorf("GetMap: %w", err)
	}
	return m, nil
}

// ScoreStream receives scores from ScoreService/StreamScores.
type ScoreStream struct {
	stream grpc.ClientStream
}

// StreamScores opens a score subscription. Cancel ctx to close it.
func (c *Client) StreamScores(ctx context.Context) (*ScoreStream, error) {
	st, err := c.conn.NewStream(ctx, &ScoreServiceDesc.Streams[0], streamScoresMethod)
	if err != nil {
		return nil, fmt.Errorf("StreamScores: %w", err)
	}
	if err := st.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := st.CloseSend(); err != nil {
		return nil, err
	}
	return &ScoreStream{stream: st}, nil
}

// Recv blocks for the next score.
func (s *ScoreStream) Recv() (float64, error) {
	v := new(wrapperspb.DoubleValue)
	if err := s.stream.RecvMsg(v); err != nil {
		return 0, err
	}
	return v.GetValue(), nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
