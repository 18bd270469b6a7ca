package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/timeutil"
)

// ReplayConfig configures Replay.
type ReplayConfig struct {
	// Path of a classic libpcap capture file.
	Path string
	// Port keeps only UDP datagrams to this destination port. Zero keeps all.
	Port int
	// Realtime paces delivery by the gaps between capture timestamps.
	Realtime bool
	// Speed scales realtime pacing; 2 replays twice as fast. Zero means 1.
	Speed float64
	Clock timeutil.Clock
	Stats *Stats
}

// ReplayResult summarises a finished replay.
type ReplayResult struct {
	Packets  int
	Payloads int
	Elapsed  time.Duration
}

// Replay reads UDP envelope datagrams from a capture file. It returns at
// end of file, or with ctx.Err() on cancellation.
func Replay(ctx context.Context, cfg ReplayConfig, out chan<- pipeline.Event) (ReplayResult, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("failed to open PCAP file %s: %w", cfg.Path, err)
	}
	defer f.Close()
	return ReplayFrom(ctx, f, cfg, out)
}

// ReplayFrom is Replay over an already open capture stream.
func ReplayFrom(ctx context.Context, r io.Reader, cfg ReplayConfig, out chan<- pipeline.Event) (ReplayResult, error) {
	var res ReplayResult
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return res, fmt.Errorf("failed to read PCAP header: %w", err)
	}
	packets := gopacket.NewPacketSource(reader, reader.LinkType())
	packets.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	em := newEmitter("pcap", out, cfg.Stats)
	start := clock.Now()
	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		packet, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			res.Elapsed = clock.Since(start)
			monitoring.Logf("[pcap] replay complete: %d packets, %d payloads in %v", res.Packets, res.Payloads, res.Elapsed)
			return res, nil
		}
		if err != nil {
			// Truncated captures end with an unexpected EOF; keep what was read.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				monitoring.Warnf("[pcap] capture truncated after %d packets", res.Packets)
				res.Elapsed = clock.Since(start)
				return res, nil
			}
			return res, fmt.Errorf("read packet %d: %w", res.Packets+1, err)
		}
		res.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if cfg.Port != 0 && int(udp.DstPort) != cfg.Port {
			continue
		}

		stamp := packet.Metadata().Timestamp
		if cfg.Realtime && !last.IsZero() && stamp.After(last) {
			gap := time.Duration(float64(stamp.Sub(last)) / speed)
			if err := timeutil.SleepContext(ctx, clock, gap); err != nil {
				return res, err
			}
		}
		last = stamp

		res.Payloads++
		if err := em.lines(ctx, udp.Payload); err != nil {
			return res, err
		}
	}
}
