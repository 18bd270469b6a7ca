// Package testutil provides fixtures shared by tests across packages.
package testutil

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
)

// BorderedMap returns a w x h map of free cells walled in by one ring of
// occupied cells.
func BorderedMap(w, h int, resolution float64, origin geom.Pose2D) grid.OccupancyMap {
	m := grid.OccupancyMap{Width: w, Height: h, Resolution: resolution, Origin: origin, Data: make([]int8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				m.Data[y*w+x] = grid.RawOccupied
			}
		}
	}
	return m
}

// UDPPacket is one datagram written by WriteUDPCapture.
type UDPPacket struct {
	At      time.Time
	DstPort uint16
	Payload []byte
}

// WriteUDPCapture encodes packets as Ethernet/IPv4/UDP frames in a pcap
// file image.
func WriteUDPCapture(t *testing.T, packets []UDPPacket) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for _, p := range packets {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 0, 0, 2),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(p.DstPort)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		sb := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(sb, opts, eth, ip, udp, gopacket.Payload(p.Payload)))
		data := sb.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     p.At,
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return buf.Bytes()
}
