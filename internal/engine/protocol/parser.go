package protocol

import (
	"errors"
	"time"

	"FlowRadar/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	ErrNotIPv4          = errors.New("not an IPv4 packet")
	ErrUnsupportedProto = errors.New("unsupported transport protocol")
)

// ParsePacket decodes a raw Ethernet frame captured at ts and extracts its flow key.
// TCP and UDP carry ports; ICMP flows use port 0.
func ParsePacket(data []byte, ts time.Time) (*model.PacketInfo, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	info := &model.PacketInfo{
		Timestamp: ts,
		Length:    len(data),
	}

	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return nil, ErrNotIPv4
	}
	ip := l.(*layers.IPv4)
	info.FiveTuple.SrcIP = ip.SrcIP
	info.FiveTuple.DstIP = ip.DstIP
	info.FiveTuple.Protocol = uint8(ip.Protocol)

	switch ip.Protocol {
	case layers.IPProtocolTCP:
		tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok {
			return nil, ErrUnsupportedProto
		}
		info.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		info.FiveTuple.DstPort = uint16(tcp.DstPort)
	case layers.IPProtocolUDP:
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			return nil, ErrUnsupportedProto
		}
		info.FiveTuple.SrcPort = uint16(udp.SrcPort)
		info.FiveTuple.DstPort = uint16(udp.DstPort)
	case layers.IPProtocolICMPv4:
	default:
		return nil, ErrUnsupportedProto
	}

	return info, nil
}
