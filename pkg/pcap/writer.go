package pcap

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Packet describes one synthetic IPv4 packet.
type Packet struct {
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
	Protocol  layers.IPProtocol // TCP, UDP or ICMPv4
	Payload   int               // payload size in bytes
	SYN       bool
}

// Writer writes Ethernet/IPv4 packets to a pcap stream.
type Writer struct {
	w *pcapgo.Writer
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: pw}, nil
}

// WritePacket serializes p and appends it to the capture.
func (w *Writer) WritePacket(p Packet) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    p.SrcIP.To4(),
		DstIP:    p.DstIP.To4(),
		Version:  4,
		TTL:      64,
		Protocol: p.Protocol,
	}

	payload := gopacket.Payload(make([]byte, p.Payload))
	var stack []gopacket.SerializableLayer
	switch p.Protocol {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(p.SrcPort),
			DstPort: layers.TCPPort(p.DstPort),
			SYN:     p.SYN,
			ACK:     !p.SYN,
			Window:  14600,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		stack = []gopacket.SerializableLayer{eth, ip, tcp, payload}
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(p.SrcPort),
			DstPort: layers.UDPPort(p.DstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		stack = []gopacket.SerializableLayer{eth, ip, udp, payload}
	case layers.IPProtocolICMPv4:
		icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
		stack = []gopacket.SerializableLayer{eth, ip, icmp, payload}
	default:
		return fmt.Errorf("unsupported protocol: %s", p.Protocol)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return fmt.Errorf("failed to serialize layers: %w", err)
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     p.Timestamp,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := w.w.WritePacket(ci, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}
