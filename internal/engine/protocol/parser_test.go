package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, ip *layers.IPv4, l4 ...gopacket.SerializableLayer) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	stack := append([]gopacket.SerializableLayer{eth, ip}, l4...)
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, stack...))
	return buf.Bytes()
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version: 4, TTL: 64, Protocol: proto,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2},
	}
}

func TestParsePacket_TCP(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 443, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := frame(t, ip, tcp, gopacket.Payload(make([]byte, 100)))
	ts := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)

	info, err := ParsePacket(data, ts)
	require.NoError(t, err)

	assert.Equal(t, ts, info.Timestamp)
	assert.Equal(t, len(data), info.Length)
	assert.True(t, info.FiveTuple.SrcIP.Equal(net.IP{10, 0, 0, 1}))
	assert.True(t, info.FiveTuple.DstIP.Equal(net.IP{10, 0, 0, 2}))
	assert.Equal(t, uint16(51000), info.FiveTuple.SrcPort)
	assert.Equal(t, uint16(443), info.FiveTuple.DstPort)
	assert.Equal(t, uint8(6), info.FiveTuple.Protocol)
}

func TestParsePacket_UDP(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	info, err := ParsePacket(frame(t, ip, udp, gopacket.Payload([]byte("query"))), time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint16(53), info.FiveTuple.DstPort)
	assert.Equal(t, uint8(17), info.FiveTuple.Protocol)
}

func TestParsePacket_ICMP(t *testing.T) {
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}

	info, err := ParsePacket(frame(t, ipv4(layers.IPProtocolICMPv4), icmp), time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint8(1), info.FiveTuple.Protocol)
	assert.Zero(t, info.FiveTuple.DstPort)
}

func TestParsePacket_Rejects(t *testing.T) {
	_, err := ParsePacket([]byte{0x00, 0x01}, time.Now())
	assert.ErrorIs(t, err, ErrNotIPv4)

	gre := frame(t, ipv4(layers.IPProtocolGRE), gopacket.Payload(make([]byte, 8)))
	_, err = ParsePacket(gre, time.Now())
	assert.ErrorIs(t, err, ErrUnsupportedProto)
}
