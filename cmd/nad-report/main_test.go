package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"
	"FlowRadar/internal/report"
	"FlowRadar/pkg/pcap"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWindow(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	w, err := resolveWindow(cfg, "", "", "", now)
	require.NoError(t, err)
	assert.Equal(t, model.LastWindow(now, time.Hour), w)

	w, err = resolveWindow(cfg, "15m", "", "", now)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, w.Duration())

	w, err = resolveWindow(cfg, "", "2024-03-01T10:00:00Z", "2024-03-01T11:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, w.Duration())

	_, err = resolveWindow(cfg, "", "2024-03-01T10:00:00Z", "", now)
	assert.Error(t, err)

	_, err = resolveWindow(cfg, "", "2024-03-01T11:00:00Z", "2024-03-01T10:00:00Z", now)
	assert.ErrorIs(t, err, model.ErrInvalidWindow)

	_, err = resolveWindow(cfg, "-1h", "", "", now)
	assert.ErrorIs(t, err, model.ErrInvalidWindow)
}

func TestLoadCapture_ScanScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := pcap.NewWriter(f)
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	scanner := net.IP{192, 168, 1, 66}
	for i := 0; i < 150; i++ {
		require.NoError(t, w.WritePacket(pcap.Packet{
			Timestamp: start.Add(time.Duration(i) * 10 * time.Millisecond),
			SrcIP:     scanner,
			DstIP:     net.IP{10, 1, 0, byte(i%60 + 1)},
			SrcPort:   uint16(40000 + i),
			DstPort:   22,
			Protocol:  layers.IPProtocolTCP,
			SYN:       true,
		}))
	}
	require.NoError(t, w.WritePacket(pcap.Packet{
		Timestamp: start.Add(5 * time.Second),
		SrcIP:     net.IP{10, 0, 0, 5}, DstIP: net.IP{10, 0, 0, 6},
		SrcPort: 5353, DstPort: 53, Protocol: layers.IPProtocolUDP, Payload: 40,
	}))
	require.NoError(t, f.Close())

	store, window, err := loadCapture(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 151, store.Len())
	assert.Equal(t, start.UnixMilli(), window.Start)
	assert.Equal(t, start.Add(5*time.Second).UnixMilli()+1, window.End)

	rep, err := report.NewEngine(store, nil, report.DefaultOptions()).GenerateForIndices(context.Background(), window, nil)
	require.NoError(t, err)
	require.NoError(t, rep.Err())

	require.Len(t, rep.ScanSources, 1)
	assert.Equal(t, "192.168.1.66", rep.ScanSources[0].Addr)
	assert.Equal(t, int64(150), rep.ScanSources[0].Flows)
	assert.Equal(t, int64(60), rep.ScanSources[0].Destinations)
	assert.Equal(t, int64(151), rep.Overview.FlowCount)
	require.Len(t, rep.Protocols, 2)
	assert.Equal(t, "6", rep.Protocols[0].Protocol)
}

func TestLoadCapture_Missing(t *testing.T) {
	_, _, err := loadCapture(filepath.Join(t.TempDir(), "nope.pcap"), 0)
	assert.Error(t, err)
}
