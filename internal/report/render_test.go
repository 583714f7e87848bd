package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"
	"FlowRadar/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatters(t *testing.T) {
	assert.Equal(t, "100.00 MB", FormatMB(104857600))
	assert.Equal(t, "1.50 GB", FormatGB(1610612736))
	assert.Equal(t, "0.00 GB", FormatGB(0))
	assert.Equal(t, "4.88 KB", FormatKB(5000))
	assert.Equal(t, "1,234,567", FormatCount(int64(1234567)))
	assert.Equal(t, "999", FormatCount(uint64(999)))
	assert.Equal(t, "45.00%", FormatPercent(45))
	assert.Equal(t, "33.33%", FormatPercent(Percent(1, 3)))
	assert.Equal(t, "6 (TCP)", ProtocolLabel("6"))
	assert.Equal(t, "99", ProtocolLabel("99"))
}

func sampleReport() *Report {
	start := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	return &Report{
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC),
		Window:      model.NewTimeWindow(start, start.Add(time.Hour)),
		Indices:     []string{"radar_flow_collector-2024.03.01"},
		Thresholds:  config.DefaultThresholds(),
		Limits:      config.DefaultLimits(),
		Overview:    &Overview{TotalBytes: 1610612736, TotalPackets: 1234567, FlowCount: 4321},
		TopSources: []Talker{
			{Addr: "10.0.0.1", Bytes: 104857600, Packets: 70000, Flows: 12},
		},
		TopDestinations: []Talker{
			{Addr: "10.0.1.1", Bytes: 52428800, Packets: 35000, Flows: 3},
		},
		HighVolumeFlows: []model.FlowRecord{
			{SrcAddr: "10.0.0.1", DstAddr: "10.0.1.1", DstPort: 443, Protocol: 6, Bytes: 104857600, Packets: 70000,
				StartMillis: time.Date(2024, 3, 1, 11, 30, 5, 0, time.UTC).UnixMilli()},
		},
		ScanSources: []ScanSource{
			{Addr: "192.168.1.66", Flows: 150, Destinations: 60, AvgBytes: 5000, Bytes: 750000},
		},
		Protocols: []ProtocolShare{
			{Protocol: "6", Bytes: 1073741824, Percent: 66.67},
			{Protocol: "17", Bytes: 536870912, Percent: 33.33},
		},
	}
}

func render(t *testing.T, rep *Report) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, TextRenderer{Location: time.UTC}.Render(&buf, rep))
	return buf.String()
}

func TestTextRenderer_Sections(t *testing.T) {
	out := render(t, sampleReport())

	for _, want := range []string{
		"Generated at: 2024-03-01 12:00:05",
		"Window: 2024-03-01 11:00:00 - 2024-03-01 12:00:00 (1h0m0s)",
		"Indices: [radar_flow_collector-2024.03.01]",
		"--- 1. Traffic Overview ---\nTotal bytes: 1.50 GB\nTotal packets: 1,234,567\nTotal flows: 4,321\n",
		"--- 2. Top 10 Source IPs ---\n1. 10.0.0.1\n   Bytes: 100.00 MB\n   Packets: 70,000\n   Flows: 12\n",
		"--- 3. Top 10 Destination IPs ---\n1. 10.0.1.1\n   Bytes: 50.00 MB\n",
		"--- 4. High-Volume Flows (single flow >= 100.00 MB) ---\nFound 1 high-volume flows:\n",
		"1. [11:30:05]\n   Source: 10.0.0.1 -> Destination: 10.0.1.1:443\n   Protocol: 6\n   Bytes: 100.00 MB\n",
		"--- 5. High-Connection Sources (single IP >= 1,000 flows) ---\nNo anomalies found: no high-connection sources\n",
		"1. 192.168.1.66\n   Flows: 150\n   Distinct destinations: 60\n   Average bytes per flow: 4.88 KB\n   Total bytes: 0.72 MB\n",
		"1. Protocol 6 (TCP): 1024.00 MB (66.67%)\n2. Protocol 17 (UDP): 512.00 MB (33.33%)\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.HasSuffix(out, "=== Analysis Complete ===\n"))
	assert.NotContains(t, out, "Error:")

	// Sections appear in report order.
	last := -1
	for i := 1; i <= 7; i++ {
		idx := strings.Index(out, "--- "+string(rune('0'+i))+".")
		require.Greater(t, idx, last)
		last = idx
	}
}

func TestTextRenderer_EmptyDetectors(t *testing.T) {
	rep := sampleReport()
	rep.HighVolumeFlows = nil
	rep.ScanSources = nil

	out := render(t, rep)

	assert.Contains(t, out, "No anomalies found: no high-volume flows")
	assert.Contains(t, out, "No anomalies found: no high-connection sources")
	assert.Contains(t, out, "No anomalies found: no scanning behaviour")
}

func TestTextRenderer_FailedSection(t *testing.T) {
	rep := sampleReport()
	rep.Protocols = nil
	rep.Failures = []*SectionError{
		{Section: SectionTopSources, Err: &query.QueryError{
			Backend: "elasticsearch", Status: 400,
			Detail: "{\n  \"type\": \"illegal_argument_exception\"\n}",
			Err:    errors.New("illegal_argument_exception: bad field"),
		}},
		{Section: SectionProtocols, Err: ErrOverviewUnavailable},
	}

	out := render(t, rep)

	assert.Contains(t, out, "--- 2. Top 10 Source IPs ---\nError: elasticsearch query failed (status 400): illegal_argument_exception: bad field\n"+
		"Details:\n{\n  \"type\": \"illegal_argument_exception\"\n}\n")
	assert.Contains(t, out, "--- 7. Protocol Distribution ---\nError: volume overview unavailable\n")
	assert.NotContains(t, out, "Protocol 6 (TCP)")
	assert.Contains(t, out, "2 of 7 sections failed")
	assert.Contains(t, out, "=== Analysis Complete ===")
}

func TestSectionError_JSON(t *testing.T) {
	rep := sampleReport()
	rep.Failures = []*SectionError{{Section: SectionScan, Err: &query.QueryError{Backend: "clickhouse", Detail: "code 60", Err: errors.New("table missing")}}}

	data, err := json.Marshal(rep)
	require.NoError(t, err)

	var decoded struct {
		Failures []map[string]string `json:"failures"`
		Limits   config.Limits       `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []map[string]string{{
		"section": "scan_sources",
		"error":   "clickhouse query failed: table missing",
		"detail":  "code 60",
	}}, decoded.Failures)
	assert.Equal(t, config.DefaultLimits(), decoded.Limits)
}

func TestAnomalyMarkdown(t *testing.T) {
	md := AnomalyMarkdown(sampleReport(), time.UTC)

	assert.Contains(t, md, "## Traffic anomalies 2024-03-01 11:00:00 - 2024-03-01 12:00:00")
	assert.Contains(t, md, "Window total: 1.50 GB over 4,321 flows.")
	assert.Contains(t, md, "| 11:30:05 | 10.0.0.1 | 10.0.1.1:443 | 6 | 100.00 MB |")
	assert.Contains(t, md, "### Suspected scanners")
	assert.Contains(t, md, "| 192.168.1.66 | 150 | 60 | 4.88 KB |")
	assert.NotContains(t, md, "High-connection sources")
	assert.NotContains(t, md, "No anomalies found.")
}

func TestAnomalyMarkdown_Quiet(t *testing.T) {
	rep := sampleReport()
	rep.HighVolumeFlows = nil
	rep.ScanSources = nil
	rep.Failures = []*SectionError{{Section: SectionOverview, Err: errors.New("timeout")}}
	rep.Overview = nil

	md := AnomalyMarkdown(rep, time.UTC)

	assert.Contains(t, md, "No anomalies found.")
	assert.Contains(t, md, "- `overview`: timeout")
	assert.NotContains(t, md, "Window total")
}
