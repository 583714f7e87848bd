package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"FlowRadar/internal/config"
)

const (
	headerTimeLayout = "2006-01-02 15:04:05"
	flowTimeLayout   = "15:04:05"
)

// TextRenderer writes a report in the fixed console layout.
type TextRenderer struct {
	// Location is used for every rendered timestamp; nil means time.Local.
	Location *time.Location
}

// Render writes rep to w. Failed sections are printed in place with their error.
func (t TextRenderer) Render(w io.Writer, rep *Report) error {
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	var b bytes.Buffer
	p := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
	}

	p("=== Network Traffic Report ===\n\n")
	p("Generated at: %s\n", rep.GeneratedAt.In(loc).Format(headerTimeLayout))
	p("Window: %s - %s (%s)\n",
		rep.Window.StartTime().In(loc).Format(headerTimeLayout),
		rep.Window.EndTime().In(loc).Format(headerTimeLayout),
		rep.Window.Duration())
	if len(rep.Indices) > 0 {
		p("Indices: %v\n", rep.Indices)
	}
	p("\n")

	th := rep.Thresholds

	p("--- 1. Traffic Overview ---\n")
	if !t.failed(&b, rep, SectionOverview) && rep.Overview != nil {
		p("Total bytes: %s\n", FormatGB(rep.Overview.TotalBytes))
		p("Total packets: %s\n", FormatCount(rep.Overview.TotalPackets))
		p("Total flows: %s\n", FormatCount(rep.Overview.FlowCount))
	}

	p("\n--- 2. Top %d Source IPs ---\n", topLimit(rep))
	if !t.failed(&b, rep, SectionTopSources) {
		renderTalkers(&b, rep.TopSources)
	}

	p("\n--- 3. Top %d Destination IPs ---\n", topLimit(rep))
	if !t.failed(&b, rep, SectionTopDestinations) {
		renderTalkers(&b, rep.TopDestinations)
	}

	p("\n--- 4. High-Volume Flows (single flow >= %s) ---\n", FormatMB(th.HighVolumeBytes))
	if !t.failed(&b, rep, SectionHighVolume) {
		if len(rep.HighVolumeFlows) == 0 {
			p("No anomalies found: no high-volume flows\n")
		} else {
			p("Found %d high-volume flows:\n", len(rep.HighVolumeFlows))
			for i, f := range rep.HighVolumeFlows {
				p("\n%d. [%s]\n", i+1, f.StartTime().In(loc).Format(flowTimeLayout))
				p("   Source: %s -> Destination: %s:%d\n", f.SrcAddr, f.DstAddr, f.DstPort)
				p("   Protocol: %d\n", f.Protocol)
				p("   Bytes: %s\n", FormatMB(f.Bytes))
				p("   Packets: %s\n", FormatCount(f.Packets))
			}
		}
	}

	p("\n--- 5. High-Connection Sources (single IP >= %s flows) ---\n", FormatCount(th.HighConnectionMinFlows))
	if !t.failed(&b, rep, SectionHighConnection) {
		if len(rep.HighConnectionSources) == 0 {
			p("No anomalies found: no high-connection sources\n")
		} else {
			p("Found %d high-connection sources:\n", len(rep.HighConnectionSources))
			for i, s := range rep.HighConnectionSources {
				p("\n%d. %s\n", i+1, s.Addr)
				p("   Flows: %s\n", FormatCount(s.Flows))
				p("   Bytes: %s\n", FormatMB(s.Bytes))
				p("   Distinct destinations: %d\n", s.Destinations)
			}
		}
	}

	p("\n--- 6. Scan Detection ---\n")
	if !t.failed(&b, rep, SectionScan) {
		if len(rep.ScanSources) == 0 {
			p("No anomalies found: no scanning behaviour\n")
		} else {
			p("Found %d suspected scanning sources:\n", len(rep.ScanSources))
			for i, s := range rep.ScanSources {
				p("\n%d. %s\n", i+1, s.Addr)
				p("   Flows: %s\n", FormatCount(s.Flows))
				p("   Distinct destinations: %d\n", s.Destinations)
				p("   Average bytes per flow: %s\n", FormatKB(s.AvgBytes))
				p("   Total bytes: %s\n", FormatMB(s.Bytes))
			}
		}
	}

	p("\n--- 7. Protocol Distribution ---\n")
	if !t.failed(&b, rep, SectionProtocols) {
		if len(rep.Protocols) == 0 {
			p("No traffic in window\n")
		}
		for i, s := range rep.Protocols {
			p("%d. Protocol %s: %s (%s)\n", i+1, ProtocolLabel(s.Protocol), FormatMB(s.Bytes), FormatPercent(s.Percent))
		}
	}

	if len(rep.Failures) > 0 {
		p("\n%d of %d sections failed\n", len(rep.Failures), len(Sections))
	}
	p("\n=== Analysis Complete ===\n")

	_, err := w.Write(b.Bytes())
	return err
}

// failed prints the failure of s, if any, and reports whether there was one.
func (t TextRenderer) failed(b *bytes.Buffer, rep *Report, s Section) bool {
	f := rep.Failure(s)
	if f == nil {
		return false
	}
	fmt.Fprintf(b, "Error: %v\n", f.Err)
	if detail := f.Detail(); detail != "" {
		fmt.Fprintf(b, "Details:\n%s\n", detail)
	}
	return true
}

func topLimit(rep *Report) int {
	if rep.Limits.TopTalkers > 0 {
		return rep.Limits.TopTalkers
	}
	return config.DefaultLimits().TopTalkers
}

func renderTalkers(b *bytes.Buffer, talkers []Talker) {
	if len(talkers) == 0 {
		b.WriteString("No traffic in window\n")
		return
	}
	for i, tk := range talkers {
		fmt.Fprintf(b, "%d. %s\n", i+1, tk.Addr)
		fmt.Fprintf(b, "   Bytes: %s\n", FormatMB(tk.Bytes))
		fmt.Fprintf(b, "   Packets: %s\n", FormatCount(tk.Packets))
		fmt.Fprintf(b, "   Flows: %s\n", FormatCount(tk.Flows))
	}
}
