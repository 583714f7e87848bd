package report

import (
	"fmt"
	"strings"
	"time"
)

// AnomalyMarkdown summarizes the detector sections of rep as Markdown. It is the
// body of anomaly notifications and the input handed to the LLM analyzer.
func AnomalyMarkdown(rep *Report, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder

	fmt.Fprintf(&b, "## Traffic anomalies %s - %s\n\n",
		rep.Window.StartTime().In(loc).Format(headerTimeLayout),
		rep.Window.EndTime().In(loc).Format(headerTimeLayout))
	if rep.Overview != nil {
		fmt.Fprintf(&b, "Window total: %s over %s flows.\n\n",
			FormatGB(rep.Overview.TotalBytes), FormatCount(rep.Overview.FlowCount))
	}

	if len(rep.HighVolumeFlows) > 0 {
		fmt.Fprintf(&b, "### High-volume flows (>= %s)\n\n", FormatMB(rep.Thresholds.HighVolumeBytes))
		b.WriteString("| start | source | destination | protocol | bytes |\n|---|---|---|---|---|\n")
		for _, f := range rep.HighVolumeFlows {
			fmt.Fprintf(&b, "| %s | %s | %s:%d | %d | %s |\n",
				f.StartTime().In(loc).Format(flowTimeLayout), f.SrcAddr, f.DstAddr, f.DstPort, f.Protocol, FormatMB(f.Bytes))
		}
		b.WriteString("\n")
	}

	if len(rep.HighConnectionSources) > 0 {
		fmt.Fprintf(&b, "### High-connection sources (>= %s flows)\n\n", FormatCount(rep.Thresholds.HighConnectionMinFlows))
		b.WriteString("| source | flows | destinations | bytes |\n|---|---|---|---|\n")
		for _, s := range rep.HighConnectionSources {
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", s.Addr, FormatCount(s.Flows), s.Destinations, FormatMB(s.Bytes))
		}
		b.WriteString("\n")
	}

	if len(rep.ScanSources) > 0 {
		b.WriteString("### Suspected scanners\n\n")
		b.WriteString("| source | flows | destinations | avg per flow |\n|---|---|---|---|\n")
		for _, s := range rep.ScanSources {
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", s.Addr, FormatCount(s.Flows), s.Destinations, FormatKB(s.AvgBytes))
		}
		b.WriteString("\n")
	}

	if !rep.HasAnomalies() {
		b.WriteString("No anomalies found.\n\n")
	}

	if len(rep.Failures) > 0 {
		b.WriteString("### Failed sections\n\n")
		for _, f := range rep.Failures {
			fmt.Fprintf(&b, "- `%s`: %v\n", f.Section, f.Err)
		}
	}
	return b.String()
}
