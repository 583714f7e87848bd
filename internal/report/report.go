package report

import (
	"encoding/json"
	"errors"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"
	"FlowRadar/internal/query"
)

// Section identifies one part of a traffic report.
type Section string

const (
	SectionOverview        Section = "overview"
	SectionTopSources      Section = "top_sources"
	SectionTopDestinations Section = "top_destinations"
	SectionHighVolume      Section = "high_volume_flows"
	SectionHighConnection  Section = "high_connection_sources"
	SectionScan            Section = "scan_sources"
	SectionProtocols       Section = "protocols"
)

// Sections lists every section in report order.
var Sections = []Section{
	SectionOverview,
	SectionTopSources,
	SectionTopDestinations,
	SectionHighVolume,
	SectionHighConnection,
	SectionScan,
	SectionProtocols,
}

func (s Section) order() int {
	for i, v := range Sections {
		if v == s {
			return i
		}
	}
	return len(Sections)
}

// ErrOverviewUnavailable is the cause recorded on the protocol section when the
// overview it takes its denominator from has failed.
var ErrOverviewUnavailable = errors.New("volume overview unavailable")

// SectionError records why a section could not be produced.
type SectionError struct {
	Section Section
	Err     error
}

func (e *SectionError) Error() string {
	return string(e.Section) + ": " + e.Err.Error()
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

// Detail returns the index engine diagnostic attached to the failure, if any.
func (e *SectionError) Detail() string {
	var qe *query.QueryError
	if errors.As(e.Err, &qe) {
		return qe.Detail
	}
	return ""
}

func (e *SectionError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Section Section `json:"section"`
		Error   string  `json:"error"`
		Detail  string  `json:"detail,omitempty"`
	}{e.Section, e.Err.Error(), e.Detail()})
}

// Overview holds the window totals. FlowCount counts records carrying a source
// address, which is every record: it is a document count, not distinct sources.
type Overview struct {
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	FlowCount    int64  `json:"flow_count"`
}

// Talker is one row of a top sources or top destinations ranking.
type Talker struct {
	Addr    string `json:"addr"`
	Bytes   uint64 `json:"bytes"`
	Packets uint64 `json:"packets"`
	Flows   int64  `json:"flows"`
}

// ConnectionSource is a source with an unusually high number of flows.
type ConnectionSource struct {
	Addr         string `json:"addr"`
	Flows        int64  `json:"flows"`
	Bytes        uint64 `json:"bytes"`
	Destinations int64  `json:"destinations"`
}

// ScanSource is a source whose flows look like a scan: many small flows fanned
// out over many destinations.
type ScanSource struct {
	Addr         string  `json:"addr"`
	Flows        int64   `json:"flows"`
	Destinations int64   `json:"destinations"`
	AvgBytes     float64 `json:"avg_bytes"`
	Bytes        uint64  `json:"bytes"`
}

// ProtocolShare is the byte volume of one protocol and its share of the window total.
type ProtocolShare struct {
	Protocol string  `json:"protocol"`
	Bytes    uint64  `json:"bytes"`
	Percent  float64 `json:"percent"`
}

// Report is the structured result of one report run.
type Report struct {
	GeneratedAt           time.Time          `json:"generated_at"`
	Window                model.TimeWindow   `json:"window"`
	Indices               []string           `json:"indices"`
	Thresholds            config.Thresholds  `json:"thresholds"`
	Limits                config.Limits      `json:"limits"`
	Overview              *Overview          `json:"overview,omitempty"`
	TopSources            []Talker           `json:"top_sources"`
	TopDestinations       []Talker           `json:"top_destinations"`
	HighVolumeFlows       []model.FlowRecord `json:"high_volume_flows"`
	HighConnectionSources []ConnectionSource `json:"high_connection_sources"`
	ScanSources           []ScanSource       `json:"scan_sources"`
	Protocols             []ProtocolShare    `json:"protocols"`
	Failures              []*SectionError    `json:"failures,omitempty"`
}

// Failure returns the error recorded for a section, or nil when it succeeded.
func (r *Report) Failure(s Section) *SectionError {
	for _, f := range r.Failures {
		if f.Section == s {
			return f
		}
	}
	return nil
}

// Err joins all section failures; nil when every section succeeded.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// AnomalyCount is the number of findings across the three detectors.
func (r *Report) AnomalyCount() int {
	return len(r.HighVolumeFlows) + len(r.HighConnectionSources) + len(r.ScanSources)
}

// HasAnomalies reports whether any detector fired.
func (r *Report) HasAnomalies() bool {
	return r.AnomalyCount() > 0
}
