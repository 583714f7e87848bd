package model

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Flow record field names as stored in the flow index.
const (
	FieldSrcAddr   = "IPV4_SRC_ADDR"
	FieldDstAddr   = "IPV4_DST_ADDR"
	FieldDstPort   = "L4_DST_PORT"
	FieldProtocol  = "PROTOCOL"
	FieldBytes     = "IN_BYTES"
	FieldPackets   = "IN_PKTS"
	FieldStartTime = "FLOW_START_MILLISECONDS"
)

// FlowFields lists every field of a FlowRecord in display order.
var FlowFields = []string{
	FieldSrcAddr, FieldDstAddr, FieldDstPort, FieldProtocol,
	FieldBytes, FieldPackets, FieldStartTime,
}

// ErrInvalidWindow is returned when a window does not satisfy start < end.
var ErrInvalidWindow = errors.New("invalid time window")

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// PacketInfo holds the metadata extracted from a single packet.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
}

// FlowRecord is one logged connection as stored in the flow index.
type FlowRecord struct {
	SrcAddr     string `json:"IPV4_SRC_ADDR"`
	DstAddr     string `json:"IPV4_DST_ADDR"`
	DstPort     uint16 `json:"L4_DST_PORT"`
	Protocol    uint8  `json:"PROTOCOL"`
	Bytes       uint64 `json:"IN_BYTES"`
	Packets     uint64 `json:"IN_PKTS"`
	StartMillis int64  `json:"FLOW_START_MILLISECONDS"`
}

// StartTime returns the flow start as a time.Time.
func (r FlowRecord) StartTime() time.Time {
	return time.UnixMilli(r.StartMillis)
}

// TimeWindow is an inclusive [Start, End] range in epoch milliseconds.
type TimeWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewTimeWindow builds a window from two instants.
func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{Start: start.UnixMilli(), End: end.UnixMilli()}
}

// LastWindow returns the window of length d ending at now.
func LastWindow(now time.Time, d time.Duration) TimeWindow {
	return NewTimeWindow(now.Add(-d), now)
}

// Validate checks the start < end invariant.
func (w TimeWindow) Validate() error {
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %d is not before end %d", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// StartTime returns the window start.
func (w TimeWindow) StartTime() time.Time { return time.UnixMilli(w.Start) }

// EndTime returns the window end.
func (w TimeWindow) EndTime() time.Time { return time.UnixMilli(w.End) }

// Duration returns the length of the window.
func (w TimeWindow) Duration() time.Duration {
	return time.Duration(w.End-w.Start) * time.Millisecond
}
