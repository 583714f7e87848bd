// Package flowbuilder folds captured packets into flow records.
package flowbuilder

import (
	"fmt"
	"sort"
	"time"

	"FlowRadar/internal/model"
)

type flowKey struct {
	src, dst         [4]byte
	srcPort, dstPort uint16
	protocol         uint8
}

func keyOf(t model.FiveTuple) (flowKey, error) {
	src, dst := t.SrcIP.To4(), t.DstIP.To4()
	if src == nil || dst == nil {
		return flowKey{}, fmt.Errorf("five tuple %v -> %v is not IPv4", t.SrcIP, t.DstIP)
	}
	k := flowKey{srcPort: t.SrcPort, dstPort: t.DstPort, protocol: t.Protocol}
	copy(k.src[:], src)
	copy(k.dst[:], dst)
	return k, nil
}

type flow struct {
	record model.FlowRecord
	last   time.Time
}

// Builder aggregates packets into unidirectional flows keyed by 5-tuple. A flow
// idle for longer than the idle timeout is closed and the next packet of the same
// tuple starts a new one; a zero timeout keeps one flow per tuple.
type Builder struct {
	idleTimeout time.Duration
	active      map[flowKey]*flow
	done        []model.FlowRecord
}

// NewBuilder creates a Builder.
func NewBuilder(idleTimeout time.Duration) *Builder {
	return &Builder{idleTimeout: idleTimeout, active: make(map[flowKey]*flow)}
}

// Add accounts one packet.
func (b *Builder) Add(p *model.PacketInfo) error {
	key, err := keyOf(p.FiveTuple)
	if err != nil {
		return err
	}

	f, ok := b.active[key]
	if ok && b.idleTimeout > 0 && p.Timestamp.Sub(f.last) > b.idleTimeout {
		b.done = append(b.done, f.record)
		ok = false
	}
	if !ok {
		f = &flow{record: model.FlowRecord{
			SrcAddr:     p.FiveTuple.SrcIP.String(),
			DstAddr:     p.FiveTuple.DstIP.String(),
			DstPort:     p.FiveTuple.DstPort,
			Protocol:    p.FiveTuple.Protocol,
			StartMillis: p.Timestamp.UnixMilli(),
		}}
		b.active[key] = f
	}

	f.record.Bytes += uint64(p.Length)
	f.record.Packets++
	if p.Timestamp.After(f.last) {
		f.last = p.Timestamp
	}
	if ms := p.Timestamp.UnixMilli(); ms < f.record.StartMillis {
		f.record.StartMillis = ms
	}
	return nil
}

// Records returns every flow, closed and active, ordered by start time then
// source and destination address.
func (b *Builder) Records() []model.FlowRecord {
	out := make([]model.FlowRecord, 0, len(b.done)+len(b.active))
	out = append(out, b.done...)
	for _, f := range b.active {
		out = append(out, f.record)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.StartMillis != c.StartMillis {
			return a.StartMillis < c.StartMillis
		}
		if a.SrcAddr != c.SrcAddr {
			return a.SrcAddr < c.SrcAddr
		}
		if a.DstAddr != c.DstAddr {
			return a.DstAddr < c.DstAddr
		}
		if a.DstPort != c.DstPort {
			return a.DstPort < c.DstPort
		}
		if a.Protocol != c.Protocol {
			return a.Protocol < c.Protocol
		}
		return a.Bytes > c.Bytes
	})
	return out
}

// Build folds all packets with the given idle timeout.
func Build(packets []*model.PacketInfo, idleTimeout time.Duration) ([]model.FlowRecord, error) {
	b := NewBuilder(idleTimeout)
	for _, p := range packets {
		if err := b.Add(p); err != nil {
			return nil, err
		}
	}
	return b.Records(), nil
}
