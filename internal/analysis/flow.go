package analysis

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"netsentry/internal/models"
)

// ProtoOther keys every IP flow that is neither TCP nor UDP.
const ProtoOther = "OTHER"

// FlowKey identifies one direction of a conversation. A→B and B→A are
// different keys.
type FlowKey struct {
	SrcIP   string
	DstIP   string
	SrcPort int
	DstPort int
	Proto   string
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d", k.Proto, k.SrcIP, k.SrcPort, k.DstIP, k.DstPort)
}

// Flow accumulates the packets seen for one FlowKey.
type Flow struct {
	Key        FlowKey
	Timestamps []time.Time // in arrival order
	Packets    int
	Bytes      int64
}

// FirstSeen returns the timestamp of the first packet.
func (f Flow) FirstSeen() time.Time {
	if len(f.Timestamps) == 0 {
		return time.Time{}
	}
	return f.Timestamps[0]
}

// LastSeen returns the timestamp of the latest packet.
func (f Flow) LastSeen() time.Time {
	if len(f.Timestamps) == 0 {
		return time.Time{}
	}
	return f.Timestamps[len(f.Timestamps)-1]
}

// Duration is the time between first and last packet.
func (f Flow) Duration() time.Duration {
	return f.LastSeen().Sub(f.FirstSeen())
}

// FlowAggregator groups IP packets into directional flows.
type FlowAggregator struct {
	mu    sync.RWMutex
	flows map[FlowKey]*Flow
	order []FlowKey // creation order
}

func NewFlowAggregator() *FlowAggregator {
	return &FlowAggregator{flows: make(map[FlowKey]*Flow)}
}

// Process adds pkt to its flow, creating the flow if needed. Packets
// without an IP layer are ignored.
func (a *FlowAggregator) Process(pkt *models.PacketRecord) {
	if !pkt.Layers.HasIP() {
		return
	}
	key := FlowKey{SrcIP: pkt.SrcIP, DstIP: pkt.DstIP, Proto: ProtoOther}
	if pkt.HasLayer(models.LayerTCP) || pkt.HasLayer(models.LayerUDP) {
		key.Proto = pkt.Protocol
		key.SrcPort = pkt.SrcPort
		key.DstPort = pkt.DstPort
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, ok := a.flows[key]
	if !ok {
		f = &Flow{Key: key}
		a.flows[key] = f
		a.order = append(a.order, key)
	}
	f.Timestamps = append(f.Timestamps, pkt.Timestamp)
	f.Packets++
	f.Bytes += int64(pkt.Length)
}

// Snapshot returns deep copies of all flows in creation order.
func (a *FlowAggregator) Snapshot() []Flow {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Flow, 0, len(a.order))
	for _, k := range a.order {
		f := a.flows[k]
		cp := *f
		cp.Timestamps = append([]time.Time(nil), f.Timestamps...)
		out = append(out, cp)
	}
	return out
}

// Top returns copies of the n flows with the most bytes, ties broken by
// creation order.
func (a *FlowAggregator) Top(n int) []Flow {
	flows := a.Snapshot()
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].Bytes > flows[j].Bytes })
	if n > 0 && len(flows) > n {
		flows = flows[:n]
	}
	return flows
}

// Len returns the number of flows.
func (a *FlowAggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.flows)
}
