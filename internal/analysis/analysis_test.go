package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsentry/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tcp(src, dst string, sport, dport, length int, ts time.Time) *models.PacketRecord {
	return &models.PacketRecord{
		Timestamp: ts,
		Length:    length,
		Layers:    models.LayerSet(0).Add(models.LayerIPv4).Add(models.LayerTCP),
		Protocol:  "TCP",
		SrcIP:     src,
		DstIP:     dst,
		SrcPort:   sport,
		DstPort:   dport,
	}
}

func TestFlowsAreDirectional(t *testing.T) {
	a := NewFlowAggregator()
	a.Process(tcp("10.0.0.1", "10.0.0.2", 5000, 80, 100, t0))
	a.Process(tcp("10.0.0.2", "10.0.0.1", 80, 5000, 1500, t0.Add(time.Millisecond)))
	a.Process(tcp("10.0.0.1", "10.0.0.2", 5000, 80, 60, t0.Add(2*time.Millisecond)))

	flows := a.Snapshot()
	require.Len(t, flows, 2)
	assert.Equal(t, 2, a.Len())

	out := flows[0]
	assert.Equal(t, FlowKey{"10.0.0.1", "10.0.0.2", 5000, 80, "TCP"}, out.Key)
	assert.Equal(t, 2, out.Packets)
	assert.Equal(t, int64(160), out.Bytes)
	assert.Equal(t, []time.Time{t0, t0.Add(2 * time.Millisecond)}, out.Timestamps)
	assert.Equal(t, 2*time.Millisecond, out.Duration())

	assert.Equal(t, int64(1500), flows[1].Bytes)
	assert.Equal(t, flows[1].Key, a.Top(1)[0].Key)
}

func TestFlowSnapshotIsACopy(t *testing.T) {
	a := NewFlowAggregator()
	a.Process(tcp("10.0.0.1", "10.0.0.2", 5000, 80, 100, t0))

	snap := a.Snapshot()
	snap[0].Timestamps[0] = time.Time{}
	a.Process(tcp("10.0.0.1", "10.0.0.2", 5000, 80, 100, t0.Add(time.Second)))

	assert.Equal(t, t0, a.Snapshot()[0].FirstSeen())
	assert.Len(t, snap[0].Timestamps, 1)
}

func TestFlowIgnoresNonIP(t *testing.T) {
	a := NewFlowAggregator()
	a.Process(&models.PacketRecord{Timestamp: t0, Layers: models.LayerSet(0).Add(models.LayerARP), Protocol: "ARP"})
	assert.Equal(t, 0, a.Len())

	icmp := &models.PacketRecord{
		Timestamp: t0,
		Layers:    models.LayerSet(0).Add(models.LayerIPv4),
		Protocol:  "ICMP",
		SrcIP:     "10.0.0.1",
		DstIP:     "10.0.0.2",
	}
	a.Process(icmp)
	require.Equal(t, 1, a.Len())
	key := a.Snapshot()[0].Key
	assert.Equal(t, ProtoOther, key.Proto, "non TCP/UDP flows are keyed OTHER")
	assert.Equal(t, 0, key.DstPort)
	assert.Equal(t, ProtoOther, FlowService(key))
}

func TestTrafficStats(t *testing.T) {
	s := NewTrafficStats()
	s.ProcessPacket(tcp("192.168.1.10", "1.1.1.1", 5000, 443, 500, t0))
	s.ProcessPacket(tcp("192.168.1.20", "1.1.1.1", 5001, 443, 200, t0.Add(time.Second)))
	s.ProcessPacket(&models.PacketRecord{
		Timestamp: t0.Add(2 * time.Second),
		Length:    80,
		Layers:    models.LayerSet(0).Add(models.LayerIPv4).Add(models.LayerUDP).Add(models.LayerDNS),
		Protocol:  "UDP",
		SrcIP:     "192.168.1.10",
		DNSQuery:  "example.com",
	})

	totals := s.Totals()
	assert.Equal(t, int64(3), totals.Packets)
	assert.Equal(t, int64(780), totals.Bytes)
	assert.Equal(t, 2*time.Second, totals.Duration())

	talkers := s.GetTopTalkers(1)
	require.Len(t, talkers, 1)
	assert.Equal(t, IPStat{IP: "192.168.1.10", Bytes: 580}, talkers[0])

	assert.Equal(t, []ProtocolStat{{"TCP", 2}, {"UDP", 1}}, s.GetProtocolStats())

	domains := s.GetDomainLog()
	require.Len(t, domains, 1)
	assert.Equal(t, "example.com", domains[0].Hostname)
	assert.Equal(t, "DNS", domains[0].Source)

	bps, pps := s.GetRates()
	assert.Greater(t, bps, 0.0)
	assert.Greater(t, pps, 0.0)
}

func TestFlowService(t *testing.T) {
	assert.Equal(t, "HTTPS", FlowService(FlowKey{SrcPort: 51000, DstPort: 443, Proto: "TCP"}))
	assert.Equal(t, "HTTPS", FlowService(FlowKey{SrcPort: 443, DstPort: 51000, Proto: "TCP"}))
	assert.Equal(t, "ICMP", FlowService(FlowKey{Proto: "ICMP"}))
	assert.Equal(t, "12345", GetServiceName(12345))
}
