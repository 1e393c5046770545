package analysis

import (
	"sort"
	"sync"
	"time"

	"netsentry/internal/models"
)

// IPStat holds stats for a single IP.
type IPStat struct {
	IP    string
	Bytes int
}

// ProtocolStat holds stats for a single protocol.
type ProtocolStat struct {
	Protocol string
	Count    int64
}

// DomainEntry represents a captured domain name with metadata.
type DomainEntry struct {
	Hostname  string
	Timestamp time.Time
	Source    string // "SNI" or "DNS"
}

// Totals is a point-in-time summary of everything counted so far.
type Totals struct {
	Packets int64
	Bytes   int64
	First   time.Time
	Last    time.Time
}

// Duration is the capture time spanned by the counted packets.
func (t Totals) Duration() time.Duration {
	if t.First.IsZero() {
		return 0
	}
	return t.Last.Sub(t.First)
}

// TrafficStats tracks network statistics. One goroutine feeds it while
// others read.
type TrafficStats struct {
	mu             sync.Mutex
	totals         Totals
	windowBytes    int64
	windowPackets  int64
	lastTick       time.Time
	ipBytes        map[string]int
	protocolCounts map[string]int64

	domainLog    []DomainEntry
	maxDomainLog int
}

// NewTrafficStats creates a new TrafficStats instance.
func NewTrafficStats() *TrafficStats {
	return &TrafficStats{
		lastTick:       time.Now(),
		ipBytes:        make(map[string]int),
		protocolCounts: make(map[string]int64),
		maxDomainLog:   50, // Keep last 50 domain entries
	}
}

// ProcessPacket updates stats with a new packet.
func (s *TrafficStats) ProcessPacket(pkt *models.PacketRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totals.Packets++
	s.totals.Bytes += int64(pkt.Length)
	if s.totals.First.IsZero() || pkt.Timestamp.Before(s.totals.First) {
		s.totals.First = pkt.Timestamp
	}
	if pkt.Timestamp.After(s.totals.Last) {
		s.totals.Last = pkt.Timestamp
	}
	s.windowBytes += int64(pkt.Length)
	s.windowPackets++

	// Top talkers by source IP
	if pkt.SrcIP != "" {
		s.ipBytes[pkt.SrcIP] += pkt.Length
	}

	proto := pkt.Protocol
	if proto == "" {
		proto = "OTHER"
	}
	s.protocolCounts[proto]++

	switch {
	case pkt.TLSHello != nil && pkt.TLSHello.ServerName != "":
		s.logDomain(pkt.TLSHello.ServerName, "SNI", pkt.Timestamp)
	case pkt.DNSQuery != "" && !pkt.DNSResponse:
		s.logDomain(pkt.DNSQuery, "DNS", pkt.Timestamp)
	}
}

// must be called with mu held
func (s *TrafficStats) logDomain(host, source string, ts time.Time) {
	s.domainLog = append(s.domainLog, DomainEntry{Hostname: host, Timestamp: ts, Source: source})
	if len(s.domainLog) > s.maxDomainLog {
		s.domainLog = s.domainLog[len(s.domainLog)-s.maxDomainLog:]
	}
}

// GetRates returns the bandwidth (bps) and packet rate (pps) since the last call.
func (s *TrafficStats) GetRates() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration := now.Sub(s.lastTick).Seconds()
	if duration == 0 {
		return 0, 0
	}

	bps := (float64(s.windowBytes) * 8) / duration
	pps := float64(s.windowPackets) / duration

	s.windowBytes = 0
	s.windowPackets = 0
	s.lastTick = now

	return bps, pps
}

// Totals returns the cumulative packet and byte counts.
func (s *TrafficStats) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// GetTopTalkers returns the top N IPs by volume.
func (s *TrafficStats) GetTopTalkers(limit int) []IPStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]IPStat, 0, len(s.ipBytes))
	for ip, bytes := range s.ipBytes {
		stats = append(stats, IPStat{IP: ip, Bytes: bytes})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Bytes != stats[j].Bytes {
			return stats[i].Bytes > stats[j].Bytes
		}
		return stats[i].IP < stats[j].IP
	})

	if limit > 0 && len(stats) > limit {
		return stats[:limit]
	}
	return stats
}

// GetProtocolStats returns the protocol distribution.
func (s *TrafficStats) GetProtocolStats() []ProtocolStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]ProtocolStat, 0, len(s.protocolCounts))
	for proto, count := range s.protocolCounts {
		stats = append(stats, ProtocolStat{Protocol: proto, Count: count})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Protocol < stats[j].Protocol
	})

	return stats
}

// GetDomainLog returns the recent domain log entries.
func (s *TrafficStats) GetDomainLog() []DomainEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]DomainEntry, len(s.domainLog))
	copy(result, s.domainLog)
	return result
}
