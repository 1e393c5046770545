package detect

import (
	"fmt"

	"github.com/miekg/dns"

	"netsentry/internal/models"
)

// SYNFlood counts connection-opening segments per source and fires on
// every such segment once a source is past the threshold.
type SYNFlood struct {
	base
	threshold int
	counts    map[string]int
}

func NewSYNFlood(threshold int) *SYNFlood {
	return &SYNFlood{
		base:      base{NameSYNFlood, models.CategoryAnomaly, models.SeverityCritical},
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

func (d *SYNFlood) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if !pkt.HasLayer(models.LayerTCP) || !pkt.Layers.HasIP() || !pkt.TCPFlags.SYNOnly() {
		return nil
	}
	d.counts[pkt.SrcIP]++
	n := d.counts[pkt.SrcIP]
	if n <= d.threshold {
		return nil
	}
	return d.event(pkt, pkt.SrcIP, fmt.Sprintf("%d SYN packets without ACK (threshold %d)", n, d.threshold))
}

func (d *SYNFlood) Reset() { d.counts = make(map[string]int) }

// Count returns the SYN count recorded for src.
func (d *SYNFlood) Count(src string) int { return d.counts[src] }

// PortScan tracks the distinct TCP destination ports each source touched.
// It fires only for a packet that adds a new port past the threshold.
type PortScan struct {
	base
	threshold int
	ports     map[string]map[int]struct{}
}

func NewPortScan(threshold int) *PortScan {
	return &PortScan{
		base:      base{NamePortScan, models.CategoryAnomaly, models.SeverityWarning},
		threshold: threshold,
		ports:     make(map[string]map[int]struct{}),
	}
}

func (d *PortScan) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if !pkt.HasLayer(models.LayerTCP) || !pkt.Layers.HasIP() {
		return nil
	}
	seen, ok := d.ports[pkt.SrcIP]
	if !ok {
		seen = make(map[int]struct{})
		d.ports[pkt.SrcIP] = seen
	}
	if _, dup := seen[pkt.DstPort]; dup {
		return nil
	}
	seen[pkt.DstPort] = struct{}{}
	if len(seen) <= d.threshold {
		return nil
	}
	return d.event(pkt, pkt.SrcIP, fmt.Sprintf("%d distinct destination ports (threshold %d), latest %d",
		len(seen), d.threshold, pkt.DstPort))
}

func (d *PortScan) Reset() { d.ports = make(map[string]map[int]struct{}) }

// Ports returns how many distinct destination ports src has touched.
func (d *PortScan) Ports(src string) int { return len(d.ports[src]) }

// DNSTunneling flags queries that are both deeply nested and long.
type DNSTunneling struct {
	base
	minLabels int
	minLength int
	flagged   []string
}

func NewDNSTunneling(minSubdomains, minLength int) *DNSTunneling {
	return &DNSTunneling{
		base:      base{NameDNSTunneling, models.CategoryAnomaly, models.SeverityWarning},
		minLabels: minSubdomains,
		minLength: minLength,
	}
}

func (d *DNSTunneling) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	// an empty query name means decode rejected it
	if !pkt.HasLayer(models.LayerDNS) || pkt.DNSResponse || pkt.DNSQuery == "" {
		return nil
	}
	q := pkt.DNSQuery
	// Both bounds are measured on the fully qualified name, so the empty
	// root label and the trailing dot count.
	fqdn := dns.Fqdn(q)
	labels := dns.CountLabel(fqdn) + 1
	if labels <= d.minLabels || len(fqdn) <= d.minLength {
		return nil
	}
	d.flagged = append(d.flagged, q)
	return d.event(pkt, q, fmt.Sprintf("query with %d labels and %d characters from %s", labels, len(fqdn), pkt.SrcIP))
}

func (d *DNSTunneling) Reset() { d.flagged = nil }

// Flagged returns the flagged query names in arrival order.
func (d *DNSTunneling) Flagged() []string {
	return append([]string(nil), d.flagged...)
}

const arpOpReply = 2

// ARPSpoof watches ARP replies for an IP that moves to a MAC it was not
// previously bound to. The table always holds the latest MAC per IP.
type ARPSpoof struct {
	base
	table map[string]string
	seen  map[string]map[string]struct{}
}

func NewARPSpoof() *ARPSpoof {
	d := &ARPSpoof{base: base{NameARPSpoof, models.CategoryAnomaly, models.SeverityCritical}}
	d.Reset()
	return d
}

func (d *ARPSpoof) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if !pkt.HasLayer(models.LayerARP) || pkt.ARPOp != arpOpReply || pkt.ARPSenderIP == "" {
		return nil
	}
	ip, mac := pkt.ARPSenderIP, pkt.ARPSenderMAC

	prev, known := d.table[ip]
	d.table[ip] = mac
	macs, ok := d.seen[ip]
	if !ok {
		macs = make(map[string]struct{})
		d.seen[ip] = macs
	}
	_, repeated := macs[mac]
	macs[mac] = struct{}{}

	if !known || repeated {
		return nil
	}
	return d.event(pkt, ip, fmt.Sprintf("%s moved from %s to %s", ip, prev, mac))
}

func (d *ARPSpoof) Reset() {
	d.table = make(map[string]string)
	d.seen = make(map[string]map[string]struct{})
}

// MAC returns the latest MAC recorded for ip.
func (d *ARPSpoof) MAC(ip string) (string, bool) {
	mac, ok := d.table[ip]
	return mac, ok
}
