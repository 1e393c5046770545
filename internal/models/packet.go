package models

import (
	"strings"
	"time"
)

// Layer is a protocol layer that may be present in a captured packet.
type Layer uint16

const (
	LayerARP Layer = 1 << iota
	LayerIPv4
	LayerIPv6
	LayerTCP
	LayerUDP
	LayerDNS
	LayerTLS
	LayerHTTP
)

var layerNames = []struct {
	layer Layer
	name  string
}{
	{LayerARP, "ARP"},
	{LayerIPv4, "IP"},
	{LayerIPv6, "IPv6"},
	{LayerTCP, "TCP"},
	{LayerUDP, "UDP"},
	{LayerDNS, "DNS"},
	{LayerTLS, "TLS"},
	{LayerHTTP, "HTTP"},
}

// LayerSet is the set of layers present in a packet.
type LayerSet uint16

// Has reports whether l is in the set.
func (s LayerSet) Has(l Layer) bool {
	return s&LayerSet(l) != 0
}

// Add returns the set with l included.
func (s LayerSet) Add(l Layer) LayerSet {
	return s | LayerSet(l)
}

// HasIP reports whether either an IPv4 or IPv6 layer is present.
func (s LayerSet) HasIP() bool {
	return s.Has(LayerIPv4) || s.Has(LayerIPv6)
}

func (s LayerSet) String() string {
	var names []string
	for _, ln := range layerNames {
		if s.Has(ln.layer) {
			names = append(names, ln.name)
		}
	}
	return strings.Join(names, ",")
}

// TCPFlags holds the control bits of a TCP header.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
	PSH bool
	URG bool
}

// SYNOnly reports a connection-opening segment: SYN set, ACK clear.
func (f TCPFlags) SYNOnly() bool {
	return f.SYN && !f.ACK
}

// TLSClientHello is the subset of a ClientHello needed for fingerprinting.
// Lists keep the order in which the client sent them.
type TLSClientHello struct {
	Version      uint16
	CipherSuites []uint16
	Extensions   []uint16
	ServerName   string
}

// PacketRecord is the normalized view of one captured packet.
// Fields for layers that are absent are left at their zero value.
type PacketRecord struct {
	Timestamp time.Time
	Length    int
	Layers    LayerSet
	Protocol  string // TCP, UDP, ICMP, ARP or OTHER

	SrcMAC  string
	SrcIP   string
	DstIP   string
	SrcPort int
	DstPort int

	TCPFlags TCPFlags

	// ARP
	ARPOp        uint16
	ARPSenderIP  string
	ARPSenderMAC string

	// DNS
	DNSQuery    string
	DNSResponse bool

	TLSHello *TLSClientHello

	Payload []byte // application layer bytes
	Frame   []byte // full frame as captured
}

// HasLayer is shorthand for p.Layers.Has(l).
func (p *PacketRecord) HasLayer(l Layer) bool {
	return p.Layers.Has(l)
}

// Summary returns the compact form kept in the result store.
func (p *PacketRecord) Summary() PacketSummary {
	return PacketSummary{
		Timestamp: p.Timestamp,
		Length:    p.Length,
		Layers:    p.Layers.String(),
		Protocol:  p.Protocol,
		SrcIP:     p.SrcIP,
		DstIP:     p.DstIP,
		SrcPort:   p.SrcPort,
		DstPort:   p.DstPort,
		SrcMAC:    p.SrcMAC,
		DNSQuery:  p.DNSQuery,
	}
}

// PacketSummary is a retained, payload-free description of a packet.
type PacketSummary struct {
	Timestamp time.Time `json:"timestamp"`
	Length    int       `json:"length"`
	Layers    string    `json:"layers"`
	Protocol  string    `json:"protocol"`
	SrcIP     string    `json:"src_ip,omitempty"`
	DstIP     string    `json:"dst_ip,omitempty"`
	SrcPort   int       `json:"src_port,omitempty"`
	DstPort   int       `json:"dst_port,omitempty"`
	SrcMAC    string    `json:"src_mac,omitempty"`
	DNSQuery  string    `json:"dns_query,omitempty"`
}
