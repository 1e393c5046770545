// Package decode turns captured frames into models.PacketRecord values.
//
// Extraction is best effort: a layer that is missing, truncated or
// undecodable simply leaves its fields unset. Nothing here returns an error.
package decode

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"

	"netsentry/internal/models"
)

// FromFrame decodes raw frame bytes captured on a link of the given type.
func FromFrame(data []byte, ci gopacket.CaptureInfo, link layers.LinkType) models.PacketRecord {
	pkt := gopacket.NewPacket(data, link, gopacket.Default)
	md := pkt.Metadata()
	md.CaptureInfo = ci
	return FromPacket(pkt)
}

// FromPacket builds a record from an already decoded gopacket.Packet.
func FromPacket(pkt gopacket.Packet) models.PacketRecord {
	rec := models.PacketRecord{
		Protocol: "OTHER",
		Frame:    pkt.Data(),
	}

	ci := pkt.Metadata().CaptureInfo
	rec.Timestamp = ci.Timestamp
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Length = ci.Length
	if rec.Length == 0 {
		rec.Length = len(rec.Frame)
	}

	if l := pkt.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		rec.SrcMAC = eth.SrcMAC.String()
	}

	if l := pkt.Layer(layers.LayerTypeARP); l != nil {
		decodeARP(&rec, l.(*layers.ARP))
	}

	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		rec.Layers = rec.Layers.Add(models.LayerIPv4)
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
	} else if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		rec.Layers = rec.Layers.Add(models.LayerIPv6)
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
	}

	if pkt.Layer(layers.LayerTypeICMPv4) != nil || pkt.Layer(layers.LayerTypeICMPv6) != nil {
		rec.Protocol = "ICMP"
	}

	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		rec.Layers = rec.Layers.Add(models.LayerTCP)
		rec.Protocol = "TCP"
		rec.SrcPort = int(tcp.SrcPort)
		rec.DstPort = int(tcp.DstPort)
		rec.TCPFlags = models.TCPFlags{
			SYN: tcp.SYN, ACK: tcp.ACK, FIN: tcp.FIN,
			RST: tcp.RST, PSH: tcp.PSH, URG: tcp.URG,
		}
		rec.Payload = tcp.Payload
	} else if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		rec.Layers = rec.Layers.Add(models.LayerUDP)
		rec.Protocol = "UDP"
		rec.SrcPort = int(udp.SrcPort)
		rec.DstPort = int(udp.DstPort)
		rec.Payload = udp.Payload
	}

	decodeDNS(&rec, pkt)

	if rec.HasLayer(models.LayerTCP) {
		if hello := ParseClientHello(rec.Payload); hello != nil {
			rec.Layers = rec.Layers.Add(models.LayerTLS)
			rec.TLSHello = hello
		}
	}

	if hasHTTPMarker(rec.Payload) {
		rec.Layers = rec.Layers.Add(models.LayerHTTP)
	}

	return rec
}

func decodeARP(rec *models.PacketRecord, arp *layers.ARP) {
	rec.Layers = rec.Layers.Add(models.LayerARP)
	rec.Protocol = "ARP"
	rec.ARPOp = arp.Operation
	if len(arp.SourceProtAddress) == 4 || len(arp.SourceProtAddress) == 16 {
		rec.ARPSenderIP = ipString(arp.SourceProtAddress)
	}
	if len(arp.SourceHwAddress) > 0 {
		rec.ARPSenderMAC = macString(arp.SourceHwAddress)
	}
}

func decodeDNS(rec *models.PacketRecord, pkt gopacket.Packet) {
	if l := pkt.Layer(layers.LayerTypeDNS); l != nil {
		msg := l.(*layers.DNS)
		rec.Layers = rec.Layers.Add(models.LayerDNS)
		rec.DNSResponse = msg.QR
		if len(msg.Questions) > 0 {
			rec.DNSQuery = cleanQueryName(string(msg.Questions[0].Name))
		}
		return
	}

	if !isDNSPort(rec.SrcPort) && !isDNSPort(rec.DstPort) || len(rec.Payload) == 0 {
		return
	}

	payload := rec.Payload
	if rec.HasLayer(models.LayerTCP) {
		// DNS over TCP carries a two byte length prefix
		if len(payload) < 2 || int(binary.BigEndian.Uint16(payload)) != len(payload)-2 {
			return
		}
		payload = payload[2:]
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return
	}
	rec.Layers = rec.Layers.Add(models.LayerDNS)
	rec.DNSResponse = msg.Response
	if len(msg.Question) > 0 {
		rec.DNSQuery = cleanQueryName(msg.Question[0].Name)
	}
}

func isDNSPort(port int) bool {
	return port == 53 || port == 5353
}

// cleanQueryName returns the query without its trailing root dot, or ""
// when the name cannot be treated as a domain name.
func cleanQueryName(name string) string {
	if name == "" || !utf8.ValidString(name) {
		return ""
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return ""
	}
	return strings.TrimSuffix(name, ".")
}

var httpMethods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("PUT "), []byte("HEAD "),
	[]byte("DELETE "), []byte("OPTIONS "), []byte("PATCH "), []byte("CONNECT "),
}

func hasHTTPMarker(payload []byte) bool {
	if len(payload) < 4 {
		return false
	}
	if bytes.HasPrefix(payload, []byte("HTTP/1.")) {
		return true
	}
	for _, m := range httpMethods {
		if bytes.HasPrefix(payload, m) {
			return bytes.Contains(payload, []byte(" HTTP/1."))
		}
	}
	return false
}
