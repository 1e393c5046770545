// Package testpkt builds synthetic Ethernet frames and capture files for
// tests.
package testpkt

import (
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/crypto/cryptobyte"
)

const (
	DefaultSrcMAC = "02:00:00:00:00:01"
	DefaultDstMAC = "02:00:00:00:00:02"
)

// TCP describes a TCP segment. Flags is any combination of S, A, F, R, P, U.
type TCP struct {
	SrcMAC  string
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
	Flags   string
	Payload []byte
}

func (f TCP) Bytes() []byte {
	ip := ipv4(f.SrcIP, f.DstIP, layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(f.SrcPort),
		DstPort: layers.TCPPort(f.DstPort),
		Seq:     1000,
		Window:  64240,
		SYN:     strings.Contains(f.Flags, "S"),
		ACK:     strings.Contains(f.Flags, "A"),
		FIN:     strings.Contains(f.Flags, "F"),
		RST:     strings.Contains(f.Flags, "R"),
		PSH:     strings.Contains(f.Flags, "P"),
		URG:     strings.Contains(f.Flags, "U"),
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(f.SrcMAC, layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(f.Payload))
}

// UDP describes a UDP datagram.
type UDP struct {
	SrcMAC  string
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

func (f UDP) Bytes() []byte {
	ip := ipv4(f.SrcIP, f.DstIP, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(f.SrcMAC, layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(f.Payload))
}

// DNSQuery returns a UDP frame to port 53 asking for an A record of name.
func DNSQuery(srcIP, dstIP, name string) []byte {
	ip := ipv4(srcIP, dstIP, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	dns := &layers.DNS{
		ID:      0x1234,
		RD:      true,
		QDCount: 1,
		Questions: []layers.DNSQuestion{{
			Name:  []byte(name),
			Type:  layers.DNSTypeA,
			Class: layers.DNSClassIN,
		}},
	}
	return serialize(ethernet("", layers.EthernetTypeIPv4), ip, udp, dns)
}

// ARPReply returns an ARP reply claiming senderIP is at senderMAC.
func ARPReply(senderIP, senderMAC string) []byte {
	mac := mustMAC(senderMAC)
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   mac,
		SourceProtAddress: net.ParseIP(senderIP).To4(),
		DstHwAddress:      mustMAC(DefaultDstMAC),
		DstProtAddress:    net.IPv4(192, 168, 1, 1).To4(),
	}
	return serialize(ethernet(senderMAC, layers.EthernetTypeARP), arp)
}

// ClientHello returns a TLS record holding a ClientHello with the given
// fields. A server_name extension (type 0) carries serverName.
func ClientHello(version uint16, ciphers, extensions []uint16, serverName string) []byte {
	var b cryptobyte.Builder
	b.AddUint8(0x16)
	b.AddUint16(0x0301)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(0x01)
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16(version)
			b.AddBytes(make([]byte, 32))
			b.AddUint8LengthPrefixed(func(*cryptobyte.Builder) {})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, c := range ciphers {
					b.AddUint16(c)
				}
			})
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddUint8(0) })
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, ext := range extensions {
					b.AddUint16(ext)
					b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
						if ext != 0 {
							return
						}
						b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
							b.AddUint8(0)
							b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
								b.AddBytes([]byte(serverName))
							})
						})
					})
				}
			})
		})
	})
	return b.BytesOrPanic()
}

// WritePcap writes frames to a new classic pcap file under t.TempDir,
// spacing their timestamps by step from start. It returns the file path.
func WritePcap(t testing.TB, frames [][]byte, start time.Time, step time.Duration) string {
	t.Helper()

	path := t.TempDir() + "/capture.pcap"
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create pcap: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("pcap header: %v", err)
	}
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * step),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			t.Fatalf("pcap packet %d: %v", i, err)
		}
	}
	return path
}

func ethernet(src string, typ layers.EthernetType) *layers.Ethernet {
	if src == "" {
		src = DefaultSrcMAC
	}
	return &layers.Ethernet{
		SrcMAC:       mustMAC(src),
		DstMAC:       mustMAC(DefaultDstMAC),
		EthernetType: typ,
	}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
