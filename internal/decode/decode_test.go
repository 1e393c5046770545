package decode

import (
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsentry/internal/models"
	"netsentry/internal/testpkt"
)

var ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func decodeFrame(frame []byte) models.PacketRecord {
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}
	return FromFrame(frame, ci, layers.LinkTypeEthernet)
}

func TestTCPSyn(t *testing.T) {
	rec := decodeFrame(testpkt.TCP{
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
		SrcPort: 51000, DstPort: 80, Flags: "S",
	}.Bytes())

	assert.Equal(t, ts, rec.Timestamp)
	assert.Equal(t, "TCP", rec.Protocol)
	assert.True(t, rec.HasLayer(models.LayerIPv4))
	assert.True(t, rec.HasLayer(models.LayerTCP))
	assert.False(t, rec.HasLayer(models.LayerUDP))
	assert.Equal(t, "10.0.0.1", rec.SrcIP)
	assert.Equal(t, "10.0.0.2", rec.DstIP)
	assert.Equal(t, 51000, rec.SrcPort)
	assert.Equal(t, 80, rec.DstPort)
	assert.True(t, rec.TCPFlags.SYNOnly())
	assert.Equal(t, testpkt.DefaultSrcMAC, rec.SrcMAC)
	assert.Greater(t, rec.Length, 0)
}

func TestDNSQuery(t *testing.T) {
	rec := decodeFrame(testpkt.DNSQuery("10.0.0.5", "8.8.8.8", "a.b.c.example.com"))

	assert.Equal(t, "UDP", rec.Protocol)
	assert.True(t, rec.HasLayer(models.LayerDNS))
	assert.False(t, rec.DNSResponse)
	assert.Equal(t, "a.b.c.example.com", rec.DNSQuery)
}

func TestDNSFallbackOnMDNSPort(t *testing.T) {
	// build a DNS payload and carry it over 5353 so the miekg path decodes it
	frame := testpkt.DNSQuery("10.0.0.5", "224.0.0.251", "printer.local")
	full := decodeFrame(frame)
	require.True(t, full.HasLayer(models.LayerDNS))

	rec := decodeFrame(testpkt.UDP{
		SrcIP: "10.0.0.5", DstIP: "224.0.0.251",
		SrcPort: 5353, DstPort: 5353, Payload: full.Payload,
	}.Bytes())

	assert.True(t, rec.HasLayer(models.LayerDNS))
	assert.Equal(t, "printer.local", rec.DNSQuery)
}

func TestARPReply(t *testing.T) {
	rec := decodeFrame(testpkt.ARPReply("192.168.1.1", "aa:bb:cc:dd:ee:ff"))

	assert.Equal(t, "ARP", rec.Protocol)
	assert.True(t, rec.HasLayer(models.LayerARP))
	assert.False(t, rec.Layers.HasIP())
	assert.Equal(t, uint16(2), rec.ARPOp)
	assert.Equal(t, "192.168.1.1", rec.ARPSenderIP)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", rec.ARPSenderMAC)
}

func TestTLSClientHello(t *testing.T) {
	hello := testpkt.ClientHello(0x0303, []uint16{0x1301, 0xc02f}, []uint16{0, 10, 11}, "example.org")
	rec := decodeFrame(testpkt.TCP{
		SrcIP: "10.0.0.1", DstIP: "93.184.216.34",
		SrcPort: 50000, DstPort: 443, Flags: "PA", Payload: hello,
	}.Bytes())

	require.True(t, rec.HasLayer(models.LayerTLS))
	require.NotNil(t, rec.TLSHello)
	assert.Equal(t, uint16(0x0303), rec.TLSHello.Version)
	assert.Equal(t, []uint16{0x1301, 0xc02f}, rec.TLSHello.CipherSuites)
	assert.Equal(t, []uint16{0, 10, 11}, rec.TLSHello.Extensions)
	assert.Equal(t, "example.org", rec.TLSHello.ServerName)
}

func TestParseClientHelloRejectsGarbage(t *testing.T) {
	assert.Nil(t, ParseClientHello(nil))
	assert.Nil(t, ParseClientHello([]byte("GET / HTTP/1.1\r\n")))

	hello := testpkt.ClientHello(0x0303, []uint16{0x1301}, nil, "")
	assert.Nil(t, ParseClientHello(hello[:len(hello)-3]), "truncated record")
	assert.NotNil(t, ParseClientHello(hello))
}

func TestHTTPMarker(t *testing.T) {
	req := []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\nUser-Agent: curl/8.0\r\n\r\n")
	rec := decodeFrame(testpkt.TCP{
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
		SrcPort: 50000, DstPort: 8080, Flags: "PA", Payload: req,
	}.Bytes())

	assert.True(t, rec.HasLayer(models.LayerHTTP))
	assert.Equal(t, req, rec.Payload)

	assert.True(t, hasHTTPMarker([]byte("HTTP/1.1 200 OK\r\n")))
	assert.False(t, hasHTTPMarker([]byte("GET nothing")))
}

func TestMalformedFrameNeverFails(t *testing.T) {
	frame := testpkt.TCP{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 2, Flags: "S"}.Bytes()

	for _, cut := range []int{0, 5, 14, 20, 30} {
		rec := decodeFrame(frame[:cut])
		assert.Equal(t, ts, rec.Timestamp)
		assert.False(t, rec.HasLayer(models.LayerTCP), "cut at %d", cut)
	}
}

func TestCleanQueryName(t *testing.T) {
	assert.Equal(t, "example.com", cleanQueryName("example.com."))
	assert.Equal(t, "", cleanQueryName(""))
	assert.Equal(t, "", cleanQueryName("bad\xffname"))
}
