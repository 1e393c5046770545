package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsentry/internal/models"
)

func TestHelloHash(t *testing.T) {
	h := &models.TLSClientHello{
		Version:      0x0303,
		CipherSuites: []uint16{0x1301, 0xc02f},
		Extensions:   []uint16{0, 10, 11},
	}
	assert.Equal(t, "d5746ff73c0284b244022337f992bf10", HelloHash(h))
	assert.Equal(t, "087cbf3d9fec681eb41dcfe4dbd0f0ed", HelloHash(&models.TLSClientHello{Version: 0x0303}))
}

func TestTLSFingerprintEmitsEveryHello(t *testing.T) {
	d := NewTLSFingerprint()
	rec := &models.PacketRecord{
		Timestamp: t0,
		SrcIP:     "10.0.0.1",
		TLSHello:  &models.TLSClientHello{Version: 0x0303, ServerName: "example.org"},
	}

	for range 3 {
		ev := d.Detect(rec)
		require.NotNil(t, ev)
		assert.Equal(t, "087cbf3d9fec681eb41dcfe4dbd0f0ed", ev.Subject)
		assert.Contains(t, ev.Detail, "example.org")
	}
	assert.Len(t, d.Hashes(), 1)

	assert.Nil(t, d.Detect(&models.PacketRecord{Timestamp: t0}), "no handshake")
}

func TestUserAgent(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"GET / HTTP/1.1\r\nHost: a\r\nUser-Agent: curl/8.4.0\r\n\r\n", "curl/8.4.0"},
		{"GET / HTTP/1.1\r\nuser-agent:   Mozilla/5.0 (X11)  \r\n\r\n", "Mozilla/5.0 (X11)"},
		{"GET / HTTP/1.1\r\nHost: a\r\n\r\nUser-Agent: body\r\n", ""},
		{"HTTP/1.1 200 OK\r\nServer: nginx\r\n\r\n", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserAgent([]byte(tt.payload)), tt.payload)
	}
}

func TestHTTPFingerprint(t *testing.T) {
	d := NewHTTPFingerprint()
	rec := &models.PacketRecord{
		Timestamp: t0,
		Layers:    models.LayerSet(0).Add(models.LayerTCP).Add(models.LayerHTTP),
		SrcIP:     "10.0.0.1",
		Payload:   []byte("GET / HTTP/1.1\r\nUser-Agent: sqlmap/1.7\r\n\r\n"),
	}
	ev := d.Detect(rec)
	require.NotNil(t, ev)
	assert.Equal(t, "sqlmap/1.7", ev.Subject)
	assert.NotNil(t, d.Detect(rec), "emits every time")
	assert.Equal(t, []string{"sqlmap/1.7"}, d.Agents())

	rec.Layers = models.LayerSet(0).Add(models.LayerTCP)
	assert.Nil(t, d.Detect(rec), "no HTTP marker")
}

func TestVendorLongestPrefixFirst(t *testing.T) {
	assert.Equal(t, "Cisco Device", Vendor("00:1a:79:12:34:56"))
	assert.Equal(t, "TP-Link", Vendor("3C:5A:B4:00:00:01"))
	assert.Equal(t, "VMware Host Adapter", Vendor("00:50:56:c0:00:08"))
	assert.Equal(t, "VMware", Vendor("00:50:56:aa:bb:cc"))
	assert.Equal(t, UnknownVendor, Vendor("02:00:00:00:00:01"))
}

func TestDeviceFingerprintFirstSighting(t *testing.T) {
	d := NewDeviceFingerprint()
	rec := func(mac string) *models.PacketRecord {
		return &models.PacketRecord{Timestamp: t0, SrcMAC: mac}
	}

	ev := d.Detect(rec("b8:27:eb:01:02:03"))
	require.NotNil(t, ev)
	assert.Equal(t, "Raspberry Pi", ev.Detail)
	assert.Equal(t, "b8:27:eb:01:02:03", ev.Subject)
	assert.Nil(t, d.Detect(rec("b8:27:eb:01:02:03")))

	assert.NotNil(t, d.Detect(rec("02:00:00:00:00:09")))
	assert.Nil(t, d.Detect(rec("")))
	assert.Equal(t, []string{"Raspberry Pi", UnknownVendor}, d.Labels())
}
