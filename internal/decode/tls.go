package decode

import (
	"net"

	"golang.org/x/crypto/cryptobyte"

	"netsentry/internal/models"
)

const (
	recordTypeHandshake      = 0x16
	handshakeTypeClientHello = 0x01
	extensionServerName      = 0x0000
)

// ParseClientHello extracts the fields of a TLS ClientHello from a TCP
// payload. It returns nil unless the payload starts with a complete
// handshake record carrying a ClientHello.
func ParseClientHello(payload []byte) *models.TLSClientHello {
	s := cryptobyte.String(payload)

	var contentType uint8
	var recordVersion uint16
	var record cryptobyte.String
	if !s.ReadUint8(&contentType) || contentType != recordTypeHandshake ||
		!s.ReadUint16(&recordVersion) || !s.ReadUint16LengthPrefixed(&record) {
		return nil
	}

	var msgType uint8
	var body cryptobyte.String
	if !record.ReadUint8(&msgType) || msgType != handshakeTypeClientHello ||
		!record.ReadUint24LengthPrefixed(&body) {
		return nil
	}

	hello := &models.TLSClientHello{}
	var random []byte
	var sessionID, ciphers, compression cryptobyte.String
	if !body.ReadUint16(&hello.Version) ||
		!body.ReadBytes(&random, 32) ||
		!body.ReadUint8LengthPrefixed(&sessionID) ||
		!body.ReadUint16LengthPrefixed(&ciphers) ||
		!body.ReadUint8LengthPrefixed(&compression) {
		return nil
	}

	for !ciphers.Empty() {
		var suite uint16
		if !ciphers.ReadUint16(&suite) {
			return nil
		}
		hello.CipherSuites = append(hello.CipherSuites, suite)
	}

	if body.Empty() {
		return hello
	}

	var exts cryptobyte.String
	if !body.ReadUint16LengthPrefixed(&exts) {
		return nil
	}
	for !exts.Empty() {
		var typ uint16
		var data cryptobyte.String
		if !exts.ReadUint16(&typ) || !exts.ReadUint16LengthPrefixed(&data) {
			return nil
		}
		hello.Extensions = append(hello.Extensions, typ)
		if typ == extensionServerName {
			hello.ServerName = parseServerName(data)
		}
	}
	return hello
}

func parseServerName(data cryptobyte.String) string {
	var list cryptobyte.String
	if !data.ReadUint16LengthPrefixed(&list) {
		return ""
	}
	for !list.Empty() {
		var nameType uint8
		var name cryptobyte.String
		if !list.ReadUint8(&nameType) || !list.ReadUint16LengthPrefixed(&name) {
			return ""
		}
		if nameType == 0 {
			return string(name)
		}
	}
	return ""
}

func ipString(b []byte) string {
	return net.IP(b).String()
}

func macString(b []byte) string {
	return net.HardwareAddr(b).String()
}
