package detect

import (
	"bytes"
	"fmt"

	"netsentry/internal/models"
)

// Tor flags TCP traffic to the default Tor relay port.
type Tor struct {
	base
	port  int
	count int
}

func NewTor(port int) *Tor {
	return &Tor{
		base: base{NameTor, models.CategoryThreat, models.SeverityWarning},
		port: port,
	}
}

func (d *Tor) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if !pkt.HasLayer(models.LayerTCP) || pkt.DstPort != d.port {
		return nil
	}
	d.count++
	return d.event(pkt, pkt.SrcIP, fmt.Sprintf("connection to %s:%d", pkt.DstIP, d.port))
}

func (d *Tor) Reset() { d.count = 0 }

// Count returns the number of matching packets.
func (d *Tor) Count() int { return d.count }

// Signature matches a lowercase marker anywhere in the raw frame bytes,
// ignoring case.
//
// This is a placeholder policy. A plaintext substring is trivially evaded
// and will also match benign traffic that mentions the tool by name.
type Signature struct {
	base
	marker []byte
	count  int
}

func newSignature(name, marker string) *Signature {
	return &Signature{
		base:   base{name, models.CategoryThreat, models.SeverityCritical},
		marker: []byte(marker),
	}
}

func NewMetasploit() *Signature   { return newSignature(NameMetasploit, "metasploit") }
func NewCobaltStrike() *Signature { return newSignature(NameCobaltStrike, "cobalt") }

func (d *Signature) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if !containsFold(pkt.Frame, d.marker) {
		return nil
	}
	d.count++
	return d.event(pkt, pkt.SrcIP, fmt.Sprintf("%q marker in %d byte frame", d.marker, len(pkt.Frame)))
}

func (d *Signature) Reset() { d.count = 0 }

// Count returns the number of matching packets.
func (d *Signature) Count() int { return d.count }

// containsFold reports whether lowered marker occurs in b, ASCII case-folded.
func containsFold(b, marker []byte) bool {
	n := len(marker)
	for i := 0; i+n <= len(b); i++ {
		if bytes.EqualFold(b[i:i+n], marker) {
			return true
		}
	}
	return false
}
