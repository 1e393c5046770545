package detect

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"netsentry/internal/models"
)

// TLSFingerprint hashes the version, cipher list and extension list of
// every ClientHello it sees.
type TLSFingerprint struct {
	base
	hashes map[string]struct{}
}

func NewTLSFingerprint() *TLSFingerprint {
	return &TLSFingerprint{
		base:   base{NameTLSFingerprint, models.CategoryFingerprint, models.SeverityInfo},
		hashes: make(map[string]struct{}),
	}
}

func (d *TLSFingerprint) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if pkt.TLSHello == nil {
		return nil
	}
	hash := HelloHash(pkt.TLSHello)
	d.hashes[hash] = struct{}{}
	detail := "client hello from " + pkt.SrcIP
	if sni := pkt.TLSHello.ServerName; sni != "" {
		detail += " for " + sni
	}
	return d.event(pkt, hash, detail)
}

func (d *TLSFingerprint) Reset() { d.hashes = make(map[string]struct{}) }

// Hashes returns the distinct hashes seen, sorted.
func (d *TLSFingerprint) Hashes() []string { return sortedKeys(d.hashes) }

// HelloHash returns the hex MD5 of "version,ciphers,extensions,0,0" where
// the lists are dash-joined decimals in the order the client sent them.
func HelloHash(h *models.TLSClientHello) string {
	s := fmt.Sprintf("%d,%s,%s,0,0", h.Version, joinUint16(h.CipherSuites), joinUint16(h.Extensions))
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func joinUint16(vals []uint16) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, "-")
}

// HTTPFingerprint pulls the User-Agent header out of plaintext HTTP.
type HTTPFingerprint struct {
	base
	agents map[string]struct{}
}

func NewHTTPFingerprint() *HTTPFingerprint {
	return &HTTPFingerprint{
		base:   base{NameHTTPFingerprint, models.CategoryFingerprint, models.SeverityInfo},
		agents: make(map[string]struct{}),
	}
}

func (d *HTTPFingerprint) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if !pkt.HasLayer(models.LayerHTTP) {
		return nil
	}
	ua := UserAgent(pkt.Payload)
	if ua == "" {
		return nil
	}
	d.agents[ua] = struct{}{}
	return d.event(pkt, ua, "user agent from "+pkt.SrcIP)
}

func (d *HTTPFingerprint) Reset() { d.agents = make(map[string]struct{}) }

// Agents returns the distinct user agents seen, sorted.
func (d *HTTPFingerprint) Agents() []string { return sortedKeys(d.agents) }

var userAgentKey = []byte("user-agent:")

// UserAgent scans payload line by line for a User-Agent header and returns
// its trimmed value. Header names match case-insensitively.
func UserAgent(payload []byte) string {
	rest := payload
	started := false
	for len(rest) > 0 {
		var line []byte
		line, rest, _ = bytes.Cut(rest, []byte("\n"))
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			if started {
				break // end of headers
			}
			continue
		}
		started = true
		if len(line) >= len(userAgentKey) && bytes.EqualFold(line[:len(userAgentKey)], userAgentKey) {
			return string(bytes.TrimSpace(line[len(userAgentKey):]))
		}
	}
	return ""
}

type ouiEntry struct {
	prefix string
	vendor string
}

// vendorTable is sorted longest prefix first in init.
var vendorTable = []ouiEntry{
	{"00:1A:79", "Cisco Device"},
	{"3C:5A:B4", "TP-Link"},
	{"00:50:56:C0:00", "VMware Host Adapter"},
	{"00:50:56", "VMware"},
	{"00:0C:29", "VMware"},
	{"00:15:5D", "Microsoft Hyper-V"},
	{"08:00:27", "VirtualBox"},
	{"52:54:00", "QEMU/KVM"},
	{"B8:27:EB", "Raspberry Pi"},
	{"DC:A6:32", "Raspberry Pi"},
	{"E4:5F:01", "Raspberry Pi"},
	{"00:1B:63", "Apple"},
	{"F0:18:98", "Apple"},
	{"00:1E:C2", "Apple"},
	{"00:24:D4", "Freebox"},
	{"00:1D:0F", "TP-Link"},
	{"F4:F2:6D", "TP-Link"},
	{"00:00:0C", "Cisco Device"},
	{"00:17:88", "Philips Hue"},
	{"18:B4:30", "Nest Labs"},
}

func init() {
	sort.SliceStable(vendorTable, func(i, j int) bool {
		return len(vendorTable[i].prefix) > len(vendorTable[j].prefix)
	})
}

// UnknownVendor labels MACs that match no table entry.
const UnknownVendor = "unknown"

// Vendor classifies a MAC address by prefix, longest match first.
func Vendor(mac string) string {
	mac = strings.ToUpper(mac)
	for _, e := range vendorTable {
		if strings.HasPrefix(mac, e.prefix) {
			return e.vendor
		}
	}
	return UnknownVendor
}

// DeviceFingerprint labels each source MAC with a vendor the first time
// the MAC is seen.
type DeviceFingerprint struct {
	base
	macs   map[string]string
	labels map[string]struct{}
}

func NewDeviceFingerprint() *DeviceFingerprint {
	d := &DeviceFingerprint{base: base{NameDeviceFingerprint, models.CategoryFingerprint, models.SeverityInfo}}
	d.Reset()
	return d
}

func (d *DeviceFingerprint) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	if pkt.SrcMAC == "" {
		return nil
	}
	if _, seen := d.macs[pkt.SrcMAC]; seen {
		return nil
	}
	label := Vendor(pkt.SrcMAC)
	d.macs[pkt.SrcMAC] = label
	d.labels[label] = struct{}{}
	return d.event(pkt, pkt.SrcMAC, label)
}

func (d *DeviceFingerprint) Reset() {
	d.macs = make(map[string]string)
	d.labels = make(map[string]struct{})
}

// Labels returns the distinct vendor labels assigned, sorted.
func (d *DeviceFingerprint) Labels() []string { return sortedKeys(d.labels) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
