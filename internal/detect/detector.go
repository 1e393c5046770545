// Package detect holds the stateful signal detectors and the dispatcher
// that runs them over each packet.
//
// A detector instance belongs to exactly one capture session or offline
// job. Detect, Reset and the read accessors are only ever called from the
// goroutine that feeds that session, so detectors carry no locks.
package detect

import (
	"time"

	"netsentry/internal/models"
)

// Detector names, in canonical order.
const (
	NameSYNFlood          = "syn_flood"
	NamePortScan          = "port_scan"
	NameDNSTunneling      = "dns_tunneling"
	NameARPSpoof          = "arp_spoof"
	NameTimingAnomaly     = "timing_anomaly"
	NameConnectionRate    = "connection_rate"
	NameBandwidth         = "bandwidth"
	NameTLSFingerprint    = "tls_fingerprint"
	NameHTTPFingerprint   = "http_fingerprint"
	NameDeviceFingerprint = "device_fingerprint"
	NameTor               = "tor"
	NameMetasploit        = "metasploit"
	NameCobaltStrike      = "cobalt_strike"
)

// Detector classifies one packet at a time against its own private state.
type Detector interface {
	Name() string
	Category() models.Category
	// Detect returns an event, or nil when the packet does not qualify.
	Detect(pkt *models.PacketRecord) *models.DetectionEvent
	// Reset clears all accumulated state.
	Reset()
}

// Thresholds parameterize detector construction. Changing them never
// affects detectors that already exist.
type Thresholds struct {
	SYNFlood          int           `koanf:"syn_flood"`
	PortScan          int           `koanf:"port_scan"`
	DNSMinSubdomains  int           `koanf:"dns_min_subdomains"`
	DNSMinLength      int           `koanf:"dns_min_length"`
	TimingMinInterval time.Duration `koanf:"timing_min_interval"`
	ConnRateWindow    time.Duration `koanf:"conn_rate_window"`
	ConnRateLimit     int           `koanf:"conn_rate_limit"`
	BandwidthBytes    int64         `koanf:"bandwidth_bytes"`
	TorPort           int           `koanf:"tor_port"`
}

// DefaultThresholds returns the stock detector thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SYNFlood:          100,
		PortScan:          20,
		DNSMinSubdomains:  5,
		DNSMinLength:      50,
		TimingMinInterval: time.Millisecond,
		ConnRateWindow:    10 * time.Second,
		ConnRateLimit:     100,
		BandwidthBytes:    1_000_000,
		TorPort:           9001,
	}
}

// base carries the identity shared by every detector.
type base struct {
	name     string
	category models.Category
	severity models.Severity
}

func (b base) Name() string              { return b.name }
func (b base) Category() models.Category { return b.category }

func (b base) event(pkt *models.PacketRecord, subject, detail string) *models.DetectionEvent {
	return &models.DetectionEvent{
		Detector:  b.name,
		Category:  b.category,
		Subject:   subject,
		Severity:  b.severity,
		Timestamp: pkt.Timestamp,
		Detail:    detail,
	}
}
