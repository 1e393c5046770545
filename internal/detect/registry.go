package detect

import (
	"strings"

	"netsentry/internal/errors"
)

type factory func(t Thresholds) Detector

var registry = []struct {
	name string
	new  factory
}{
	{NameSYNFlood, func(t Thresholds) Detector { return NewSYNFlood(t.SYNFlood) }},
	{NamePortScan, func(t Thresholds) Detector { return NewPortScan(t.PortScan) }},
	{NameDNSTunneling, func(t Thresholds) Detector { return NewDNSTunneling(t.DNSMinSubdomains, t.DNSMinLength) }},
	{NameARPSpoof, func(Thresholds) Detector { return NewARPSpoof() }},
	{NameTimingAnomaly, func(t Thresholds) Detector { return NewTimingAnomaly(t.TimingMinInterval) }},
	{NameConnectionRate, func(t Thresholds) Detector { return NewConnectionRate(t.ConnRateWindow, t.ConnRateLimit) }},
	{NameBandwidth, func(t Thresholds) Detector { return NewBandwidth(t.BandwidthBytes) }},
	{NameTLSFingerprint, func(Thresholds) Detector { return NewTLSFingerprint() }},
	{NameHTTPFingerprint, func(Thresholds) Detector { return NewHTTPFingerprint() }},
	{NameDeviceFingerprint, func(Thresholds) Detector { return NewDeviceFingerprint() }},
	{NameTor, func(t Thresholds) Detector { return NewTor(t.TorPort) }},
	{NameMetasploit, func(Thresholds) Detector { return NewMetasploit() }},
	{NameCobaltStrike, func(Thresholds) Detector { return NewCobaltStrike() }},
}

// Names returns every known detector name in canonical order.
func Names() []string {
	names := make([]string, len(registry))
	for i, r := range registry {
		names[i] = r.name
	}
	return names
}

// Build constructs fresh detector instances for the given names, in the
// order given. An empty list builds every detector in canonical order.
func Build(names []string, t Thresholds) ([]Detector, error) {
	if len(names) == 0 {
		names = Names()
	}

	out := make([]Detector, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if seen[name] {
			return nil, errors.Errorf(errors.KindValidation, "detector %q listed twice", name)
		}
		seen[name] = true

		f := lookup(name)
		if f == nil {
			return nil, errors.Errorf(errors.KindValidation, "unknown detector %q", name)
		}
		out = append(out, f(t))
	}
	return out, nil
}

func lookup(name string) factory {
	for _, r := range registry {
		if r.name == name {
			return r.new
		}
	}
	return nil
}
