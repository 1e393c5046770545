// Package pcaplive opens live capture handles through libpcap.
package pcaplive

import (
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netsentry/internal/capture"
	"netsentry/internal/errors"
)

// Options control how the interface is opened.
type Options struct {
	Snaplen     int
	Promiscuous bool
	// ReadTimeout bounds each read so the producer can notice a stop
	// request on a quiet interface.
	ReadTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Snaplen:     65536,
		Promiscuous: true,
		ReadTimeout: 500 * time.Millisecond,
	}
}

type handle struct {
	h *pcap.Handle
}

func (h handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.h.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, capture.ErrTimeout
	}
	return data, ci, err
}

func (h handle) LinkType() layers.LinkType { return h.h.LinkType() }
func (h handle) Close()                    { h.h.Close() }

// Open opens iface and applies the BPF filter, if any.
func Open(iface, filter string, opts Options) (capture.Source, error) {
	if opts.Snaplen <= 0 {
		opts.Snaplen = 65536
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 500 * time.Millisecond
	}

	h, err := pcap.OpenLive(iface, int32(opts.Snaplen), opts.Promiscuous, opts.ReadTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, openKind(err), "could not open %s", iface)
	}
	if filter != "" {
		if err := h.SetBPFFilter(filter); err != nil {
			h.Close()
			return nil, errors.Wrapf(err, errors.KindValidation, "could not set BPF filter %q", filter)
		}
	}
	return handle{h}, nil
}

// Opener adapts Open to capture.Opener with fixed options.
func Opener(opts Options) capture.Opener {
	return func(iface, filter string) (capture.Source, error) {
		return Open(iface, filter, opts)
	}
}

// Interfaces lists the names of capture-capable devices.
func Interfaces() ([]string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, errors.Wrap(err, openKind(err), "could not list capture devices")
	}
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, d.Name)
	}
	return names, nil
}

// openKind classifies libpcap errors, which only come as text.
func openKind(err error) errors.Kind {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "operation not permitted") {
		return errors.KindPermission
	}
	return errors.KindUnavailable
}
